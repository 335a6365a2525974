package ingest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/common/logger"
	"github.com/healthharbor/prevcare/pkg/member"
)

// Demo fixtures for the dashboard's simulate actions.
const (
	simLabCode  = "4548-4"
	simLabValue = 7.2
	simLabUnit  = "%"
	simFluCode  = "FLU"

	simLabRecentDays = 90
	simLabOldDays    = 250
	simFluRecentDays = 200
	simFluOldDays    = 400
)

type simulateRequest struct {
	Action string `json:"action"`
}

type simulateResponse struct {
	OK             bool       `json:"ok"`
	Action         string     `json:"action"`
	PublicID       string     `json:"public_id"`
	CollectedAt    *time.Time `json:"collected_at,omitempty"`
	AdministeredAt *time.Time `json:"administered_at,omitempty"`
}

// handleSimulate drives demo scenarios:
// member | lab_recent | lab_old | flu_recent | flu_old.
func (h *HTTPHandler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action == "" {
		var body simulateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			action = body.Action
		}
	}
	if action == "" {
		http.Error(w, "action is required (member|lab_recent|lab_old|flu_recent|flu_old)", http.StatusBadRequest)
		return
	}

	if action == "member" {
		m, err := h.service.EnrollMember(r.Context())
		if err != nil {
			logger.Log.WithError(err).Error("failed to enroll simulated member")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, simulateResponse{OK: true, Action: action, PublicID: m.PublicID})
		return
	}

	publicID := r.URL.Query().Get("publicId")
	if publicID == "" {
		http.Error(w, "publicId is required for this action", http.StatusBadRequest)
		return
	}

	switch action {
	case "lab_recent", "lab_old":
		collectedAt := daysAgo(simLabRecentDays)
		if action == "lab_old" {
			collectedAt = daysAgo(simLabOldDays)
		}
		_, err := h.service.IngestLabResult(r.Context(), publicID, clinical.LabResultInput{
			Code:        simLabCode,
			ValueNum:    simLabValue,
			Unit:        simLabUnit,
			CollectedAt: collectedAt,
		})
		if err != nil {
			h.writeSimulateError(w, publicID, err)
			return
		}
		writeJSON(w, http.StatusOK, simulateResponse{OK: true, Action: action, PublicID: publicID, CollectedAt: &collectedAt})

	case "flu_recent", "flu_old":
		administeredAt := daysAgo(simFluRecentDays)
		if action == "flu_old" {
			administeredAt = daysAgo(simFluOldDays)
		}
		_, err := h.service.IngestImmunization(r.Context(), publicID, clinical.ImmunizationInput{
			Code:           simFluCode,
			AdministeredAt: administeredAt,
		})
		if err != nil {
			h.writeSimulateError(w, publicID, err)
			return
		}
		writeJSON(w, http.StatusOK, simulateResponse{OK: true, Action: action, PublicID: publicID, AdministeredAt: &administeredAt})

	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (h *HTTPHandler) writeSimulateError(w http.ResponseWriter, publicID string, err error) {
	if errors.Is(err, member.ErrMemberNotFound) {
		http.Error(w, "member "+publicID+" not found", http.StatusNotFound)
		return
	}
	logger.Log.WithError(err).Error("simulate action failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func daysAgo(d int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -d)
}
