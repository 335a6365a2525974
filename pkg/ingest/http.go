package ingest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/common/logger"
	"github.com/healthharbor/prevcare/pkg/member"
)

type HTTPHandler struct {
	service *Service
	audit   *AuditRepository
	maxBody int64
}

func NewHTTPHandler(service *Service, audit *AuditRepository, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, audit: audit, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/members", h.handleEnroll).Methods(http.MethodPost)
	router.HandleFunc("/members/{publicId}/labs", h.handleLabResult).Methods(http.MethodPost)
	router.HandleFunc("/members/{publicId}/immunizations", h.handleImmunization).Methods(http.MethodPost)
	router.HandleFunc("/members/{publicId}/recompute", h.handleRecompute).Methods(http.MethodPost)
	router.HandleFunc("/simulate", h.handleSimulate).Methods(http.MethodPost)
	router.HandleFunc("/ingest/activity", h.handleActivity).Methods(http.MethodGet)
}

type enrollResponse struct {
	OK       bool   `json:"ok"`
	PublicID string `json:"public_id"`
	Sex      string `json:"sex"`
}

type ingestResponse struct {
	OK       bool           `json:"ok"`
	PublicID string         `json:"public_id"`
	Outcome  alerts.Outcome `json:"outcome"`
}

func (h *HTTPHandler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.EnrollMember(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to enroll member")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, enrollResponse{OK: true, PublicID: m.PublicID, Sex: m.Sex})
}

func (h *HTTPHandler) handleLabResult(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["publicId"]
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var in clinical.LabResultInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	out, err := h.service.IngestLabResult(r.Context(), publicID, in)
	if err != nil {
		h.writeIngestError(w, publicID, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{OK: true, PublicID: publicID, Outcome: out})
}

func (h *HTTPHandler) handleImmunization(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["publicId"]
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var in clinical.ImmunizationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	out, err := h.service.IngestImmunization(r.Context(), publicID, in)
	if err != nil {
		h.writeIngestError(w, publicID, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{OK: true, PublicID: publicID, Outcome: out})
}

func (h *HTTPHandler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["publicId"]

	out, err := h.service.Recompute(r.Context(), publicID)
	if err != nil {
		h.writeIngestError(w, publicID, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{OK: true, PublicID: publicID, Outcome: out})
}

func (h *HTTPHandler) handleActivity(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []AuditRecord{})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to load ingest activity")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

func (h *HTTPHandler) writeIngestError(w http.ResponseWriter, publicID string, err error) {
	if IsValidationError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, member.ErrMemberNotFound) {
		http.Error(w, "member "+publicID+" not found", http.StatusNotFound)
		return
	}
	logger.Log.WithError(err).Error("failed to ingest event")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
