package alerts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/healthharbor/prevcare/pkg/common/logger"
	"github.com/healthharbor/prevcare/pkg/member"
)

type HTTPHandler struct {
	queries *QueryService
}

func NewHTTPHandler(queries *QueryService) *HTTPHandler {
	return &HTTPHandler{queries: queries}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/members/{publicId}/alerts", h.handleMemberAlerts).Methods(http.MethodGet)
	router.HandleFunc("/alerts", h.handleSummary).Methods(http.MethodGet)
	router.HandleFunc("/open-alerts", h.handleOpenAlerts).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleMemberAlerts(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["publicId"]

	rows, err := h.queries.AlertsForMember(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, member.ErrMemberNotFound) {
			http.Error(w, "member not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch member alerts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if rows == nil {
		rows = []CareAlert{}
	}
	writeJSON(w, rows)
}

func (h *HTTPHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	alertType := r.URL.Query().Get("type")
	if alertType == "" {
		alertType = "A1C_OVERDUE"
	}

	summary, err := h.queries.SummaryByType(r.Context(), alertType)
	if err != nil {
		logger.Log.WithError(err).Error("failed to summarize alerts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"type":    alertType,
		"summary": summary,
	})
}

func (h *HTTPHandler) handleOpenAlerts(w http.ResponseWriter, r *http.Request) {
	alertType := r.URL.Query().Get("type")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.queries.OpenAlertsPage(r.Context(), alertType, limit, offset)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list open alerts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, page)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
