package report

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

// Handler serves the daily report.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/report", h.GetReport)
}

// GetReport handles GET /report?day=YYYY-MM-DD[&format=text].
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestIDFromContext(r.Context())

	rep, generatedAt, err := h.service.Report(r.Context(), r.URL.Query().Get("day"), requestID)
	if err != nil {
		var verr models.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeJSON(w, r, http.StatusBadRequest, map[string]interface{}{"error": verr.Error(), "field": verr.Field, "request_id": requestID})
		case errors.Is(err, ErrUnavailable):
			h.logger.Error("report_failed", "Report unavailable", requestID, err, nil)
			h.writeJSON(w, r, http.StatusServiceUnavailable, map[string]interface{}{"error": err.Error(), "request_id": requestID})
		default:
			h.logger.Error("report_failed", "Failed to build report", requestID, err, nil)
			h.writeJSON(w, r, http.StatusInternalServerError, map[string]interface{}{"error": "Internal server error", "request_id": requestID})
		}
		return
	}

	w.Header().Set("X-Report-Generated-At", generatedAt.UTC().Format(time.RFC3339))
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(Render(rep))
		return
	}
	h.writeJSON(w, r, http.StatusOK, rep)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", logger.RequestIDFromContext(r.Context()), err, nil)
	}
}
