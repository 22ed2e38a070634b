package tracking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
	"sagra-pos/internal/services/report"
)

// Handler handles HTTP requests for order lookups
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new tracking handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{number}", h.GetOrder)
	})
}

type orderSummary struct {
	models.HistoryRecord
	Number      string `json:"number"`
	PaymentMode string `json:"payment_mode"`
	Total       int64  `json:"total_cents"`
}

func summarize(rec models.HistoryRecord) orderSummary {
	return orderSummary{
		HistoryRecord: rec,
		Number:        models.OrderNumber{Prefix: rec.Prefix, Value: rec.OrderNumber}.String(),
		PaymentMode:   string(report.RecordMode(rec)),
		Total:         report.RecordTotal(rec),
	}
}

// ListOrders handles GET /history?day=YYYY-MM-DD requests
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestIDFromContext(r.Context())

	records, err := h.service.ListDay(r.Context(), r.URL.Query().Get("day"), requestID)
	if err != nil {
		h.writeServiceError(w, requestID, err)
		return
	}

	orders := make([]orderSummary, 0, len(records))
	for _, rec := range records {
		orders = append(orders, summarize(rec))
	}
	h.writeJSON(w, requestID, http.StatusOK, map[string]interface{}{"orders": orders})
}

// GetOrder handles GET /history/{number}?day=YYYY-MM-DD requests
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestIDFromContext(r.Context())

	rec, err := h.service.FindOrder(r.Context(), chi.URLParam(r, "number"), r.URL.Query().Get("day"), requestID)
	if err != nil {
		h.writeServiceError(w, requestID, err)
		return
	}
	h.writeJSON(w, requestID, http.StatusOK, summarize(rec))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var verr models.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeErrorResponse(w, http.StatusBadRequest, verr.Error(), requestID)
	case errors.Is(err, models.ErrNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, "Order not found", requestID)
	case errors.Is(err, ErrUnavailable):
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "Order history unavailable", requestID)
	default:
		h.logger.Error("history_lookup_failed", "Failed to look up order", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, requestID string, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// writeErrorResponse writes an error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	h.writeJSON(w, requestID, statusCode, map[string]interface{}{
		"error":      message,
		"request_id": requestID,
	})
}
