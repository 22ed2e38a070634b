package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
	"sagra-pos/internal/money"
	"sagra-pos/internal/ticket"
)

// Handler handles HTTP requests for the order service
type Handler struct {
	service  *Service
	renderer ticket.Renderer
	timeout  time.Duration
	logger   *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, renderer ticket.Renderer, timeout time.Duration, log *logger.Logger) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		service:  service,
		renderer: renderer,
		timeout:  timeout,
		logger:   log,
	}
}

// RegisterRoutes registers the till endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Get("/menu", h.GetMenu)
	r.Post("/menu/reload", h.ReloadMenu)

	r.Route("/order", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Post("/reset", h.ResetOrder)
		r.Post("/checkout", h.Checkout)
		r.Post("/lines/{key}/increment", h.Increment)
		r.Post("/lines/{key}/decrement", h.Decrement)
		r.Put("/lines/{key}/note", h.EditNote)
	})

	r.Route("/portions", func(r chi.Router) {
		r.Get("/", h.GetPortions)
		r.Post("/reload", h.ReloadPortions)
		r.Post("/{key}/adjust", h.AdjustPortion)
		r.Post("/{key}/reset", h.ResetPortion)
	})

	r.Put("/counter/offline-prefix", h.SetOfflinePrefix)
}

// SetupRoutes builds the router of the till. Extra registrars mount the
// endpoints of other services on the same router.
func (h *Handler) SetupRoutes(extra ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(h.withLogging)
	h.RegisterRoutes(r)
	for _, register := range extra {
		register(r)
	}
	return r
}

func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Catalog(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "menu_read_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) ReloadMenu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	requestID := logger.RequestIDFromContext(ctx)
	res, err := h.service.LoadMenu(ctx, requestID)
	if err != nil {
		h.writeServiceError(w, r, "menu_load_failed", err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"items":     res.Catalog,
		"source":    res.Source,
		"cached_at": res.CachedAt,
		"skipped":   res.Skipped,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.View(r.Context())
	h.writeView(w, r, "order_read_failed", view, err)
}

func (h *Handler) ResetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ResetOrder(r.Context())
	h.writeView(w, r, "order_reset_failed", view, err)
}

func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Increment(r.Context(), itemKey(r))
	h.writeView(w, r, "line_increment_failed", view, err)
}

func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Decrement(r.Context(), itemKey(r))
	h.writeView(w, r, "line_decrement_failed", view, err)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) EditNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.EditNote(r.Context(), itemKey(r), req.Note)
	h.writeView(w, r, "line_note_failed", view, err)
}

// checkoutRequest accepts the tendered amount either in cents or as the euro
// string typed by the operator ("20", "7,50").
type checkoutRequest struct {
	AmountTenderedCents *int64 `json:"amount_tendered_cents"`
	AmountTendered      string `json:"amount_tendered"`
	PaymentMode         string `json:"payment_mode"`
	Table               string `json:"table"`
	Covers              int    `json:"covers"`
}

func (c checkoutRequest) toModel() (*models.CheckoutRequest, error) {
	req := &models.CheckoutRequest{
		PaymentMode: c.PaymentMode,
		Table:       c.Table,
		Covers:      c.Covers,
	}
	switch {
	case c.AmountTenderedCents != nil:
		req.AmountTenderedCents = *c.AmountTenderedCents
	case c.AmountTendered != "":
		cents, err := money.ParseEuros(c.AmountTendered)
		if err != nil {
			return nil, models.ValidationError{Field: "amount_tendered", Message: err.Error()}
		}
		req.AmountTenderedCents = cents
	}
	return req, nil
}

type checkoutResponse struct {
	Ticket         models.OrderTicket `json:"ticket"`
	OrderNumber    string             `json:"order_number"`
	Total          string             `json:"total"`
	ChangeDue      string             `json:"change_due"`
	CustomerTicket string             `json:"customer_ticket"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "Content-Type must be application/json", nil)
		return
	}

	var body checkoutRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, err := body.toModel()
	if err != nil {
		h.writeServiceError(w, r, "validation_failed", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	requestID := logger.RequestIDFromContext(ctx)
	t, err := h.service.Checkout(ctx, req, requestID)
	if err != nil {
		h.writeServiceError(w, r, "checkout_failed", err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, checkoutResponse{
		Ticket:         t,
		OrderNumber:    t.Number.String(),
		Total:          money.Format(t.TotalCents),
		ChangeDue:      money.Format(t.ChangeDueCents),
		CustomerTicket: string(h.renderer.Customer(t)),
	})
}

func (h *Handler) GetPortions(w http.ResponseWriter, r *http.Request) {
	portions, err := h.service.Portions(r.Context())
	h.writePortions(w, r, "portions_read_failed", portions, err)
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) AdjustPortion(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	requestID := logger.RequestIDFromContext(r.Context())
	portions, err := h.service.AdjustPortion(r.Context(), itemKey(r), req.Delta, requestID)
	h.writePortions(w, r, "portion_adjust_failed", portions, err)
}

func (h *Handler) ResetPortion(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestIDFromContext(r.Context())
	portions, err := h.service.ResetPortion(r.Context(), itemKey(r), requestID)
	h.writePortions(w, r, "portion_reset_failed", portions, err)
}

func (h *Handler) ReloadPortions(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestIDFromContext(r.Context())
	portions, err := h.service.ReloadPortions(r.Context(), requestID)
	h.writePortions(w, r, "portions_reload_failed", portions, err)
}

type prefixRequest struct {
	Prefix string `json:"prefix"`
}

func (h *Handler) SetOfflinePrefix(w http.ResponseWriter, r *http.Request) {
	var req prefixRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetOfflinePrefix(r.Context(), req.Prefix); err != nil {
		h.writeServiceError(w, r, "prefix_update_failed", err)
		return
	}
	prefix, err := h.service.OfflinePrefix(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "prefix_read_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"prefix": prefix})
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health, healthy := h.service.HealthCheck(ctx)

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "till",
		"healthy":   healthy,
		"details":   health,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	} else if !health.RemoteReachable || health.PendingWrites > 0 {
		response["status"] = "degraded"
	}
	h.writeJSON(w, r, status, response)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", logger.RequestIDFromContext(r.Context()), err, nil)
		h.writeErrorResponse(w, r, http.StatusBadRequest, "Invalid JSON format", nil)
		return false
	}
	return true
}

func (h *Handler) writeView(w http.ResponseWriter, r *http.Request, action string, view ledger.View, err error) {
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, view)
}

func (h *Handler) writePortions(w http.ResponseWriter, r *http.Request, action string, portions models.DailyPortions, err error) {
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, portions)
}

// writeServiceError maps service errors to status codes. Client errors are
// logged at debug level.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	requestID := logger.RequestIDFromContext(r.Context())

	var (
		payErr *ledger.PaymentError
		valErr models.ValidationError
	)
	switch {
	case errors.As(err, &payErr):
		h.logger.Debug(action, "Payment rejected", requestID, map[string]interface{}{
			"total_cents":     payErr.TotalCents,
			"shortfall_cents": payErr.ShortfallCents,
		})
		h.writeErrorResponse(w, r, http.StatusUnprocessableEntity, money.Shortfall(payErr.ShortfallCents), map[string]interface{}{
			"shortfall_cents": payErr.ShortfallCents,
			"total_cents":     payErr.TotalCents,
		})
	case errors.As(err, &valErr):
		h.writeErrorResponse(w, r, http.StatusBadRequest, valErr.Error(), map[string]interface{}{"field": valErr.Field})
	case errors.Is(err, models.ErrUnknownPaymentMode):
		h.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, models.ErrUnknownItem):
		h.writeErrorResponse(w, r, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, models.ErrEmptyOrder):
		h.writeErrorResponse(w, r, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, models.ErrMenuUnavailable):
		h.logger.Error(action, "Menu unavailable", requestID, err, nil)
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		h.logger.Error(action, "Request failed", requestID, err, nil)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", logger.RequestIDFromContext(r.Context()), err, nil)
	}
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string, extra map[string]interface{}) {
	errorResponse := map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": logger.RequestIDFromContext(r.Context()),
	}
	for k, v := range extra {
		errorResponse[k] = v
	}
	h.writeJSON(w, r, statusCode, errorResponse)
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))
		w.Header().Set("X-Request-ID", requestID)

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// itemKey returns the {key} URL parameter. Keys carry spaces and accents,
// so the raw segment is unescaped when chi left it encoded.
func itemKey(r *http.Request) string {
	key := chi.URLParam(r, "key")
	if unescaped, err := url.PathUnescape(key); err == nil {
		return unescaped
	}
	return key
}
