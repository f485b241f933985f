package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
	"github.com/rl1809/inventory-ledger/internal/metrics"
)

const tenantHeader = "X-Tenant-ID"

type HTTPHandler struct {
	ledger      *service.LedgerService
	adjustments *service.AdjustmentService
	allocations *service.AllocationService
	forecasts   *service.ForecastService
	validate    *validator.Validate
	logger      *slog.Logger
	metrics     *metrics.Inventory
}

type AdjustHTTPRequest struct {
	SkuID         string `json:"skuId" validate:"required"`
	Location      string `json:"location" validate:"required"`
	QuantityDelta int    `json:"quantityDelta"`
	ReasonCode    string `json:"reasonCode" validate:"required"`
	ActingUserID  string `json:"actingUserId" validate:"required"`
}

type LineHTTP struct {
	SkuID    string `json:"skuId" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type AllocateHTTPRequest struct {
	Location     string     `json:"location" validate:"required"`
	Lines        []LineHTTP `json:"lines" validate:"required,min=1,dive"`
	ActingUserID string     `json:"actingUserId"`
}

// ReleaseHTTPRequest serves releases and fulfillments. Without lines the
// order's own lines are used.
type ReleaseHTTPRequest struct {
	Location     string     `json:"location" validate:"required"`
	Lines        []LineHTTP `json:"lines" validate:"omitempty,dive"`
	ActingUserID string     `json:"actingUserId"`
}

type ErrorHTTPResponse struct {
	Kind       domain.ErrorKind   `json:"kind"`
	Message    string             `json:"message"`
	Retryable  bool               `json:"retryable"`
	Shortfalls []domain.Shortfall `json:"shortfalls,omitempty"`
}

func NewHTTPHandler(
	ledger *service.LedgerService,
	adjustments *service.AdjustmentService,
	allocations *service.AllocationService,
	forecasts *service.ForecastService,
	logger *slog.Logger,
	m *metrics.Inventory,
) *HTTPHandler {
	return &HTTPHandler{
		ledger:      ledger,
		adjustments: adjustments,
		allocations: allocations,
		forecasts:   forecasts,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
		metrics:     m,
	}
}

// Routes builds the API mux wrapped in request instrumentation.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.Handle("GET /metrics", h.metrics.Handler())

	mux.HandleFunc("GET /api/v1/inventory/{sku}", h.GetRecord)
	mux.HandleFunc("GET /api/v1/inventory/{sku}/events", h.History)
	mux.HandleFunc("POST /api/v1/inventory/adjustments", h.Adjust)

	mux.HandleFunc("GET /api/v1/orders/{orderId}/allocation-check", h.CanAllocate)
	mux.HandleFunc("POST /api/v1/orders/{orderId}/allocations", h.Allocate)
	mux.HandleFunc("POST /api/v1/orders/{orderId}/releases", h.Release)
	mux.HandleFunc("POST /api/v1/orders/{orderId}/fulfillments", h.Consume)

	mux.HandleFunc("GET /api/v1/forecasts", h.Forecast)
	return h.instrument(mux)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	key, ok := h.recordKey(w, r)
	if !ok {
		return
	}

	rec, err := h.ledger.Get(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	key, ok := h.recordKey(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, err := h.ledger.History(r.Context(), key, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *HTTPHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req AdjustHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	reason, err := domain.ParseReasonCode(req.ReasonCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.adjustments.Adjust(r.Context(), domain.Adjustment{
		TenantID:      tenantID,
		SkuID:         req.SkuID,
		Location:      req.Location,
		QuantityDelta: req.QuantityDelta,
		Reason:        reason,
		ActingUserID:  req.ActingUserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) CanAllocate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	check, err := h.allocations.CanAllocate(r.Context(), tenantID, r.PathValue("orderId"), r.URL.Query().Get("location"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *HTTPHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req AllocateHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.allocations.Allocate(r.Context(), domain.AllocationRequest{
		TenantID:     tenantID,
		OrderID:      r.PathValue("orderId"),
		Location:     req.Location,
		Lines:        toLines(req.Lines),
		ActingUserID: req.ActingUserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.releaseLike(w, r, h.allocations.Release)
}

func (h *HTTPHandler) Consume(w http.ResponseWriter, r *http.Request) {
	h.releaseLike(w, r, h.allocations.Consume)
}

func (h *HTTPHandler) releaseLike(w http.ResponseWriter, r *http.Request, apply func(context.Context, domain.AllocationRequest) (*service.ReleaseResult, error)) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req ReleaseHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := apply(r.Context(), domain.AllocationRequest{
		TenantID:     tenantID,
		OrderID:      r.PathValue("orderId"),
		Location:     req.Location,
		Lines:        toLines(req.Lines),
		ActingUserID: req.ActingUserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	q, err := parseForecastQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q.TenantID = tenantID

	report, err := h.forecasts.Forecast(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseForecastQuery(r *http.Request) (domain.ForecastQuery, error) {
	values := r.URL.Query()
	q := domain.ForecastQuery{
		Location: values.Get("location"),
		Filter: domain.ForecastFilter{
			Category:   values.Get("category"),
			Brand:      values.Get("brand"),
			SearchTerm: values.Get("search"),
		},
	}

	if raw := values.Get("urgency"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			u, ok := domain.ParseUrgency(strings.ToLower(strings.TrimSpace(part)))
			if !ok {
				return q, domain.NewValidation("unknown urgency " + strconv.Quote(part))
			}
			q.Filter.Urgency = append(q.Filter.Urgency, u)
		}
	}

	var err error
	if q.Filter.MinDaysUntilStockout, err = queryIntPtr(r, "minDays"); err != nil {
		return q, err
	}
	if q.Filter.MaxDaysUntilStockout, err = queryIntPtr(r, "maxDays"); err != nil {
		return q, err
	}
	if q.Page.Limit, err = queryInt(r, "limit"); err != nil {
		return q, err
	}
	if q.Page.Offset, err = queryInt(r, "offset"); err != nil {
		return q, err
	}
	if raw := values.Get("fresh"); raw != "" {
		if q.Fresh, err = strconv.ParseBool(raw); err != nil {
			return q, domain.NewValidation("fresh must be a boolean")
		}
	}
	return q, nil
}

func (h *HTTPHandler) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
	if tenantID == "" {
		h.writeError(w, r, domain.NewValidation("missing "+tenantHeader+" header"))
		return "", false
	}
	return tenantID, true
}

func (h *HTTPHandler) recordKey(w http.ResponseWriter, r *http.Request) (domain.RecordKey, bool) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return domain.RecordKey{}, false
	}
	return domain.RecordKey{
		TenantID: tenantID,
		SkuID:    r.PathValue("sku"),
		Location: r.URL.Query().Get("location"),
	}, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, domain.NewValidation("invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, domain.NewValidation(validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Namespace()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func toLines(in []LineHTTP) []domain.OrderLine {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.OrderLine, 0, len(in))
	for _, l := range in {
		out = append(out, domain.OrderLine{SkuID: l.SkuID, Quantity: l.Quantity})
	}
	return out
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidation(name + " must be an integer")
	}
	return n, nil
}

func queryIntPtr(r *http.Request, name string) (*int, error) {
	if r.URL.Query().Get(name) == "" {
		return nil, nil
	}
	n, err := queryInt(r, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientInventory, domain.KindConcurrencyConflict, domain.KindDuplicateRequest:
		return http.StatusConflict
	case domain.KindInvalidAdjustment:
		return http.StatusUnprocessableEntity
	case domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Kind: "INTERNAL", Message: "internal error"})
		return
	}

	writeJSON(w, statusFor(domainErr.Kind), ErrorHTTPResponse{
		Kind:       domainErr.Kind,
		Message:    domainErr.Message,
		Retryable:  domainErr.Retryable(),
		Shortfalls: domainErr.Shortfalls,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument counts requests per matched route pattern.
func (h *HTTPHandler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		h.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(rec.status))
		h.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
