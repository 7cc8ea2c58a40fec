package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fruitorders/internal/models"
	"fruitorders/internal/service"
)

const (
	codeMalformedInput = "MalformedInput"
	auditWarning       = `199 - "audit entry not recorded"`
	healthTimeout      = 2 * time.Second
)

type OrderHandler struct {
	service service.OrderService
}

func NewOrderHandler(srv service.OrderService) *OrderHandler {
	return &OrderHandler{service: srv}
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in models.OrderInput
	if !decodeBody(w, r, &in) {
		return
	}

	order, err := h.service.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, order, http.StatusCreated)
}

// GetOrder handles GET /orders/{id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, order, http.StatusOK)
}

// UpdateOrder handles PUT and PATCH /orders/{id}. Omitted and null fields
// both keep the stored value.
func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var patch models.OrderPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	order, err := h.service.Update(r.Context(), id, patch)
	if errors.Is(err, models.ErrAuditNotRecorded) {
		slog.Warn("update applied without audit entry", "order_id", id, "error", err)
		w.Header().Set("Warning", auditWarning)
		writeJSON(w, order, http.StatusOK)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, order, http.StatusOK)
}

// DeleteOrder handles DELETE /orders/{id} and returns the removed order.
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, order, http.StatusOK)
}

func (h *OrderHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, entries, http.StatusOK)
}

func (h *OrderHandler) GetCost(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	cost, err := h.service.Cost(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, cost, http.StatusOK)
}

// Health reports whether storage answers a ping.
func (h *OrderHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, map[string]string{"status": "unavailable"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSONError(w, codeMalformedInput, fmt.Sprintf("Order id %q is not an integer.", raw), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeBody reads a JSON order body. A quantity of the wrong JSON type is an
// invalid value rather than a malformed body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && (typeErr.Field == "apples" || typeErr.Field == "oranges") {
		writeServiceError(w, models.QuantityError(typeErr.Field))
		return false
	}

	writeJSONError(w, codeMalformedInput, "Request body is not a valid order: "+err.Error(), http.StatusBadRequest)
	return false
}

func statusFor(kind models.Kind) int {
	switch kind {
	case models.KindMalformedInput, models.KindInvalidValue, models.KindOutOfRange, models.KindClientRequest:
		return http.StatusUnprocessableEntity
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConnectivity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var e *models.Error
	if !errors.As(err, &e) {
		slog.Error("uncategorized service error", "error", err)
		writeJSONError(w, models.KindUnknownDataAccess.String(), err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONError(w, e.Kind.String(), e.Error(), statusFor(e.Kind))
}

func writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, models.ErrorResponse{Error: models.APIError{Code: code, Message: message}}, status)
}
