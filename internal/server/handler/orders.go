package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// OrderService defines the methods the order handler requires from the service
// layer.
type OrderService interface {
	ListOrders(accountID string, filter domain.OrderFilter) ([]domain.Order, error)
	RefreshOrders(ctx context.Context, accountID string) error
	CancelOrder(ctx context.Context, accountID, orderID string) error
}

// OrderHandler serves close-order HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns an account's tracked close orders, newest first.
// GET /api/accounts/{id}/orders?kind=simulated&status=filled
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	filter, err := parseOrderFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := h.orders.ListOrders(accountID, filter)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// RefreshOrders reconciles an account's open orders against the brokerage.
// POST /api/accounts/{id}/orders/refresh
func (h *OrderHandler) RefreshOrders(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	if err := h.orders.RefreshOrders(r.Context(), accountID); err != nil {
		writeDomainError(w, r, h.logger, err, "refresh orders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "refreshed",
		"account_id": accountID,
	})
}

// CancelOrder cancels one of an account's open close orders.
// DELETE /api/accounts/{id}/orders/{orderID}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	orderID := pathParam(r, "orderID")
	if accountID == "" || orderID == "" {
		writeError(w, http.StatusBadRequest, "missing account or order id")
		return
	}

	if err := h.orders.CancelOrder(r.Context(), accountID, orderID); err != nil {
		writeDomainError(w, r, h.logger, err, "cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": orderID,
	})
}
