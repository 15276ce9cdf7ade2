package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// MonitorService defines the methods the monitor handler requires from the
// service layer.
type MonitorService interface {
	StartMonitor(ctx context.Context, accountID string) (domain.AccountSnapshot, error)
	StopMonitor(accountID string) error
	GetSnapshot(accountID string) (domain.AccountSnapshot, error)
	Accounts() []string
	ConfigureTrailingStop(accountID, symbol string, enabled bool, percent float64) (domain.TrailingStopState, error)
	ConfigureTakeProfit(accountID, symbol string, enabled bool, percent float64) (domain.TakeProfitState, error)
	ClosePositions(ctx context.Context, accountID string, reqs []domain.CloseRequest) ([]domain.Order, error)
}

// MonitorHandler serves monitor lifecycle and risk configuration endpoints.
type MonitorHandler struct {
	monitors MonitorService
	logger   *slog.Logger
}

// NewMonitorHandler creates a MonitorHandler with the given service and logger.
func NewMonitorHandler(monitors MonitorService, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitors: monitors,
		logger:   logger,
	}
}

// accountsResponse wraps the account list response.
type accountsResponse struct {
	Accounts []string `json:"accounts"`
}

// ListAccounts returns the account ids with a registered monitor.
// GET /api/accounts
func (h *MonitorHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.monitors.Accounts()
	if accounts == nil {
		accounts = []string{}
	}
	writeJSON(w, http.StatusOK, accountsResponse{Accounts: accounts})
}

// StartMonitor starts the monitor for an account, loading its positions before
// responding with the first snapshot.
// POST /api/accounts/{id}/monitor/start
func (h *MonitorHandler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	snap, err := h.monitors.StartMonitor(r.Context(), accountID)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "start monitor")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// StopMonitor halts the monitor for an account.
// POST /api/accounts/{id}/monitor/stop
func (h *MonitorHandler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	if err := h.monitors.StopMonitor(accountID); err != nil {
		writeDomainError(w, r, h.logger, err, "stop monitor")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "stopped",
		"account_id": accountID,
	})
}

// GetSnapshot returns the current view of one account's monitor.
// GET /api/accounts/{id}/snapshot
func (h *MonitorHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	snap, err := h.monitors.GetSnapshot(accountID)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// closeRequest is the body for a manual close. Positions may be empty to
// close everything the monitor tracks.
type closeRequest struct {
	Positions []domain.CloseRequest `json:"positions"`
}

type closeResponse struct {
	Orders []domain.Order `json:"orders"`
	Count  int            `json:"count"`
}

// ClosePositions submits immediate close orders for an account's positions,
// outside the trailing-stop and take-profit mechanisms.
// POST /api/accounts/{id}/close
func (h *MonitorHandler) ClosePositions(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	var req closeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	orders, err := h.monitors.ClosePositions(r.Context(), accountID, req.Positions)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "close positions")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, closeResponse{Orders: orders, Count: len(orders)})
}

// riskConfigRequest is the body for both trailing-stop and take-profit
// configuration. Percent is ignored when Enabled is false.
type riskConfigRequest struct {
	Symbol  string  `json:"symbol"`
	Enabled bool    `json:"enabled"`
	Percent float64 `json:"percent"`
}

// ConfigureTrailingStop sets or clears the trailing stop for one symbol and
// returns the state the next monitor tick will apply.
// PUT /api/accounts/{id}/trailing-stop
func (h *MonitorHandler) ConfigureTrailingStop(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	var req riskConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	state, err := h.monitors.ConfigureTrailingStop(accountID, req.Symbol, req.Enabled, req.Percent)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "configure trailing stop")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// ConfigureTakeProfit sets or clears the profit target for one symbol.
// PUT /api/accounts/{id}/take-profit
func (h *MonitorHandler) ConfigureTakeProfit(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	var req riskConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	state, err := h.monitors.ConfigureTakeProfit(accountID, req.Symbol, req.Enabled, req.Percent)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "configure take profit")
		return
	}

	writeJSON(w, http.StatusOK, state)
}
