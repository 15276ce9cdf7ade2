// Package service exposes the account-monitor operations as one facade. The
// HTTP handlers call only this package; everything below it is wiring.
package service

import (
	"context"
	"log/slog"

	"github.com/optionsentry/optionsentry/internal/domain"
	"github.com/optionsentry/optionsentry/internal/monitor"
)

// MonitorService fronts the monitor registry.
type MonitorService struct {
	registry *monitor.Registry
	logger   *slog.Logger
}

// NewMonitorService creates a MonitorService.
func NewMonitorService(registry *monitor.Registry, logger *slog.Logger) *MonitorService {
	return &MonitorService{
		registry: registry,
		logger:   logger.With(slog.String("component", "monitor_service")),
	}
}

// StartMonitor starts (or finds) the monitor for an account and returns its
// first snapshot. The position load happens before this returns.
func (s *MonitorService) StartMonitor(ctx context.Context, accountID string) (domain.AccountSnapshot, error) {
	m, err := s.registry.GetOrStart(ctx, accountID)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	return m.Snapshot(), nil
}

// StopMonitor halts the monitor for an account. Stopping an account that has
// no monitor, or one already stopped, succeeds as a no-op.
func (s *MonitorService) StopMonitor(accountID string) error {
	s.registry.Stop(accountID)
	return nil
}

// GetSnapshot returns the current view of one account's monitor.
func (s *MonitorService) GetSnapshot(accountID string) (domain.AccountSnapshot, error) {
	m, err := s.registry.Get(accountID)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	return m.Snapshot(), nil
}

// Accounts lists the account ids with a registered monitor.
func (s *MonitorService) Accounts() []string {
	return s.registry.Accounts()
}

// ConfigureTrailingStop sets or clears the trailing stop for a symbol in an
// account. The returned state is what the next monitor tick will apply.
func (s *MonitorService) ConfigureTrailingStop(accountID, symbol string, enabled bool, percent float64) (domain.TrailingStopState, error) {
	m, err := s.registry.Get(accountID)
	if err != nil {
		return domain.TrailingStopState{}, err
	}
	return m.ConfigureTrailingStop(symbol, enabled, percent)
}

// ConfigureTakeProfit sets or clears the profit target for a symbol in an
// account.
func (s *MonitorService) ConfigureTakeProfit(accountID, symbol string, enabled bool, percent float64) (domain.TakeProfitState, error) {
	m, err := s.registry.Get(accountID)
	if err != nil {
		return domain.TakeProfitState{}, err
	}
	return m.ConfigureTakeProfit(symbol, enabled, percent)
}

// ClosePositions submits immediate close orders for an account's positions.
// An empty request list closes everything the monitor tracks.
func (s *MonitorService) ClosePositions(ctx context.Context, accountID string, reqs []domain.CloseRequest) ([]domain.Order, error) {
	m, err := s.registry.Get(accountID)
	if err != nil {
		return nil, err
	}
	return m.ClosePositions(ctx, reqs)
}

// ListOrders returns an account's tracked close orders, newest first.
func (s *MonitorService) ListOrders(accountID string, filter domain.OrderFilter) ([]domain.Order, error) {
	m, err := s.registry.Get(accountID)
	if err != nil {
		return nil, err
	}
	return m.ListOrders(filter), nil
}

// RefreshOrders reconciles an account's open orders against the brokerage.
func (s *MonitorService) RefreshOrders(ctx context.Context, accountID string) error {
	m, err := s.registry.Get(accountID)
	if err != nil {
		return err
	}
	return m.RefreshOrders(ctx)
}

// CancelOrder cancels one of an account's open close orders.
func (s *MonitorService) CancelOrder(ctx context.Context, accountID, orderID string) error {
	m, err := s.registry.Get(accountID)
	if err != nil {
		return err
	}
	return m.CancelOrder(ctx, orderID)
}
