package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// Factory builds a Monitor for an account id. The registry owns calling it
// under its own lock so exactly one monitor exists per account.
type Factory func(accountID string) *Monitor

// Registry holds the live monitors, one per account. A stopped monitor is
// replaced by a fresh instance on the next start request rather than
// restarted.
type Registry struct {
	mu       sync.Mutex
	monitors map[string]*Monitor
	factory  Factory
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(factory Factory, logger *slog.Logger) *Registry {
	return &Registry{
		monitors: make(map[string]*Monitor),
		factory:  factory,
		logger:   logger.With(slog.String("component", "monitor_registry")),
	}
}

// GetOrStart returns the running monitor for an account, starting one if
// needed. The monitor is registered before its position load runs, so the
// load (a blocking brokerage call) happens outside the registry lock: other
// accounts stay serviceable and Get observes the loading state. Concurrent
// starts for the same account join the load already in flight.
func (r *Registry) GetOrStart(ctx context.Context, accountID string) (*Monitor, error) {
	r.mu.Lock()
	m, ok := r.monitors[accountID]
	if ok {
		switch m.State() {
		case domain.MonitorRunning, domain.MonitorLoading:
			r.mu.Unlock()
			return m, nil
		case domain.MonitorStopped:
			m = r.factory(accountID)
			r.monitors[accountID] = m
		}
		// Not started yet: another caller registered it and is about to
		// start it. Racing into Start below is safe; the loser joins.
	} else {
		m = r.factory(accountID)
		r.monitors[accountID] = m
	}
	r.mu.Unlock()

	if err := m.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrAlreadyLoading) {
			return m, nil
		}
		r.mu.Lock()
		if r.monitors[accountID] == m {
			delete(r.monitors, accountID)
		}
		r.mu.Unlock()
		return nil, err
	}
	return m, nil
}

// Get returns the monitor for an account, or ErrNotFound.
func (r *Registry) Get(accountID string) (*Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.monitors[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

// Stop halts one account's monitor. Unknown accounts and already stopped
// monitors are a no-op.
func (r *Registry) Stop(accountID string) {
	r.mu.Lock()
	m, ok := r.monitors[accountID]
	r.mu.Unlock()
	if ok {
		m.Stop()
	}
}

// Accounts lists the account ids with a registered monitor.
func (r *Registry) Accounts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.monitors))
	for id := range r.monitors {
		out = append(out, id)
	}
	return out
}

// StopAll drains every monitor, waiting for each loop to exit. Called once
// at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	monitors := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		monitors = append(monitors, m)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range monitors {
		wg.Add(1)
		go func(m *Monitor) {
			defer wg.Done()
			m.Stop()
		}(m)
	}
	wg.Wait()
	r.logger.Info("all monitors stopped", slog.Int("count", len(monitors)))
}
