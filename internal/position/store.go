// Package position holds the in-memory working set for one monitored
// account: the open option positions, their latest quotes, and the risk
// state attached to each. The monitor loop is the only writer; HTTP and
// websocket readers take snapshots.
package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// priceFailureLimit is how many consecutive quote failures mark a position
// degraded. A single dropped request must not flip the flag.
const priceFailureLimit = 3

type entry struct {
	position domain.Position
	risk     domain.RiskState

	currentPrice float64
	priceAt      time.Time
	havePrice    bool
	failures     int
}

// Store is the working set for one account.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Replace swaps in a freshly loaded position set. Risk state and price
// history carry over for positions whose key survives the reload; closed
// positions are dropped along with their state.
func (s *Store) Replace(positions []domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*entry, len(positions))
	for _, p := range positions {
		key := p.Key()
		if old, ok := s.entries[key]; ok {
			old.position = p
			next[key] = old
			continue
		}
		next[key] = &entry{position: p}
	}
	s.entries = next
}

// Keys returns the position keys currently tracked.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Get returns a copy of one position and its risk state.
func (s *Store) Get(key string) (domain.Position, domain.RiskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return domain.Position{}, domain.RiskState{}, fmt.Errorf("position: %s: %w", key, domain.ErrNotFound)
	}
	return e.position, e.risk, nil
}

// BySymbol finds the tracked position for a symbol. With several contracts
// on the same underlying the first match wins; callers that need an exact
// contract use the full key.
func (s *Store) BySymbol(symbol string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.position.Symbol == symbol {
			return e.position, nil
		}
	}
	return domain.Position{}, fmt.Errorf("position: symbol %s: %w", symbol, domain.ErrUnknownSymbol)
}

// SetRisk overwrites the risk state for a position.
func (s *Store) SetRisk(key string, risk domain.RiskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("position: %s: %w", key, domain.ErrNotFound)
	}
	e.risk = risk
	return nil
}

// RecordPrice stores a successful quote and clears the failure streak.
func (s *Store) RecordPrice(key string, price float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("position: %s: %w", key, domain.ErrNotFound)
	}
	e.currentPrice = price
	e.priceAt = at
	e.havePrice = true
	e.failures = 0
	return nil
}

// RecordPriceFailure bumps the failure streak and reports whether the
// position is now degraded.
func (s *Store) RecordPriceFailure(key string) (degraded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, fmt.Errorf("position: %s: %w", key, domain.ErrNotFound)
	}
	e.failures++
	return e.failures >= priceFailureLimit, nil
}

// Price returns the last good quote for a position. ErrNoPrice means no
// quote has ever landed.
func (s *Store) Price(key string) (float64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("position: %s: %w", key, domain.ErrNotFound)
	}
	if !e.havePrice {
		return 0, time.Time{}, fmt.Errorf("position: %s: %w", key, domain.ErrNoPrice)
	}
	return e.currentPrice, e.priceAt, nil
}

// Snapshot builds per-position views with the latest quote and running
// profit figures. Degraded positions keep reporting their last good quote.
func (s *Store) Snapshot() []domain.PositionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PositionSnapshot, 0, len(s.entries))
	for _, e := range s.entries {
		snap := domain.PositionSnapshot{
			Position:     e.position,
			TrailingStop: e.risk.TrailingStop,
			TakeProfit:   e.risk.TakeProfit,
			Degraded:     e.failures >= priceFailureLimit,
		}
		if e.havePrice {
			snap.CurrentPrice = e.currentPrice
			mult := float64(e.position.Quantity) * domain.ContractMultiplier
			snap.PnL = (e.currentPrice - e.position.EntryPremium) * mult
			if e.position.EntryPremium > 0 {
				snap.PnLPercent = (e.currentPrice - e.position.EntryPremium) / e.position.EntryPremium * 100
			}
		}
		out = append(out, snap)
	}
	return out
}

// Len reports how many positions are tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
