package brokerage

import (
	"time"

	"github.com/optionsentry/optionsentry/internal/domain"
)

type positionsResponse struct {
	Positions []apiPosition `json:"positions"`
}

type apiPosition struct {
	Symbol        string  `json:"symbol"`
	StrikePrice   float64 `json:"strike_price"`
	Type          string  `json:"type"` // "call" | "put"
	ExpirationISO string  `json:"expiration_date"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_open_price"`
	OptionID      string  `json:"option_id"`
}

func (p apiPosition) toDomain() domain.Position {
	return domain.Position{
		Symbol:       p.Symbol,
		Strike:       p.StrikePrice,
		OptionType:   domain.OptionType(p.Type),
		Expiration:   p.ExpirationISO,
		Quantity:     p.Quantity,
		EntryPremium: p.AveragePrice,
		OptionID:     p.OptionID,
	}
}

type apiError struct {
	Message string `json:"message"`
}

type quoteResponse struct {
	MarkPrice float64 `json:"mark_price"`
}

type orderRequest struct {
	Symbol     string   `json:"symbol"`
	OptionID   string   `json:"option_id"`
	Side       string   `json:"side"`
	PositionFx string   `json:"position_effect"`
	Quantity   int      `json:"quantity"`
	LimitPrice float64  `json:"limit_price"`
	StopPrice  *float64 `json:"stop_price,omitempty"`
}

type orderResponse struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// mapStatus folds the brokerage's order states onto the internal lifecycle.
func mapStatus(state string) domain.OrderStatus {
	switch state {
	case "queued", "unconfirmed":
		return domain.OrderStatusPending
	case "confirmed", "placed":
		return domain.OrderStatusConfirmed
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "filled":
		return domain.OrderStatusFilled
	case "cancelled", "canceled":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusFailed
	}
}

func (r orderResponse) toDomain(accountID string, spec domain.OrderSpec) domain.Order {
	submitted := r.CreatedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	return domain.Order{
		ID:          r.ID,
		AccountID:   accountID,
		Symbol:      spec.Position.Symbol,
		PositionKey: spec.Position.Key(),
		Kind:        domain.OrderKindLive,
		Status:      mapStatus(r.State),
		LimitPrice:  spec.LimitPrice,
		StopPrice:   spec.StopPrice,
		Quantity:    spec.Position.Quantity,
		SubmittedAt: submitted,
		UpdatedAt:   submitted,
	}
}
