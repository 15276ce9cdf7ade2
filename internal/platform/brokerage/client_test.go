package brokerage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionsentry/optionsentry/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL, "test-token", logger)
}

func TestLoadPositions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/acct-1/options/positions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(positionsResponse{Positions: []apiPosition{{
			Symbol:        "AAPL",
			StrikePrice:   150,
			Type:          "call",
			ExpirationISO: "2026-09-18",
			Quantity:      2,
			AveragePrice:  1.50,
			OptionID:      "opt-aapl",
		}}})
	})

	positions, err := client.Load(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL_2026-09-18_150_call", positions[0].Key())
	assert.Equal(t, 1.50, positions[0].EntryPremium)
}

func TestGetPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/options/quotes/opt-aapl", r.URL.Path)
		json.NewEncoder(w).Encode(quoteResponse{MarkPrice: 1.85})
	})

	price, err := client.GetPrice(context.Background(), "opt-aapl")
	require.NoError(t, err)
	assert.Equal(t, 1.85, price)
}

func TestGetPriceRejectsEmptyQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(quoteResponse{})
	})

	_, err := client.GetPrice(context.Background(), "opt-aapl")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestSubmitCloseForwardsIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/accounts/acct-1/orders", r.URL.Path)
		assert.Equal(t, "trigger-key-1", r.Header.Get("Idempotency-Key"))

		var req orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sell", req.Side)
		assert.Equal(t, "close", req.PositionFx)
		assert.Equal(t, 1.20, req.LimitPrice)

		json.NewEncoder(w).Encode(orderResponse{ID: "brk-123", State: "confirmed"})
	})

	spec := domain.OrderSpec{
		Position: domain.Position{
			Symbol: "AAPL", Strike: 150, OptionType: domain.OptionTypeCall,
			Expiration: "2026-09-18", Quantity: 1, EntryPremium: 1.00, OptionID: "opt-aapl",
		},
		LimitPrice: 1.20,
		TriggerKey: "trigger-key-1",
	}
	order, err := client.SubmitClose(context.Background(), "acct-1", spec)
	require.NoError(t, err)
	assert.Equal(t, "brk-123", order.ID)
	assert.Equal(t, domain.OrderKindLive, order.Kind)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
}

func TestOrderStatusMapping(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"queued":           domain.OrderStatusPending,
		"confirmed":        domain.OrderStatusConfirmed,
		"partially_filled": domain.OrderStatusPartiallyFilled,
		"filled":           domain.OrderStatusFilled,
		"cancelled":        domain.OrderStatusCancelled,
		"rejected":         domain.OrderStatusFailed,
	}
	for state, want := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(orderResponse{ID: "brk-123", State: state})
		})
		got, err := client.OrderStatus(context.Background(), "brk-123")
		require.NoError(t, err)
		assert.Equal(t, want, got, "state %q", state)
	}
}

func TestNotFoundMapsToDomainError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.OrderStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAPIErrorMessageSurfaces(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(apiError{Message: "insufficient buying power"})
	})

	err := client.CancelOrder(context.Background(), "brk-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient buying power")
}
