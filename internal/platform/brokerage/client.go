// Package brokerage is the HTTP client for the live trading platform. It
// fills the same ports the simulator does, so live mode is a wiring change
// rather than a code path.
package brokerage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/optionsentry/optionsentry/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client talks to the brokerage REST API. Implements domain.PriceSource,
// domain.PositionLoader, domain.OrderSubmitter, domain.OrderStatusSource,
// and domain.OrderCanceler.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client against the given API base URL. The token is
// sent as a bearer credential on every request.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger.With(slog.String("component", "brokerage_client")),
	}
}

// Load fetches the open long option positions for an account.
func (c *Client) Load(ctx context.Context, accountID string) ([]domain.Position, error) {
	var resp positionsResponse
	path := fmt.Sprintf("/v1/accounts/%s/options/positions", accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, fmt.Errorf("brokerage: load positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		positions = append(positions, p.toDomain())
	}
	return positions, nil
}

// GetPrice fetches the current mark price for one option instrument.
func (c *Client) GetPrice(ctx context.Context, optionID string) (float64, error) {
	var resp quoteResponse
	path := fmt.Sprintf("/v1/options/quotes/%s", optionID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return 0, fmt.Errorf("brokerage: quote %s: %w", optionID, err)
	}
	if resp.MarkPrice <= 0 {
		return 0, fmt.Errorf("brokerage: quote %s: %w", optionID, domain.ErrNoPrice)
	}
	return resp.MarkPrice, nil
}

// SubmitClose places a sell-to-close order. The order's TriggerKey travels as
// an idempotency header so a retried submission cannot double-close.
func (c *Client) SubmitClose(ctx context.Context, accountID string, spec domain.OrderSpec) (domain.Order, error) {
	req := orderRequest{
		Symbol:     spec.Position.Symbol,
		OptionID:   spec.Position.OptionID,
		Side:       "sell",
		PositionFx: "close",
		Quantity:   spec.Position.Quantity,
		LimitPrice: spec.LimitPrice,
		StopPrice:  spec.StopPrice,
	}
	var resp orderResponse
	path := fmt.Sprintf("/v1/accounts/%s/orders", accountID)
	if err := c.do(ctx, http.MethodPost, path, req, spec.TriggerKey, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("brokerage: submit close: %w", err)
	}

	c.logger.Info("close order placed",
		slog.String("order_id", resp.ID),
		slog.String("account_id", accountID),
		slog.String("symbol", spec.Position.Symbol),
	)
	return resp.toDomain(accountID, spec), nil
}

// OrderStatus fetches the brokerage-side status of an order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	var resp orderResponse
	path := fmt.Sprintf("/v1/orders/%s", orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return "", fmt.Errorf("brokerage: order status %s: %w", orderID, err)
	}
	return mapStatus(resp.State), nil
}

// CancelOrder requests cancellation of an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/v1/orders/%s/cancel", orderID)
	if err := c.do(ctx, http.MethodPost, path, nil, "", nil); err != nil {
		return fmt.Errorf("brokerage: cancel %s: %w", orderID, err)
	}
	return nil
}

// do runs one JSON request. A non-nil idempotencyKey is forwarded in the
// Idempotency-Key header; out may be nil when the body is irrelevant.
func (c *Client) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
