package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new close order into the journal.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO close_orders (
			id, account_id, symbol, position_key, kind, status,
			limit_price, stop_price, quantity, submitted_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.AccountID, o.Symbol, o.PositionKey,
		string(o.Kind), string(o.Status),
		o.LimitPrice, o.StopPrice, o.Quantity, o.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus changes the status of a journaled order.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	const query = `UPDATE close_orders SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := s.pool.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByAccount returns the most recent orders for an account, newest first.
// A limit of zero or less means no limit.
func (s *OrderStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Order, error) {
	query := `
		SELECT id, account_id, symbol, position_key, kind, status,
		       limit_price, stop_price, quantity, submitted_at, updated_at
		FROM close_orders
		WHERE account_id = $1
		ORDER BY submitted_at DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for %s: %w", accountID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var kind, status string
		if err := rows.Scan(
			&o.ID, &o.AccountID, &o.Symbol, &o.PositionKey,
			&kind, &status,
			&o.LimitPrice, &o.StopPrice, &o.Quantity,
			&o.SubmittedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Kind = domain.OrderKind(kind)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
