package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/repository/order_repo"
)

type pgProcessedOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewProcessedOrderRepository(db *sql.DB, l *zap.Logger) order_repo.ProcessedOrderRepository {
	return &pgProcessedOrderRepository{db: db, logger: l}
}

func (r *pgProcessedOrderRepository) Upsert(ctx context.Context, order *order_repo.ProcessedOrder) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		r.logger.Error("Failed to marshal order items", zap.String("hash_id", order.HashID), zap.Error(err))
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO processed_orders
			(hash_id, order_id, customer, submitted_at, status, failure_reason,
			 subtotal, discount, total, items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (hash_id) DO UPDATE SET
			order_id       = EXCLUDED.order_id,
			customer       = EXCLUDED.customer,
			submitted_at   = EXCLUDED.submitted_at,
			status         = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			subtotal       = EXCLUDED.subtotal,
			discount       = EXCLUDED.discount,
			total          = EXCLUDED.total,
			items          = EXCLUDED.items,
			updated_at     = EXCLUDED.updated_at`
	_, err = r.db.ExecContext(ctx, query,
		order.HashID, order.OrderID, order.Customer, order.SubmittedAt,
		order.Status, order.FailureReason,
		order.Subtotal, order.Discount, order.Total, items, now)
	if err != nil {
		r.logger.Error("Failed to upsert processed order", zap.String("hash_id", order.HashID), zap.Error(err))
		return fmt.Errorf("failed to upsert processed order %s: %w", order.HashID, err)
	}
	r.logger.Debug("Processed order upserted", zap.String("hash_id", order.HashID), zap.String("status", string(order.Status)))
	return nil
}

const selectColumns = `hash_id, order_id, customer, submitted_at, status, failure_reason,
	subtotal, discount, total, items, created_at, updated_at`

func (r *pgProcessedOrderRepository) GetByHashID(ctx context.Context, hashID string) (*order_repo.ProcessedOrder, error) {
	query := `SELECT ` + selectColumns + ` FROM processed_orders WHERE hash_id = $1`
	row := r.db.QueryRowContext(ctx, query, hashID)

	order, err := scanProcessedOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order_repo.ErrNotFound
		}
		r.logger.Error("Failed to get processed order", zap.String("hash_id", hashID), zap.Error(err))
		return nil, fmt.Errorf("failed to get processed order %s: %w", hashID, err)
	}
	return order, nil
}

func (r *pgProcessedOrderRepository) List(ctx context.Context, limit, offset int) ([]*order_repo.ProcessedOrder, error) {
	query := `SELECT ` + selectColumns + ` FROM processed_orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list processed orders", zap.Error(err))
		return nil, fmt.Errorf("failed to list processed orders: %w", err)
	}
	defer rows.Close()

	var orders []*order_repo.ProcessedOrder
	for rows.Next() {
		order, err := scanProcessedOrder(rows)
		if err != nil {
			r.logger.Error("Failed to scan processed order row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan processed order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcessedOrder(row rowScanner) (*order_repo.ProcessedOrder, error) {
	order := &order_repo.ProcessedOrder{}
	var items []byte
	err := row.Scan(
		&order.HashID, &order.OrderID, &order.Customer, &order.SubmittedAt,
		&order.Status, &order.FailureReason,
		&order.Subtotal, &order.Discount, &order.Total,
		&items, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items for %s: %w", order.HashID, err)
		}
	}
	return order, nil
}
