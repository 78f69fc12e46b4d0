package order_repo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"orderflow/internal/domain"
)

var ErrNotFound = errors.New("processed order not found")

// ProcessedItem is the per-item snapshot stored with a processed order.
type ProcessedItem struct {
	SKU          string          `json:"sku"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ProductID    int64           `json:"product_id,omitempty"`
	ProductName  string          `json:"product_name,omitempty"`
	Category     string          `json:"category,omitempty"`
	CatalogPrice decimal.Decimal `json:"catalog_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// ProcessedOrder is the durable result of a pipeline pass, keyed by the
// content hash so identical resubmissions converge to one row. Failed
// orders are stored too, carrying their failure reason.
type ProcessedOrder struct {
	HashID        string
	OrderID       int64
	Customer      string
	SubmittedAt   time.Time
	Status        domain.OrderStatus
	FailureReason string
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Items         []ProcessedItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ProcessedOrderRepository interface {
	// Upsert writes the record, overwriting any existing row with the
	// same HashID. It is idempotent and durable before returning.
	Upsert(ctx context.Context, order *ProcessedOrder) error
	GetByHashID(ctx context.Context, hashID string) (*ProcessedOrder, error)
	List(ctx context.Context, limit, offset int) ([]*ProcessedOrder, error)
}
