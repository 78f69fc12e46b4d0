package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusValidated OrderStatus = "VALIDATED"
	OrderStatusEnriched  OrderStatus = "ENRICHED"
	OrderStatusPersisted OrderStatus = "PERSISTED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

const (
	maxCustomerLen = 120
	maxSKULen      = 50
)

// RawOrder is the wire shape a producer submits. Nothing beyond JSON
// decoding has been checked; ValidateOrder turns it into an Order.
type RawOrder struct {
	ID          int64     `json:"id"`
	Customer    string    `json:"customer"`
	Items       []RawItem `json:"items"`
	SubmittedAt string    `json:"submitted_at"`
}

type RawItem struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Order is a validated order moving through the pipeline. A single
// worker owns it from dequeue to persistence; it is never shared.
type Order struct {
	ID          int64
	Customer    string
	Items       []Item
	SubmittedAt time.Time
	Status      OrderStatus

	// Set by the calculator once every item is enriched.
	HashID   string
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

type Item struct {
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal

	// Enrichment-derived fields, zero until the catalog lookup runs.
	ProductID    int64
	ProductName  string
	Category     string
	CatalogPrice decimal.Decimal
	Enriched     bool

	LineTotal decimal.Decimal
}

// EffectiveUnitPrice is the price totals are computed from: the catalog
// price once the item is enriched, the submitted price otherwise.
func (i Item) EffectiveUnitPrice() decimal.Decimal {
	if i.Enriched {
		return i.CatalogPrice
	}
	return i.UnitPrice
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: field %q: %s", e.Field, e.Reason)
}

// ValidateOrder checks the structural rules for a submission and builds
// the validated Order. It is pure: no I/O, first violation wins.
func ValidateOrder(raw RawOrder) (*Order, error) {
	if raw.ID <= 0 {
		return nil, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	if raw.Customer == "" {
		return nil, &ValidationError{Field: "customer", Reason: "must not be empty"}
	}
	if len(raw.Customer) > maxCustomerLen {
		return nil, &ValidationError{Field: "customer", Reason: fmt.Sprintf("must be at most %d characters", maxCustomerLen)}
	}
	if len(raw.Items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "order must include at least one item"}
	}

	items := make([]Item, 0, len(raw.Items))
	for idx, ri := range raw.Items {
		field := fmt.Sprintf("items[%d]", idx)
		if ri.SKU == "" {
			return nil, &ValidationError{Field: field + ".sku", Reason: "must not be empty"}
		}
		if len(ri.SKU) > maxSKULen {
			return nil, &ValidationError{Field: field + ".sku", Reason: fmt.Sprintf("must be at most %d characters", maxSKULen)}
		}
		if ri.Quantity <= 0 {
			return nil, &ValidationError{Field: field + ".quantity", Reason: "must be a positive integer"}
		}
		if ri.UnitPrice < 0 {
			return nil, &ValidationError{Field: field + ".unit_price", Reason: "must not be negative"}
		}
		items = append(items, Item{
			SKU:       ri.SKU,
			Quantity:  ri.Quantity,
			UnitPrice: decimal.NewFromFloat(ri.UnitPrice).Round(2),
		})
	}

	submittedAt, err := time.Parse(time.RFC3339, raw.SubmittedAt)
	if err != nil {
		return nil, &ValidationError{Field: "submitted_at", Reason: "must be an ISO-8601 timestamp"}
	}

	return &Order{
		ID:          raw.ID,
		Customer:    raw.Customer,
		Items:       items,
		SubmittedAt: submittedAt,
		Status:      OrderStatusValidated,
	}, nil
}
