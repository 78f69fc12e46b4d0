package domain

import (
	"errors"
	"strings"
	"testing"
)

func validRaw() RawOrder {
	return RawOrder{
		ID:       123,
		Customer: "ACME Corp",
		Items: []RawItem{
			{SKU: "P001", Quantity: 3, UnitPrice: 10},
			{SKU: "P002", Quantity: 5, UnitPrice: 20},
		},
		SubmittedAt: "2026-01-15T10:30:00Z",
	}
}

func TestValidateOrder_OK(t *testing.T) {
	order, err := ValidateOrder(validRaw())
	if err != nil {
		t.Fatalf("ValidateOrder: %v", err)
	}
	if order.Status != OrderStatusValidated {
		t.Fatalf("expected status %s, got %s", OrderStatusValidated, order.Status)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	if got := order.Items[0].UnitPrice.StringFixed(2); got != "10.00" {
		t.Fatalf("expected unit price 10.00, got %s", got)
	}
	if order.SubmittedAt.IsZero() {
		t.Fatal("expected submitted_at to be parsed")
	}
}

func TestValidateOrder_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RawOrder)
		field  string
	}{
		{"zero id", func(r *RawOrder) { r.ID = 0 }, "id"},
		{"negative id", func(r *RawOrder) { r.ID = -7 }, "id"},
		{"empty customer", func(r *RawOrder) { r.Customer = "" }, "customer"},
		{"customer too long", func(r *RawOrder) { r.Customer = strings.Repeat("x", 121) }, "customer"},
		{"no items", func(r *RawOrder) { r.Items = nil }, "items"},
		{"empty sku", func(r *RawOrder) { r.Items[1].SKU = "" }, "items[1].sku"},
		{"zero quantity", func(r *RawOrder) { r.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"negative quantity", func(r *RawOrder) { r.Items[0].Quantity = -2 }, "items[0].quantity"},
		{"negative price", func(r *RawOrder) { r.Items[0].UnitPrice = -0.5 }, "items[0].unit_price"},
		{"bad timestamp", func(r *RawOrder) { r.SubmittedAt = "yesterday" }, "submitted_at"},
		{"empty timestamp", func(r *RawOrder) { r.SubmittedAt = "" }, "submitted_at"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			tc.mutate(&raw)
			_, err := ValidateOrder(raw)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestValidateOrder_ZeroPriceAllowed(t *testing.T) {
	raw := validRaw()
	raw.Items[0].UnitPrice = 0
	if _, err := ValidateOrder(raw); err != nil {
		t.Fatalf("zero unit price should be valid: %v", err)
	}
}

func TestEffectiveUnitPrice(t *testing.T) {
	order, err := ValidateOrder(validRaw())
	if err != nil {
		t.Fatalf("ValidateOrder: %v", err)
	}
	item := order.Items[0]
	if got := item.EffectiveUnitPrice().StringFixed(2); got != "10.00" {
		t.Fatalf("expected submitted price before enrichment, got %s", got)
	}
	item.Enriched = true
	item.CatalogPrice = item.UnitPrice.Add(item.UnitPrice)
	if got := item.EffectiveUnitPrice().StringFixed(2); got != "20.00" {
		t.Fatalf("expected catalog price after enrichment, got %s", got)
	}
}
