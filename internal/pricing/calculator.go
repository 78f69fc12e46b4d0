// Package pricing computes order totals and the content-based identity
// of a processed order. Everything here is pure and deterministic:
// the same logical order always yields the same totals and hash.
package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderflow/internal/domain"
)

// Orders above this subtotal get the discount applied.
var (
	discountThreshold = decimal.NewFromInt(500)
	discountRate      = decimal.NewFromFloat(0.10)
)

type Result struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	HashID   string
}

// Calculate fills in line totals and returns the order totals plus the
// deterministic hash identifier. Prices confirmed by enrichment take
// precedence over submitted prices.
func Calculate(order *domain.Order) Result {
	subtotal := decimal.Zero
	for i := range order.Items {
		item := &order.Items[i]
		price := item.EffectiveUnitPrice().Round(2)
		item.LineTotal = price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		subtotal = subtotal.Add(item.LineTotal)
	}
	subtotal = subtotal.Round(2)

	discount := decimal.Zero
	if subtotal.GreaterThan(discountThreshold) {
		discount = subtotal.Mul(discountRate).Round(2)
	}
	total := subtotal.Sub(discount).Round(2)

	return Result{
		Subtotal: subtotal,
		Discount: discount,
		Total:    total,
		HashID:   HashID(order),
	}
}

// HashID is a sha256 over a canonical serialization of the order's
// identity-bearing fields. Field order, timestamp normalization (UTC
// RFC3339) and price formatting (two decimal places) are fixed so that
// the same logical order hashes identically regardless of how the
// payload arrived.
func HashID(order *domain.Order) string {
	var b strings.Builder
	b.WriteString(order.Customer)
	b.WriteByte('|')
	b.WriteString(order.SubmittedAt.UTC().Format(time.RFC3339))
	for _, item := range order.Items {
		b.WriteByte('|')
		b.WriteString(item.SKU)
		b.WriteByte(':')
		fmt.Fprintf(&b, "%d", item.Quantity)
		b.WriteByte(':')
		b.WriteString(item.EffectiveUnitPrice().StringFixed(2))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// FallbackHashID identifies an order that never passed validation, so a
// failed record can still be stored and looked up. It hashes the raw
// fields as submitted; identical bad submissions converge to one row.
func FallbackHashID(raw domain.RawOrder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "raw|%d|%s|%s", raw.ID, raw.Customer, raw.SubmittedAt)
	for _, item := range raw.Items {
		fmt.Fprintf(&b, "|%s:%d:%.2f", item.SKU, item.Quantity, item.UnitPrice)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
