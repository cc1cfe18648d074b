package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Line is one product entry in the cart. UnitPrice is captured at add time
// and does not track later catalog changes.
type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Total returns quantity times the captured unit price.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals is the monetary breakdown of a cart. GrandTotal always equals
// Subtotal - DiscountAmount + TaxAmount exactly.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount"`
	TaxAmount      decimal.Decimal `json:"tax"`
	GrandTotal     decimal.Decimal `json:"total"`
}

// Snapshot is the full cart state captured at checkout time. The live cart
// may keep changing while the submission is in flight; the snapshot does not.
type Snapshot struct {
	Lines      []Line
	Totals     Totals
	CapturedAt time.Time
}
