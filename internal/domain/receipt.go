package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptLine is one committed line of a sale.
type ReceiptLine struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Total     decimal.Decimal
}

// Receipt is produced once per successful checkout and never mutated
// afterwards; the next checkout produces a new one.
type Receipt struct {
	ID            string
	CreatedAt     time.Time
	CustomerLabel string
	PaymentMethod string
	Lines         []ReceiptLine
	Totals        Totals
}
