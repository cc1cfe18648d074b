package domain

import "github.com/shopspring/decimal"

// Product is a point-in-time snapshot of a catalog item. It is immutable
// once fetched into a cart; a new fetch is required to observe updated
// stock or price.
type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"price"`
	AvailableStock int             `json:"stock"`
	Category       string          `json:"category"`
}
