// Package cart owns the in-progress sale: line items against live stock
// counts, discount and tax rates, and the fixed-point totals computation.
package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailpoint/pos/internal/domain"
)

var (
	// ErrOutOfStock rejects adding a product whose snapshot shows no stock.
	ErrOutOfStock = errors.New("product is out of stock")

	// ErrInsufficientStock rejects a quantity that would exceed the stock
	// known at add time. The mutation is rejected whole, never partially
	// applied.
	ErrInsufficientStock = errors.New("insufficient stock for requested quantity")

	// ErrInvalidRate rejects a discount outside [0,100] or a negative tax.
	ErrInvalidRate = errors.New("rate out of range")

	// ErrLineNotFound rejects a quantity change for a product not in the cart.
	ErrLineNotFound = errors.New("product not in cart")
)

var oneHundred = decimal.NewFromInt(100)

// Engine holds one register's open sale. It is owned by a single session
// and is not safe for concurrent use; every mutation runs to completion
// before the next starts, and every rejected mutation leaves the cart
// untouched.
type Engine struct {
	lines []*line
	index map[int64]*line

	discountPercent decimal.Decimal
	taxPercent      decimal.Decimal
}

// line pins the product snapshot taken at add time; its stock count is the
// ceiling for every later quantity change.
type line struct {
	product  domain.Product
	quantity int
}

func NewEngine() *Engine {
	return &Engine{index: make(map[int64]*line)}
}

// AddItem puts a product in the cart or increases its quantity.
//
// A new line's quantity is clamped to available stock; a product with no
// stock is rejected with ErrOutOfStock. Increasing an existing line is
// strict: if the combined quantity would exceed the stock ceiling the whole
// increase is rejected with ErrInsufficientStock and the line keeps its
// quantity, so the register can warn instead of silently capping.
func (e *Engine) AddItem(product *domain.Product, requestedQty int) error {
	if requestedQty < 1 {
		requestedQty = 1
	}

	if l, ok := e.index[product.ID]; ok {
		next := l.quantity + requestedQty
		if next > l.product.AvailableStock {
			return fmt.Errorf("%w: product %d has %d in stock, cart already holds %d",
				ErrInsufficientStock, product.ID, l.product.AvailableStock, l.quantity)
		}
		l.quantity = next
		return nil
	}

	if product.AvailableStock == 0 {
		return fmt.Errorf("%w: product %d", ErrOutOfStock, product.ID)
	}
	if requestedQty > product.AvailableStock {
		requestedQty = product.AvailableStock
	}
	l := &line{product: *product, quantity: requestedQty}
	e.lines = append(e.lines, l)
	e.index[product.ID] = l
	return nil
}

// SetQuantity replaces a line's quantity. Below 1 removes the line; above
// the stock ceiling is rejected.
func (e *Engine) SetQuantity(productID int64, quantity int) error {
	l, ok := e.index[productID]
	if !ok {
		return fmt.Errorf("%w: product %d", ErrLineNotFound, productID)
	}
	if quantity < 1 {
		e.RemoveItem(productID)
		return nil
	}
	if quantity > l.product.AvailableStock {
		return fmt.Errorf("%w: product %d has %d in stock",
			ErrInsufficientStock, productID, l.product.AvailableStock)
	}
	l.quantity = quantity
	return nil
}

// RemoveItem drops a line; no-op when the product is not in the cart.
func (e *Engine) RemoveItem(productID int64) {
	if _, ok := e.index[productID]; !ok {
		return
	}
	delete(e.index, productID)
	for i, l := range e.lines {
		if l.product.ID == productID {
			e.lines = append(e.lines[:i], e.lines[i+1:]...)
			return
		}
	}
}

// SetDiscountPercent replaces the cart-wide discount; valid range [0,100].
func (e *Engine) SetDiscountPercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(oneHundred) {
		return fmt.Errorf("%w: discount %s%%", ErrInvalidRate, p)
	}
	e.discountPercent = p
	return nil
}

// SetTaxPercent replaces the tax rate; any non-negative value is valid.
func (e *Engine) SetTaxPercent(p decimal.Decimal) error {
	if p.IsNegative() {
		return fmt.Errorf("%w: tax %s%%", ErrInvalidRate, p)
	}
	e.taxPercent = p
	return nil
}

// Totals computes the monetary breakdown under fixed-point arithmetic.
// Discount and tax amounts are rounded to cents, and the grand total is
// derived from the rounded amounts so the identity
// grand = subtotal - discount + tax holds exactly.
func (e *Engine) Totals() domain.Totals {
	subtotal := decimal.Zero
	for _, l := range e.lines {
		subtotal = subtotal.Add(l.product.UnitPrice.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	discount := subtotal.Mul(e.discountPercent).Div(oneHundred).Round(2)
	tax := subtotal.Sub(discount).Mul(e.taxPercent).Div(oneHundred).Round(2)
	grand := subtotal.Sub(discount).Add(tax)
	return domain.Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		GrandTotal:     grand,
	}
}

// Clear empties the cart and resets both rates to zero.
func (e *Engine) Clear() {
	e.lines = nil
	e.index = make(map[int64]*line)
	e.discountPercent = decimal.Decimal{}
	e.taxPercent = decimal.Decimal{}
}

// Lines returns the cart contents in insertion order.
func (e *Engine) Lines() []domain.Line {
	out := make([]domain.Line, 0, len(e.lines))
	for _, l := range e.lines {
		out = append(out, domain.Line{
			ProductID: l.product.ID,
			Name:      l.product.Name,
			UnitPrice: l.product.UnitPrice,
			Quantity:  l.quantity,
		})
	}
	return out
}

// Snapshot captures lines and totals for checkout; later cart mutations do
// not affect the returned copy.
func (e *Engine) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		Lines:      e.Lines(),
		Totals:     e.Totals(),
		CapturedAt: time.Now(),
	}
}

func (e *Engine) IsEmpty() bool { return len(e.lines) == 0 }

func (e *Engine) Len() int { return len(e.lines) }
