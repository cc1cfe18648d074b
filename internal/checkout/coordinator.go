// Package checkout turns a cart snapshot into a submitted sale and a
// receipt, with strict no-partial-effect behavior on failure.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/retailpoint/pos/internal/auth"
	"github.com/retailpoint/pos/internal/cart"
	"github.com/retailpoint/pos/internal/catalog"
	"github.com/retailpoint/pos/internal/domain"
)

const salesPath = "/api/v1/sales"

var (
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrMissingCustomer = errors.New("customer label is required")

	// ErrCheckoutFailed wraps any submission failure other than auth: the
	// sale did not commit, no stock was touched, and the cart is intact for
	// a user-initiated retry.
	ErrCheckoutFailed = errors.New("checkout failed")
)

// Coordinator submits sales through the authenticated client and applies
// the committed stock decrement to the catalog's cached snapshots.
//
// It never retries a submission on its own: the sale endpoint carries no
// idempotency key, so resubmitting a sale whose response was lost could
// commit it twice. Retry is a deliberate user action.
type Coordinator struct {
	client  *auth.Client
	catalog *catalog.Gateway
	log     *zap.Logger
}

// NewCoordinator creates a coordinator; log may be nil.
func NewCoordinator(client *auth.Client, gateway *catalog.Gateway, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{client: client, catalog: gateway, log: log}
}

type saleItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type saleRequest struct {
	Customer      string          `json:"customer"`
	PaymentMethod string          `json:"payment_method"`
	Items         []saleItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
}

type saleResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkout snapshots the cart, submits the sale, and on success decrements
// the cached stock per line and returns the receipt. The caller clears the
// cart after a successful checkout; on any failure the cart is untouched.
//
// Auth failures (ErrUnauthenticated, ErrSessionExpired) propagate unchanged
// so the register can force a logout; everything else wraps ErrCheckoutFailed.
func (c *Coordinator) Checkout(ctx context.Context, engine *cart.Engine, paymentMethod, customerLabel string) (*domain.Receipt, error) {
	if engine.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(customerLabel) == "" {
		return nil, ErrMissingCustomer
	}

	// Snapshot before any I/O: the live cart stays mutable while the
	// submission is in flight.
	snap := engine.Snapshot()

	resp, err := c.client.Do(ctx, auth.Request{
		Method: http.MethodPost,
		Path:   salesPath,
		Body:   buildSaleRequest(snap, paymentMethod, customerLabel),
	})
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrSessionExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: server returned status %d", ErrCheckoutFailed, resp.StatusCode)
	}

	var sale saleResponse
	if err := json.Unmarshal(resp.Body, &sale); err != nil {
		// The sale committed; a malformed body only costs us the server's
		// id and timestamp.
		c.log.Warn("decoding sale response", zap.Error(err))
	}

	for _, l := range snap.Lines {
		c.catalog.ApplyStockDecrement(ctx, l.ProductID, l.Quantity)
	}

	receipt := buildReceipt(snap, sale, paymentMethod, customerLabel)
	c.log.Info("sale committed",
		zap.String("receipt_id", receipt.ID),
		zap.Int("lines", len(receipt.Lines)),
		zap.String("total", receipt.Totals.GrandTotal.StringFixed(2)))
	return receipt, nil
}

func buildSaleRequest(snap domain.Snapshot, paymentMethod, customerLabel string) saleRequest {
	items := make([]saleItem, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		items = append(items, saleItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Total:     l.Total(),
		})
	}
	return saleRequest{
		Customer:      customerLabel,
		PaymentMethod: paymentMethod,
		Items:         items,
		Subtotal:      snap.Totals.Subtotal,
		Discount:      snap.Totals.DiscountAmount,
		Tax:           snap.Totals.TaxAmount,
		Total:         snap.Totals.GrandTotal,
	}
}

func buildReceipt(snap domain.Snapshot, sale saleResponse, paymentMethod, customerLabel string) *domain.Receipt {
	id := sale.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := sale.CreatedAt
	if createdAt.IsZero() {
		// No server timestamp: fall back to when the cart was snapshotted.
		createdAt = snap.CapturedAt
	}

	lines := make([]domain.ReceiptLine, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		lines = append(lines, domain.ReceiptLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Total:     l.Total(),
		})
	}
	return &domain.Receipt{
		ID:            id,
		CreatedAt:     createdAt,
		CustomerLabel: customerLabel,
		PaymentMethod: paymentMethod,
		Lines:         lines,
		Totals:        snap.Totals,
	}
}
