// Package catalog is the read path for product snapshots: an authenticated
// fetch through the API client fronted by a snapshot cache.
package catalog

import (
	"context"
	"errors"

	"github.com/retailpoint/pos/internal/domain"
)

// Cache stores product snapshots keyed by product id.
//
// DecrementStock lowers the cached stock for a product, flooring at zero,
// and returns ErrCacheMiss when nothing is cached. It must be atomic with
// respect to concurrent decrements of the same product: registers sharing a
// cache commit sales independently, and a read-modify-write would lose
// updates.
type Cache interface {
	Get(ctx context.Context, productID int64) (*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, productID int64) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
}

var ErrCacheMiss = errors.New("cache miss")
