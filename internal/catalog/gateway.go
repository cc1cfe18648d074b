package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/retailpoint/pos/internal/auth"
	"github.com/retailpoint/pos/internal/domain"
)

var ErrNotFound = errors.New("product not found")

// Gateway reads product snapshots through the authenticated client.
// Concurrent fetches for the same product coalesce into one request, and
// results are cached until their TTL runs out.
type Gateway struct {
	client *auth.Client
	cache  Cache
	sfg    singleflight.Group
	log    *zap.Logger
}

// NewGateway creates a gateway. A nil cache selects an in-memory cache with
// the default TTL; log may be nil.
func NewGateway(client *auth.Client, cache Cache, log *zap.Logger) *Gateway {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{client: client, cache: cache, log: log}
}

// FetchProduct returns the current snapshot for a product. Auth failures
// propagate unchanged; an unknown product maps to ErrNotFound.
func (g *Gateway) FetchProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	v, err, _ := g.sfg.Do(strconv.FormatInt(productID, 10), func() (any, error) {
		product, err := g.cache.Get(ctx, productID)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			g.log.Warn("catalog cache get", zap.Error(err))
		}

		resp, err := g.client.Do(ctx, auth.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/api/v1/products/%d", productID),
		})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("product %d: unexpected status %d", productID, resp.StatusCode)
		}

		product = &domain.Product{}
		if err := json.Unmarshal(resp.Body, product); err != nil {
			return nil, fmt.Errorf("decode product %d: %w", productID, err)
		}

		go func() {
			if err := g.cache.Set(context.Background(), product); err != nil {
				g.log.Warn("catalog cache set", zap.Error(err))
			}
		}()

		return product, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Product), nil
}

// ApplyStockDecrement lowers the cached stock for a product after a
// committed sale, flooring at zero. A cache miss means there is nothing to
// update; the next fetch sees the server's count.
func (g *Gateway) ApplyStockDecrement(ctx context.Context, productID int64, quantity int) {
	err := g.cache.DecrementStock(ctx, productID, quantity)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		g.log.Warn("catalog stock decrement", zap.Error(err))
	}
}

// Invalidate drops a cached snapshot so the next fetch goes to the server.
func (g *Gateway) Invalidate(ctx context.Context, productID int64) {
	if err := g.cache.Delete(ctx, productID); err != nil {
		g.log.Warn("catalog cache invalidate", zap.Error(err))
	}
}
