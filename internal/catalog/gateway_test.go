package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/pos/internal/auth"
	"github.com/retailpoint/pos/internal/domain"
)

const testToken = "valid-token"

// fakeCatalogAPI serves a fixed product list behind bearer auth.
type fakeCatalogAPI struct {
	products map[int64]map[string]any
	hits     atomic.Int32
}

func newFakeCatalogAPI() *fakeCatalogAPI {
	return &fakeCatalogAPI{
		products: map[int64]map[string]any{
			7: {"id": 7, "name": "espresso beans 1kg", "price": "18.50", "stock": 12, "category": "coffee"},
		},
	}
}

func (f *fakeCatalogAPI) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/products/{id}", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.hits.Add(1)
		id, _ := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		product, ok := f.products[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(product)
	})
	return r
}

func newTestGateway(t *testing.T, api *fakeCatalogAPI, cache Cache) *Gateway {
	t.Helper()
	srv := httptest.NewServer(api.router())
	t.Cleanup(srv.Close)

	tokens := auth.NewStore(nil, nil)
	tokens.Replace(domain.TokenPair{AccessToken: testToken, RefreshToken: "r"})
	client := auth.NewClient(srv.URL, tokens, srv.Client(), nil)
	return NewGateway(client, cache, nil)
}

func TestFetchProduct(t *testing.T) {
	api := newFakeCatalogAPI()
	g := newTestGateway(t, api, nil)

	product, err := g.FetchProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), product.ID)
	assert.Equal(t, "espresso beans 1kg", product.Name)
	assert.True(t, product.UnitPrice.Equal(decimal.RequireFromString("18.50")))
	assert.Equal(t, 12, product.AvailableStock)
	assert.Equal(t, "coffee", product.Category)
}

func TestFetchProduct_NotFound(t *testing.T) {
	api := newFakeCatalogAPI()
	g := newTestGateway(t, api, nil)

	_, err := g.FetchProduct(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchProduct_AuthErrorPropagates(t *testing.T) {
	api := newFakeCatalogAPI()
	srv := httptest.NewServer(api.router())
	t.Cleanup(srv.Close)

	tokens := auth.NewStore(nil, nil) // empty: no session
	client := auth.NewClient(srv.URL, tokens, srv.Client(), nil)
	g := NewGateway(client, nil, nil)

	_, err := g.FetchProduct(context.Background(), 7)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestFetchProduct_CachedSnapshotSkipsNetwork(t *testing.T) {
	api := newFakeCatalogAPI()
	cache := NewMemoryCache(time.Minute)
	g := newTestGateway(t, api, cache)

	seeded := &domain.Product{ID: 7, Name: "seeded", UnitPrice: decimal.New(5, 0), AvailableStock: 3}
	require.NoError(t, cache.Set(context.Background(), seeded))

	product, err := g.FetchProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "seeded", product.Name)
	assert.Equal(t, int32(0), api.hits.Load())
}

func TestFetchProduct_PopulatesCache(t *testing.T) {
	api := newFakeCatalogAPI()
	cache := NewMemoryCache(time.Minute)
	g := newTestGateway(t, api, cache)

	_, err := g.FetchProduct(context.Background(), 7)
	require.NoError(t, err)

	// The cache set runs off the request path.
	require.Eventually(t, func() bool {
		_, err := cache.Get(context.Background(), 7)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	_, err = g.FetchProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.hits.Load())
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	api := newFakeCatalogAPI()
	cache := NewMemoryCache(time.Minute)
	g := newTestGateway(t, api, cache)
	ctx := context.Background()

	_, err := g.FetchProduct(ctx, 7)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := cache.Get(ctx, 7)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	g.Invalidate(ctx, 7)
	_, err = cache.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = g.FetchProduct(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.hits.Load())
}

func TestApplyStockDecrement(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	g := NewGateway(nil, cache, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &domain.Product{ID: 7, AvailableStock: 5}))

	g.ApplyStockDecrement(ctx, 7, 3)
	product, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, product.AvailableStock)

	// Never below zero.
	g.ApplyStockDecrement(ctx, 7, 10)
	product, err = cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, product.AvailableStock)

	// Unknown product is a no-op.
	g.ApplyStockDecrement(ctx, 99, 1)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	cache := NewMemoryCache(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &domain.Product{ID: 1, AvailableStock: 1}))
	_, err := cache.Get(ctx, 1)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = cache.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_DecrementStock(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	assert.ErrorIs(t, cache.DecrementStock(ctx, 1, 1), ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, &domain.Product{ID: 1, AvailableStock: 5}))
	require.NoError(t, cache.DecrementStock(ctx, 1, 3))
	product, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, product.AvailableStock)

	require.NoError(t, cache.DecrementStock(ctx, 1, 10))
	product, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, product.AvailableStock)
}

func TestMemoryCache_DecrementStockConcurrent(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, &domain.Product{ID: 1, AvailableStock: 50}))

	const registers = 10
	var wg sync.WaitGroup
	for i := 0; i < registers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cache.DecrementStock(ctx, 1, 1)
		}()
	}
	wg.Wait()

	product, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 40, product.AvailableStock, "no decrement may be lost")
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &domain.Product{ID: 1}))
	require.NoError(t, cache.Delete(ctx, 1))
	_, err := cache.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_CopiesOnRead(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &domain.Product{ID: 1, AvailableStock: 5}))
	first, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	first.AvailableStock = 0

	second, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, second.AvailableStock)
}
