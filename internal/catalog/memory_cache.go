package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/retailpoint/pos/internal/domain"
)

// DefaultTTL is how long a cached snapshot is served before a refetch.
const DefaultTTL = 5 * time.Minute

// MemoryCache implements Cache with in-process storage. Entries expire
// lazily on read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[int64]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	product   domain.Product
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory snapshot cache. ttl <= 0 selects
// DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
	}
}

func (c *MemoryCache) Get(_ context.Context, productID int64) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[productID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	product := entry.product
	return &product, nil
}

func (c *MemoryCache) Set(_ context.Context, product *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[product.ID] = memoryEntry{
		product:   *product,
		expiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, productID)
	return nil
}

func (c *MemoryCache) DecrementStock(_ context.Context, productID int64, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[productID]
	if !ok || time.Now().After(entry.expiresAt) {
		return ErrCacheMiss
	}
	entry.product.AvailableStock -= quantity
	if entry.product.AvailableStock < 0 {
		entry.product.AvailableStock = 0
	}
	c.entries[productID] = entry
	return nil
}
