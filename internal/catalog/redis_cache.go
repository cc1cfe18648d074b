package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retailpoint/pos/internal/domain"
)

// RedisCache implements Cache on a shared redis instance, for deployments
// where several registers in a branch share one snapshot cache. TTLs are
// jittered so entries for a busy catalog do not expire in lockstep.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

func (r *RedisCache) Get(ctx context.Context, productID int64) (*domain.Product, error) {
	data, err := r.client.Get(ctx, cacheKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &product, nil
}

func (r *RedisCache) Set(ctx context.Context, product *domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(product.ID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, productID int64) error {
	if err := r.client.Del(ctx, cacheKey(productID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// decrementRetries bounds the optimistic-transaction retry loop; a conflict
// means another register committed a sale for the same product in the same
// instant.
const decrementRetries = 100

func (r *RedisCache) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	key := cacheKey(productID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("redis get failed: %w", err)
		}

		var product domain.Product
		if err := json.Unmarshal(data, &product); err != nil {
			return fmt.Errorf("unmarshal product failed: %w", err)
		}
		product.AvailableStock -= quantity
		if product.AvailableStock < 0 {
			product.AvailableStock = 0
		}
		out, err := json.Marshal(&product)
		if err != nil {
			return fmt.Errorf("marshal product failed: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		return err
	}

	// WATCH the key so a concurrent decrement aborts the EXEC instead of
	// being overwritten.
	for i := 0; i < decrementRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("decrement stock for product %d: too many conflicts", productID)
}

func cacheKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}
