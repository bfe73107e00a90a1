package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erp/fulfillment/internal/infrastructure/config"
)

const defaultAvailabilityKeyPrefix = "availability:"

// RedisAvailabilityCache implements AvailabilityCache with one Redis hash
// per SKU, keyed availability:{SKU} with a field per warehouse. Each write
// refreshes the hash's TTL.
type RedisAvailabilityCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisAvailabilityCache connects to Redis and verifies the connection
func NewRedisAvailabilityCache(cfg config.RedisConfig) (*RedisAvailabilityCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisAvailabilityCacheWithClient(client, "", cfg.KeyTTL), nil
}

// NewRedisAvailabilityCacheWithClient wraps an existing client
func NewRedisAvailabilityCacheWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisAvailabilityCache {
	if keyPrefix == "" {
		keyPrefix = defaultAvailabilityKeyPrefix
	}
	return &RedisAvailabilityCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *RedisAvailabilityCache) key(sku string) string {
	return c.keyPrefix + normalizeSKU(sku)
}

// Set writes the record's level and refreshes the SKU's TTL
func (c *RedisAvailabilityCache) Set(ctx context.Context, sku, warehouseID string, level StockLevel) error {
	payload, err := json.Marshal(level)
	if err != nil {
		return fmt.Errorf("encode stock level: %w", err)
	}
	key := c.key(sku)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, warehouseID, string(payload))
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache availability of %s: %w", key, err)
	}
	return nil
}

// Get returns stock levels keyed by warehouse id
func (c *RedisAvailabilityCache) Get(ctx context.Context, sku string) (map[string]StockLevel, error) {
	key := c.key(sku)
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read availability of %s: %w", key, err)
	}
	out := make(map[string]StockLevel, len(fields))
	for wh, raw := range fields {
		var level StockLevel
		if err := json.Unmarshal([]byte(raw), &level); err != nil {
			return nil, fmt.Errorf("decode stock level %s/%s: %w", key, wh, err)
		}
		out[wh] = level
	}
	return out, nil
}

// Delete drops the SKU's hash
func (c *RedisAvailabilityCache) Delete(ctx context.Context, sku string) error {
	if err := c.client.Del(ctx, c.key(sku)).Err(); err != nil {
		return fmt.Errorf("failed to delete availability of %s: %w", sku, err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisAvailabilityCache) Close() error {
	return c.client.Close()
}

var _ AvailabilityCache = (*RedisAvailabilityCache)(nil)
