package cache

import (
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/infrastructure/config"
)

// NewAvailabilityCache returns a Redis-backed cache, or an in-memory one
// when Redis cannot be reached and allowFallback is set
func NewAvailabilityCache(cfg config.RedisConfig, logger *zap.Logger, allowFallback bool) (AvailabilityCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	redisCache, err := NewRedisAvailabilityCache(cfg)
	if err == nil {
		logger.Info("Using Redis availability cache", zap.String("addr", cfg.Addr()))
		return redisCache, nil
	}
	if !allowFallback {
		return nil, err
	}
	logger.Warn("Redis unavailable, falling back to in-memory availability cache",
		zap.String("addr", cfg.Addr()),
		zap.Error(err),
	)
	return NewInMemoryAvailabilityCache(cfg.KeyTTL), nil
}
