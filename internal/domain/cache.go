package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetModel retrieves a cached scoring model.
	// Returns nil, nil if the model is not cached.
	GetModel(ctx context.Context, tenantID string, modelID string) (*ScoringModel, error)

	// SetModel caches a scoring model.
	SetModel(ctx context.Context, tenantID string, model *ScoringModel, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for per-product simulation volume in a time window.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// GetCounter returns the current value of a counter, 0 once its window
	// has expired.
	GetCounter(ctx context.Context, tenantID string, key string) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `mapstructure:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `mapstructure:"localMaxSize"`
	LocalTTL     time.Duration `mapstructure:"localTtl"`

	// ModelTTL bounds how long a scoring model stays cached.
	ModelTTL time.Duration `mapstructure:"modelTtl"`

	// Redis settings (Pro tier)
	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
	RedisDB       int    `mapstructure:"redisDb"`

	// Two-phase settings
	EnableTwoPhase bool `mapstructure:"enableTwoPhase"` // If true, check local first, then Redis
}
