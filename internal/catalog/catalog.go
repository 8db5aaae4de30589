// Package catalog resolves scoring models and credit products, reading
// models through the cache before falling back to the repository.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Catalog is a cache-aside reader for models and products.
type Catalog struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// New creates a catalog. cache may be nil.
func New(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{repo: repo, cache: cache, ttl: ttl}
}

// Model returns a scoring model, served from cache when possible.
func (c *Catalog) Model(ctx context.Context, tenantID, modelID string) (*domain.ScoringModel, error) {
	if c.cache != nil {
		m, err := c.cache.GetModel(ctx, tenantID, modelID)
		if err != nil {
			slog.Warn("model cache read failed",
				"tenant_id", tenantID,
				"model_id", modelID,
				"error", err,
			)
		}
		if m != nil {
			return m, nil
		}
	}

	m, err := c.repo.GetModel(ctx, tenantID, modelID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetModel(ctx, tenantID, m, c.ttl); err != nil {
			slog.Warn("model cache write failed",
				"tenant_id", tenantID,
				"model_id", modelID,
				"error", err,
			)
		}
	}
	return m, nil
}

// ProductModel returns a credit product and the model that scores it.
func (c *Catalog) ProductModel(ctx context.Context, tenantID, productID string) (*domain.CreditProduct, *domain.ScoringModel, error) {
	p, err := c.repo.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, nil, err
	}
	if p.ScoringModelID == "" {
		return nil, nil, fmt.Errorf("%w: product %s has no scoring model", repository.ErrInvalidInput, productID)
	}

	m, err := c.Model(ctx, tenantID, p.ScoringModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load model %s of product %s: %w", p.ScoringModelID, productID, err)
	}
	return p, m, nil
}

// Resolve loads the model for a request naming a product, a model, or both.
// A product takes precedence.
func (c *Catalog) Resolve(ctx context.Context, tenantID, productID, modelID string) (*domain.ScoringModel, error) {
	switch {
	case productID != "":
		_, m, err := c.ProductModel(ctx, tenantID, productID)
		return m, err
	case modelID != "":
		return c.Model(ctx, tenantID, modelID)
	default:
		return nil, fmt.Errorf("%w: product_id or model_id is required", repository.ErrInvalidInput)
	}
}

// Invalidate drops a cached model after it changed.
func (c *Catalog) Invalidate(ctx context.Context, tenantID, modelID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, tenantID, cache.ModelKey(modelID)); err != nil {
		slog.Warn("model cache invalidation failed",
			"tenant_id", tenantID,
			"model_id", modelID,
			"error", err,
		)
	}
}
