package catalog

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func setup(t *testing.T) (*Catalog, domain.Repository, *cache.LRUCache) {
	t.Helper()

	tmp, err := os.CreateTemp("", "kestrel-catalog-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmp.Close()
	t.Cleanup(func() { os.Remove(tmp.Name()) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmp.Name()})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	return New(repo, lru, time.Minute), repo, lru
}

func TestCatalog(t *testing.T) {
	cat, repo, lru := setup(t)
	ctx := context.Background()
	tenantID := "bank-001"

	model := &domain.ScoringModel{
		ID:   "model-001",
		Name: "Personal loan",
		Variables: []domain.Variable{
			{ID: "income", Name: "Income", Weight: 100, Min: 0, Max: 1000, FavorableDirection: domain.DirectionIncreasing},
		},
	}
	if err := repo.SaveModel(ctx, tenantID, model); err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}
	if err := repo.SaveProduct(ctx, tenantID, &domain.CreditProduct{ID: "product-001", Name: "Consumer", ScoringModelID: "model-001"}); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}

	t.Run("ModelPopulatesCache", func(t *testing.T) {
		m, err := cat.Model(ctx, tenantID, "model-001")
		if err != nil {
			t.Fatalf("Model failed: %v", err)
		}
		if m.Name != "Personal loan" {
			t.Errorf("unexpected model %+v", m)
		}
		cached, _ := lru.GetModel(ctx, tenantID, "model-001")
		if cached == nil {
			t.Error("expected model to be cached")
		}
	})

	t.Run("Resolve", func(t *testing.T) {
		m, err := cat.Resolve(ctx, tenantID, "product-001", "")
		if err != nil || m.ID != "model-001" {
			t.Errorf("expected product model, got %v (%v)", m, err)
		}
		m, err = cat.Resolve(ctx, tenantID, "", "model-001")
		if err != nil || m.ID != "model-001" {
			t.Errorf("expected model, got %v (%v)", m, err)
		}
		if _, err := cat.Resolve(ctx, tenantID, "", ""); err == nil {
			t.Error("expected error without product or model")
		}
		if _, err := cat.Resolve(ctx, tenantID, "product-404", ""); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Invalidate", func(t *testing.T) {
		cat.Invalidate(ctx, tenantID, "model-001")
		cached, _ := lru.GetModel(ctx, tenantID, "model-001")
		if cached != nil {
			t.Error("expected cache entry removed")
		}
	})

	t.Run("WithoutCache", func(t *testing.T) {
		plain := New(repo, nil, 0)
		if _, err := plain.Model(ctx, tenantID, "model-001"); err != nil {
			t.Errorf("Model failed: %v", err)
		}
		plain.Invalidate(ctx, tenantID, "model-001")
	})
}
