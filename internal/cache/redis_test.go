package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func TestRedisCache(t *testing.T) {
	mr := newMiniredis(t)
	cache, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	tenantID := "bank-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
		if !mr.Exists("kestrel:bank-001:key1") {
			t.Error("expected tenant-prefixed key in redis")
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil || val != nil {
			t.Errorf("expected nil, nil for miss, got %v, %v", val, err)
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), time.Second)
		mr.FastForward(2 * time.Second)

		val, _ := cache.Get(ctx, tenantID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if mr.Exists("kestrel:bank-001:key2") {
			t.Error("expected key removed")
		}
	})

	t.Run("ModelCache", func(t *testing.T) {
		if err := cache.SetModel(ctx, tenantID, testModel(), time.Minute); err != nil {
			t.Fatalf("SetModel failed: %v", err)
		}
		if !mr.Exists("kestrel:bank-001:model:model-001") {
			t.Error("expected model key in redis")
		}

		m, err := cache.GetModel(ctx, tenantID, "model-001")
		if err != nil {
			t.Fatalf("GetModel failed: %v", err)
		}
		if m == nil || m.Name != "Personal loan" || len(m.Variables) != 2 {
			t.Errorf("unexpected model: %+v", m)
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := time.Hour

		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, tenantID, "product-001:hourly", window)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		}

		if n, err := cache.GetCounter(ctx, tenantID, "product-001:hourly"); err != nil || n != 3 {
			t.Errorf("expected GetCounter 3, got %d (%v)", n, err)
		}
		if n, _ := cache.GetCounter(ctx, tenantID, "unknown"); n != 0 {
			t.Errorf("expected 0 for unknown counter, got %d", n)
		}

		if ttl := mr.TTL("kestrel:bank-001:counter:product-001:hourly"); ttl != window {
			t.Errorf("expected window TTL %v, got %v", window, ttl)
		}

		mr.FastForward(window + time.Second)
		got, _ := cache.IncrementCounter(ctx, tenantID, "product-001:hourly", window)
		if got != 1 {
			t.Errorf("expected counter reset to 1, got %d", got)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := cache.IncrementCounter(ctx, "", "key", time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestRedisUnavailable(t *testing.T) {
	mr := newMiniredis(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisCache(addr, "", 0); err == nil {
		t.Error("expected error when redis is unreachable")
	}
}

func TestTwoPhaseCache(t *testing.T) {
	mr := newMiniredis(t)
	ctx := context.Background()
	tenantID := "bank-001"

	c, err := New(domain.CacheConfig{
		Type:           "redis",
		RedisAddr:      mr.Addr(),
		EnableTwoPhase: true,
		LocalMaxSize:   10,
		LocalTTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	tp, ok := c.(*TwoPhaseCache)
	if !ok {
		t.Fatalf("expected TwoPhaseCache, got %T", c)
	}

	t.Run("WritesBothLayers", func(t *testing.T) {
		if err := tp.SetModel(ctx, tenantID, testModel(), time.Hour); err != nil {
			t.Fatalf("SetModel failed: %v", err)
		}
		if !mr.Exists("kestrel:bank-001:model:model-001") {
			t.Error("expected model in L2")
		}
		if size, _ := tp.Stats(); size != 1 {
			t.Errorf("expected 1 entry in L1, got %d", size)
		}
	})

	t.Run("L2HitPopulatesL1", func(t *testing.T) {
		remote, err := NewRedisCache(mr.Addr(), "", 0)
		if err != nil {
			t.Fatalf("NewRedisCache failed: %v", err)
		}
		defer remote.Close()

		model := testModel()
		model.ID = "model-002"
		if err := remote.SetModel(ctx, tenantID, model, time.Hour); err != nil {
			t.Fatalf("SetModel failed: %v", err)
		}

		got, err := tp.GetModel(ctx, tenantID, "model-002")
		if err != nil || got == nil {
			t.Fatalf("expected L2 hit, got %v (%v)", got, err)
		}
		if size, _ := tp.Stats(); size != 2 {
			t.Errorf("expected L1 populated, size %d", size)
		}
	})

	t.Run("DeleteBothLayers", func(t *testing.T) {
		if err := tp.Delete(ctx, tenantID, ModelKey("model-001")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		got, _ := tp.GetModel(ctx, tenantID, "model-001")
		if got != nil {
			t.Error("expected model removed from both layers")
		}
	})

	t.Run("CountersUseRedis", func(t *testing.T) {
		n, err := tp.IncrementCounter(ctx, tenantID, "product-001:hourly", time.Hour)
		if err != nil || n != 1 {
			t.Errorf("expected 1, got %d (%v)", n, err)
		}
		if !mr.Exists("kestrel:bank-001:counter:product-001:hourly") {
			t.Error("expected counter in redis")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := tp.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}
