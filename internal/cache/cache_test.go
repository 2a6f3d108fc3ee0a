package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		// 'b' should be evicted
		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		// 'a' should still be there
		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("PolicyRequestRoundTrip", func(t *testing.T) {
		pr := &domain.PolicyRequest{
			ID:            "pr-001",
			CustomerID:    "cust-001",
			ProductID:     "prod-001",
			Category:      domain.CategoryAuto,
			InsuredAmount: 250_000,
			Status:        domain.StatusReceived,
			Version:       1,
		}

		if err := cache.SetPolicyRequest(ctx, pr, time.Minute); err != nil {
			t.Fatalf("SetPolicyRequest failed: %v", err)
		}

		got, err := cache.GetPolicyRequest(ctx, "pr-001")
		if err != nil {
			t.Fatalf("GetPolicyRequest failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected cached policy request")
		}
		if got.CustomerID != pr.CustomerID || got.Status != pr.Status {
			t.Errorf("round trip mismatch: %+v", got)
		}
	})

	t.Run("PolicyRequestMiss", func(t *testing.T) {
		got, err := cache.GetPolicyRequest(ctx, "missing")
		if err != nil {
			t.Fatalf("GetPolicyRequest failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for cache miss, got %+v", got)
		}
	})

	t.Run("CounterWindow", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			count, err := cache.IncrementCounter(ctx, "submissions:cust-001", 50*time.Millisecond)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if count != i {
				t.Errorf("expected count %d, got %d", i, count)
			}
		}

		// Window expiry resets the counter
		time.Sleep(60 * time.Millisecond)
		count, err := cache.IncrementCounter(ctx, "submissions:cust-001", 50*time.Millisecond)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected reset to 1 after window, got %d", count)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		size, capacity := cache.Stats()
		if capacity != 100 {
			t.Errorf("expected capacity 100, got %d", capacity)
		}
		if size == 0 {
			t.Error("expected non-empty cache")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 50,
		}

		c, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		_, ok := c.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
