package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tidybook/subsync/internal/subscription"
)

func testEntry(tenantID string, status subscription.Status) Entry {
	return Entry{
		Record: subscription.Record{
			TenantID: tenantID,
			Status:   status,
		},
		Effective: status,
		FetchedAt: time.Now(),
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	if _, hit, err := c.Get(ctx, "tenant-1"); err != nil || hit {
		t.Fatalf("Get(empty) = hit=%v err=%v, want miss", hit, err)
	}

	if err := c.Set(ctx, "tenant-1", testEntry("tenant-1", subscription.StatusActive)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	entry, hit, err := c.Get(ctx, "tenant-1")
	if err != nil || !hit {
		t.Fatalf("Get() = hit=%v err=%v, want hit", hit, err)
	}
	if entry.Effective != subscription.StatusActive {
		t.Errorf("effective = %q, want active", entry.Effective)
	}

	if err := c.Invalidate(ctx, "tenant-1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, hit, _ := c.Get(ctx, "tenant-1"); hit {
		t.Error("Get() after Invalidate() should miss")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	stale := testEntry("tenant-1", subscription.StatusActive)
	stale.FetchedAt = time.Now().Add(-2 * time.Minute)
	if err := c.Set(ctx, "tenant-1", stale); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, hit, _ := c.Get(ctx, "tenant-1"); hit {
		t.Error("entry older than TTL should miss")
	}
}

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCacheWithClient(client, "test:", time.Minute), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisCache(t)

	if _, hit, err := c.Get(ctx, "tenant-1"); err != nil || hit {
		t.Fatalf("Get(empty) = hit=%v err=%v, want miss", hit, err)
	}

	if err := c.Set(ctx, "tenant-1", testEntry("tenant-1", subscription.StatusTrial)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	entry, hit, err := c.Get(ctx, "tenant-1")
	if err != nil || !hit {
		t.Fatalf("Get() = hit=%v err=%v, want hit", hit, err)
	}
	if entry.Record.TenantID != "tenant-1" || entry.Effective != subscription.StatusTrial {
		t.Errorf("entry = %+v", entry)
	}

	if err := c.Invalidate(ctx, "tenant-1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, hit, _ := c.Get(ctx, "tenant-1"); hit {
		t.Error("Get() after Invalidate() should miss")
	}
}

func TestRedisCacheServerSideTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)

	if err := c.Set(ctx, "tenant-1", testEntry("tenant-1", subscription.StatusActive)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, hit, _ := c.Get(ctx, "tenant-1"); hit {
		t.Error("entry should have expired server-side")
	}
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)

	mr.Set("test:tenant-1", "{not json")

	if _, hit, err := c.Get(ctx, "tenant-1"); err != nil || hit {
		t.Errorf("corrupt entry = hit=%v err=%v, want clean miss", hit, err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	c, err := New(Config{Backend: "memory"})
	if err != nil {
		t.Fatalf("New(memory) error = %v", err)
	}
	c.Close()

	if _, err := New(Config{Backend: "redis"}); err == nil {
		t.Error("New(redis) without address should fail")
	}
	if _, err := New(Config{Backend: "bogus"}); err == nil {
		t.Error("New(bogus) should fail")
	}
}
