package walletcache

import (
	"testing"
	"time"

	"github.com/ggonzalez94/agent-wallet/internal/cache"
)

type entry struct {
	Address string
}

func newTestCache(t *testing.T, ttl time.Duration) *Cache[entry] {
	t.Helper()
	mem, err := cache.NewMemory(100)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	t.Cleanup(mem.Close)
	return New[entry](mem, ttl)
}

func TestSetGetInvalidate(t *testing.T) {
	c := newTestCache(t, time.Minute)
	if _, ok := c.Get("u1"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("u1", entry{Address: "0xabc"})
	c.Wait()
	got, ok := c.Get("u1")
	if !ok || got.Address != "0xabc" {
		t.Fatalf("expected hit, got %+v %v", got, ok)
	}
	if _, ok := c.Get("u2"); ok {
		t.Fatal("expected entries to be scoped per user")
	}
	c.Invalidate("u1")
	if _, ok := c.Get("u1"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestEntriesExpire(t *testing.T) {
	c := newTestCache(t, 100*time.Millisecond)
	c.Set("u1", entry{Address: "0xabc"})
	c.Wait()
	time.Sleep(150 * time.Millisecond)
	if _, ok := c.Get("u1"); ok {
		t.Fatal("expected miss after ttl")
	}
}

func TestDefaultTTL(t *testing.T) {
	c := newTestCache(t, 0)
	if c.TTL() != DefaultTTL {
		t.Fatalf("expected default ttl %s, got %s", DefaultTTL, c.TTL())
	}
}
