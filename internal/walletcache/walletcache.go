// Package walletcache keeps recently resolved wallets in process memory so
// repeated lookups for the same user skip the store and the decrypt step.
package walletcache

import (
	"time"

	"github.com/ggonzalez94/agent-wallet/internal/cache"
)

const DefaultTTL = time.Hour

type Cache[V any] struct {
	mem *cache.Memory
	ttl time.Duration
}

// New wraps mem with a fixed TTL. A non-positive ttl falls back to DefaultTTL.
func New[V any](mem *cache.Memory, ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{mem: mem, ttl: ttl}
}

func key(userID string) string {
	return "wallet:" + userID
}

func (c *Cache[V]) Get(userID string) (V, bool) {
	var zero V
	raw, ok := c.mem.Get(key(userID))
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) Set(userID string, v V) {
	c.mem.Set(key(userID), v, c.ttl)
}

func (c *Cache[V]) Invalidate(userID string) {
	c.mem.Delete(key(userID))
}

// Wait blocks until pending writes are visible to Get.
func (c *Cache[V]) Wait() {
	c.mem.Wait()
}

func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}
