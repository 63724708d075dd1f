package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

const DefaultMemoryItems = 10_000

// Memory is a process-local TTL tier. Writes are admitted asynchronously,
// so a Get immediately after Set may miss until Wait returns.
type Memory struct {
	c *ristretto.Cache
}

func NewMemory(maxItems int64) (*Memory, error) {
	if maxItems <= 0 {
		maxItems = DefaultMemoryItems
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init memory cache: %w", err)
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Get(key string) (any, bool) {
	return m.c.Get(key)
}

// Set stores v for ttl. A non-positive ttl stores nothing.
func (m *Memory) Set(key string, v any, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return m.c.SetWithTTL(key, v, 1, ttl)
}

func (m *Memory) Delete(key string) {
	m.c.Del(key)
}

// Wait blocks until pending writes are applied.
func (m *Memory) Wait() {
	m.c.Wait()
}

func (m *Memory) Close() {
	m.c.Close()
}
