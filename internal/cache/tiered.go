package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Tiered reads the memory tier first and falls back to an optional durable
// tier, promoting durable hits into memory for their remaining lifetime.
// Durable tier failures are logged and treated as misses.
type Tiered struct {
	memory  *Memory
	durable Durable
	log     zerolog.Logger
}

func NewTiered(memory *Memory, durable Durable, log zerolog.Logger) *Tiered {
	return &Tiered{memory: memory, durable: durable, log: log}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if t.memory != nil {
		if v, ok := t.memory.Get(key); ok {
			if b, ok := v.([]byte); ok {
				return b, true
			}
		}
	}
	if t.durable == nil {
		return nil, false
	}
	res, err := t.durable.Get(ctx, key)
	if err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("durable cache read failed")
		return nil, false
	}
	if !res.Hit {
		return nil, false
	}
	if t.memory != nil {
		t.memory.Set(key, res.Value, res.Remaining())
	}
	return res.Value, true
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if t.memory != nil {
		t.memory.Set(key, value, ttl)
	}
	if t.durable == nil {
		return
	}
	if err := t.durable.Set(ctx, key, value, ttl); err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("durable cache write failed")
	}
}

func (t *Tiered) Delete(ctx context.Context, key string) {
	if t.memory != nil {
		t.memory.Delete(key)
	}
	if t.durable == nil {
		return
	}
	if err := t.durable.Delete(ctx, key); err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("durable cache delete failed")
	}
}

// Close releases the memory tier and the durable tier.
func (t *Tiered) Close() error {
	if t.memory != nil {
		t.memory.Close()
	}
	if t.durable != nil {
		return t.durable.Close()
	}
	return nil
}
