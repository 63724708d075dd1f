// Package cache provides the short-lived caching tiers used for wallets and
// balances: a process-local memory tier and durable tiers backed by SQLite or
// Redis. An entry read after its TTL has elapsed is a miss in every tier.
package cache

import (
	"context"
	"time"
)

type Result struct {
	Hit   bool
	Value []byte
	Age   time.Duration
	TTL   time.Duration
}

// Remaining is the time left before the entry expires.
func (r Result) Remaining() time.Duration {
	left := r.TTL - r.Age
	if left < 0 {
		return 0
	}
	return left
}

// Durable is a cache tier that may outlive the process or be shared between processes.
type Durable interface {
	Get(ctx context.Context, key string) (Result, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
