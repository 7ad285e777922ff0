// Package cache is the ephemeral accelerator in front of the link store.
//
// Entries are JSON envelopes carrying the value and an absolute expiry.
// Readers treat an entry past its expiry as absent and delete it on sight,
// independent of the backend's own eviction. Nothing stored here is
// authoritative: callers must be able to rebuild every entry from Postgres.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultTTL applies when Set is called with a non-positive TTL.
const DefaultTTL = time.Hour

// Cache is the key-value contract used by the service layer.
type Cache interface {
	// Get returns the raw JSON value stored under key. A missing or expired
	// entry yields ok == false with a nil error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set overwrites key with value, expiring ttl from now.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Flush drops every entry.
	Flush(ctx context.Context) error
}

type envelope struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (e envelope) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// Nop is a Cache that stores nothing; every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }

func (Nop) Delete(context.Context, string) error { return nil }

func (Nop) Flush(context.Context) error { return nil }
