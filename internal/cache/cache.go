// Package cache is the secondary key-value store: a non-authoritative
// accelerator next to SQLite. Every write here is best-effort; callers log
// failures and continue, and nothing correctness-critical lives here.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// RegisterSlug mirrors slug -> endpoint id with a TTL equal to the
	// endpoint's remaining lifetime, so the entry self-expires.
	RegisterSlug(ctx context.Context, slug, endpointID string, ttl time.Duration) error
	// LookupSlug resolves a mirrored slug. A miss returns "" with no error.
	LookupSlug(ctx context.Context, slug string) (string, error)
	EvictSlug(ctx context.Context, slug string) error

	// BumpActivity increments the rolling per-slug request counter and
	// refreshes its 24h TTL.
	BumpActivity(ctx context.Context, slug string) error

	Ping(ctx context.Context) error
	Close() error
}

// Noop satisfies Cache when no Redis is configured. The durable store is
// the source of truth, so running without a cache only loses the fast path.
type Noop struct{}

func (Noop) RegisterSlug(context.Context, string, string, time.Duration) error { return nil }
func (Noop) LookupSlug(context.Context, string) (string, error)                { return "", nil }
func (Noop) EvictSlug(context.Context, string) error                           { return nil }
func (Noop) BumpActivity(context.Context, string) error                        { return nil }
func (Noop) Ping(context.Context) error                                        { return nil }
func (Noop) Close() error                                                      { return nil }
