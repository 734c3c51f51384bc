package core

import (
	"context"
	"time"
)

// CacheEvictor represents a cache that supports periodic eviction of
// expired entries, such as TokenCache. The server runs every evictor
// as part of its managed lifecycle.
type CacheEvictor interface {
	StartEvictionLoop(ctx context.Context, interval time.Duration)
}
