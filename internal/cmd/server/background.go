package server

import (
	"context"
	"time"

	"github.com/otterscale/otterscale-tasks/internal/core"
	"github.com/otterscale/otterscale-tasks/internal/transport"
)

// tokenEvictionInterval is the interval at which the token cache
// evictor removes expired credentials.
const tokenEvictionInterval = time.Minute

// BackgroundListeners are the non-HTTP components that share the
// server's managed lifecycle.
type BackgroundListeners []transport.Listener

// ProvideBackgroundListeners constructs the background transport
// listeners that participate in the server's managed lifecycle.
func ProvideBackgroundListeners(tokens *core.TokenCache) BackgroundListeners {
	return BackgroundListeners{
		&cacheEvictorListener{name: "token-cache", cache: tokens, interval: tokenEvictionInterval},
	}
}

// cacheEvictorListener adapts a core.CacheEvictor to the
// transport.Listener interface so it participates in the managed
// lifecycle alongside other servers.
type cacheEvictorListener struct {
	name     string
	cache    core.CacheEvictor
	interval time.Duration
}

func (l *cacheEvictorListener) Start(ctx context.Context) error {
	l.cache.StartEvictionLoop(ctx, l.interval)
	return nil
}

func (l *cacheEvictorListener) Stop(_ context.Context) error {
	return nil // evictor stops when its context is cancelled
}
