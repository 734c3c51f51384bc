package argocd

import (
	"crypto/tls"

	"github.com/google/wire"

	"github.com/otterscale/otterscale-tasks/internal/config"
	"github.com/otterscale/otterscale-tasks/internal/core"
)

// ProviderSet is the Wire provider set for the controller adapter.
var ProviderSet = wire.NewSet(
	ProvideTokenCache,
	ProvideTokenSource,
	ProvideClient,
	NewApplicationRepo,
	wire.Bind(new(core.ApplicationRepo), new(*ApplicationRepo)),
	wire.Bind(new(core.ServerInfoRepo), new(*ApplicationRepo)),
)

// ProvideTokenCache builds the process token cache. Its eviction loop
// is started by the composition root.
func ProvideTokenCache(conf *config.Config) *core.TokenCache {
	return core.NewTokenCache(conf.ArgoCDTokenTTL())
}

func ProvideTokenSource(conf *config.Config, cache *core.TokenCache) core.TokenSource {
	key := core.CredentialKey{
		ClientID:  conf.ArgoCDAuthClientID(),
		Authority: conf.ArgoCDAuthAuthority(),
	}
	return core.NewCachedTokenSource(cache, key, StaticToken(conf.ArgoCDToken()))
}

func ProvideClient(conf *config.Config, tokens core.TokenSource) (*Client, error) {
	opts := []ClientOption{
		WithTokenSource(tokens),
		WithRequestTimeout(conf.ArgoCDRequestTimeout()),
	}
	if conf.ArgoCDInsecure() {
		opts = append(opts, WithTLSConfig(&tls.Config{InsecureSkipVerify: true})) //nolint:gosec // opt-in for lab installs
	}
	return NewClient(conf.ArgoCDServerURL(), opts...)
}
