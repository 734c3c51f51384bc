// Package providers aggregates all infrastructure-layer implementations
// into a single Wire provider set.
package providers

import (
	"github.com/google/wire"

	"github.com/otterscale/otterscale-tasks/internal/providers/argocd"
)

// ProviderSet is the Wire provider set for all external adapters.
var ProviderSet = wire.NewSet(
	argocd.ProviderSet,
)
