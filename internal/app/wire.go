package app

import "github.com/google/wire"

// ProviderSet is the Wire provider set for the application services.
var ProviderSet = wire.NewSet(
	NewMetrics,
	NewArgoCDActions,
	NewTaskService,
)
