// Package cmd defines the Cobra subcommands (server, sync, version)
// and their Wire provider sets. It bridges configuration, dependency
// injection, and the transport/application layers.
package cmd

import (
	"github.com/google/wire"

	"github.com/otterscale/otterscale-tasks/internal/cmd/server"
)

// ProviderSet is the Wire provider set for the CLI layer. It exposes
// the Server constructor, its handler and background listeners, and
// the one-shot task bundle.
var ProviderSet = wire.NewSet(
	NewTasks,
	server.NewServer,
	server.NewHandler,
	server.ProvideBackgroundListeners,
)
