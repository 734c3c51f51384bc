//go:build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/otterscale/otterscale-tasks/internal/app"
	"github.com/otterscale/otterscale-tasks/internal/cmd"
	"github.com/otterscale/otterscale-tasks/internal/cmd/server"
	"github.com/otterscale/otterscale-tasks/internal/config"
	"github.com/otterscale/otterscale-tasks/internal/core"
	"github.com/otterscale/otterscale-tasks/internal/handler"
	"github.com/otterscale/otterscale-tasks/internal/providers"
)

func wireServer(core.Version, *config.Config) (*server.Server, func(), error) {
	panic(wire.Build(
		cmd.ProviderSet,
		handler.ProviderSet,
		app.ProviderSet,
		core.ProviderSet,
		providers.ProviderSet,
	))
}

func wireTasks(*config.Config) (*cmd.Tasks, func(), error) {
	panic(wire.Build(
		cmd.ProviderSet,
		app.ProviderSet,
		core.ProviderSet,
		providers.ProviderSet,
	))
}
