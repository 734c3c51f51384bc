package cmd

import (
	"github.com/otterscale/otterscale-tasks/internal/app"
	"github.com/otterscale/otterscale-tasks/internal/core"
)

// Tasks bundles the services used by the one-shot commands.
type Tasks struct {
	ArgoCD  *app.ArgoCDActions
	Version *core.VersionUseCase
}

func NewTasks(argocd *app.ArgoCDActions, version *core.VersionUseCase) *Tasks {
	return &Tasks{ArgoCD: argocd, Version: version}
}

type TasksInjector func() (*Tasks, func(), error)
