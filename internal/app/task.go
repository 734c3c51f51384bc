// Package app implements the task-runner services exposed by the
// server and the CLI. Each service translates loosely typed action
// parameters into calls on the domain use-cases defined in package
// core.
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

// Invocation is the outcome of one action run.
type Invocation struct {
	ID      string       `json:"id"`
	Action  string       `json:"action"`
	Outputs core.Outputs `json:"outputs"`
}

// TaskService dispatches action invocations through the registry.
type TaskService struct {
	registry *core.ActionRegistry
	metrics  *Metrics
	log      *slog.Logger
}

// NewTaskService returns a TaskService with the controller actions
// registered on registry.
func NewTaskService(registry *core.ActionRegistry, argocd *ArgoCDActions, metrics *Metrics) (*TaskService, error) {
	if err := argocd.Register(registry); err != nil {
		return nil, err
	}
	return &TaskService{
		registry: registry,
		metrics:  metrics,
		log:      slog.Default().With("component", "task-service"),
	}, nil
}

// Invoke runs action with the raw JSON params and tags the run with a
// fresh invocation id.
func (s *TaskService) Invoke(ctx context.Context, action string, params json.RawMessage) (*Invocation, error) {
	id := uuid.NewString()
	log := s.log.With("invocation", id, "action", action)

	start := time.Now()
	outputs, err := s.registry.Dispatch(ctx, action, params)

	result := "success"
	if err != nil {
		result = "failure"
	}
	s.metrics.actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))

	if err != nil {
		log.Warn("action failed", "duration", time.Since(start), "error", err)
		return nil, err
	}

	log.Info("action completed", "duration", time.Since(start))
	if outputs == nil {
		outputs = core.Outputs{}
	}
	return &Invocation{ID: id, Action: action, Outputs: outputs}, nil
}

// Actions lists the registered action tags.
func (s *TaskService) Actions() []string {
	return s.registry.Actions()
}
