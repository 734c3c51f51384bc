package app

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

// Action tags served by ArgoCDActions.
const (
	ActionSync = "argocd.sync"
	ActionWait = "argocd.wait"
	ActionGet  = "argocd.get"
)

// defaultPolicy waits for a healthy, synced application with no
// operation in flight.
var defaultPolicy = core.TerminationPolicy{WatchHealth: true, WatchSync: true, WatchOperation: true}

// ArgoCDActions adapts the sync use-case to the action registry.
type ArgoCDActions struct {
	sync    *core.SyncUseCase
	metrics *Metrics
}

func NewArgoCDActions(sync *core.SyncUseCase, metrics *Metrics) *ArgoCDActions {
	return &ArgoCDActions{sync: sync, metrics: metrics}
}

// Register adds every controller action to registry.
func (a *ArgoCDActions) Register(registry *core.ActionRegistry) error {
	for tag, fn := range map[string]core.ActionHandlerFunc{
		ActionSync: a.handleSync,
		ActionWait: a.handleWait,
		ActionGet:  a.handleGet,
	} {
		if err := registry.Register(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

type retryParams struct {
	Attempts int             `json:"attempts"`
	Backoff  metav1.Duration `json:"backoff"`
	MaxDelay metav1.Duration `json:"maxDelay"`
}

type syncParams struct {
	Name          string                  `json:"name"`
	Revision      string                  `json:"revision"`
	DryRun        bool                    `json:"dryRun"`
	Prune         bool                    `json:"prune"`
	Resources     []string                `json:"resources"`
	Strategy      *core.SyncStrategy      `json:"strategy"`
	RetryStrategy *core.RetryStrategy     `json:"retryStrategy"`
	Wait          bool                    `json:"wait"`
	Timeout       metav1.Duration         `json:"timeout"`
	Policy        *core.TerminationPolicy `json:"policy"`
	Retry         *retryParams            `json:"retry"`
}

type waitParams struct {
	Name            string                  `json:"name"`
	ResourceVersion string                  `json:"resourceVersion"`
	Timeout         metav1.Duration         `json:"timeout"`
	Policy          *core.TerminationPolicy `json:"policy"`
}

type getParams struct {
	Name    string `json:"name"`
	Refresh bool   `json:"refresh"`
}

// SyncOptions is the typed form of the argocd.sync parameters, shared
// with the one-shot CLI command.
type SyncOptions struct {
	Builder *core.SyncRequestBuilder
	Wait    bool
	Timeout time.Duration
	Policy  core.TerminationPolicy
	Retry   core.RetryPolicy
}

// NewSyncOptions builds SyncOptions from loosely typed inputs.
func NewSyncOptions(name, revision string, dryRun, prune bool, resources []string) (*SyncOptions, error) {
	refs := make([]core.ResourceRef, 0, len(resources))
	for _, r := range resources {
		ref, err := core.ParseResourceRef(r)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	b := core.NewSyncRequestBuilder(name).
		Revision(revision).
		DryRun(dryRun).
		Prune(prune).
		Resources(refs...)

	return &SyncOptions{
		Builder: b,
		Policy:  defaultPolicy,
		Retry:   core.RetryPolicy{Attempts: 1},
	}, nil
}

// Sync triggers the sync and, when requested, waits for the
// application to reconcile. With more than one attempt configured the
// sync-and-wait is retried, and between attempts the application is
// probed in case it settled regardless.
func (a *ArgoCDActions) Sync(ctx context.Context, opts *SyncOptions) (*core.Application, error) {
	if !opts.Wait {
		return a.sync.Sync(ctx, opts.Builder)
	}

	start := time.Now()
	defer func() {
		a.metrics.waitTime.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("action", ActionSync)))
	}()

	if opts.Retry.Attempts <= 1 {
		return a.sync.SyncAndWait(ctx, opts.Builder, opts.Policy, opts.Timeout)
	}

	probe := a.sync.SettledProbe(opts.Builder.Name(), opts.Builder.TargetRevision(), opts.Policy)
	return core.Retry(ctx, opts.Retry,
		func(ctx context.Context) (*core.Application, error) {
			return a.sync.SyncAndWait(ctx, opts.Builder, opts.Policy, opts.Timeout)
		},
		[]core.Fallback[*core.Application]{probe},
		core.IsPermanent,
	)
}

func (a *ArgoCDActions) handleSync(ctx context.Context, raw json.RawMessage) (core.Outputs, error) {
	var p syncParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	opts, err := NewSyncOptions(p.Name, p.Revision, p.DryRun, p.Prune, p.Resources)
	if err != nil {
		return nil, err
	}
	opts.Builder.Strategy(p.Strategy).RetryStrategy(p.RetryStrategy)
	opts.Wait = p.Wait
	opts.Timeout = p.Timeout.Duration
	if p.Policy != nil {
		opts.Policy = *p.Policy
	}
	if p.Retry != nil {
		if p.Retry.Backoff.Duration < 0 || p.Retry.MaxDelay.Duration < 0 {
			return nil, &core.ErrInvalidInput{Field: "retry", Message: "backoff and maxDelay must not be negative"}
		}
		opts.Retry = core.RetryPolicy{
			Attempts:  p.Retry.Attempts,
			BaseDelay: p.Retry.Backoff.Duration,
			MaxDelay:  p.Retry.MaxDelay.Duration,
		}
	}

	app, err := a.Sync(ctx, opts)
	if err != nil {
		return nil, err
	}
	return applicationOutputs(app), nil
}

func (a *ArgoCDActions) handleWait(ctx context.Context, raw json.RawMessage) (core.Outputs, error) {
	var p waitParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	policy := defaultPolicy
	if p.Policy != nil {
		policy = *p.Policy
	}

	start := time.Now()
	app, err := a.sync.Wait(ctx, core.WaitParams{
		Name:            p.Name,
		ResourceVersion: p.ResourceVersion,
		Policy:          policy,
		Timeout:         p.Timeout.Duration,
	})
	a.metrics.waitTime.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("action", ActionWait)))
	if err != nil {
		return nil, err
	}
	return applicationOutputs(app), nil
}

func (a *ArgoCDActions) handleGet(ctx context.Context, raw json.RawMessage) (core.Outputs, error) {
	var p getParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	app, err := a.sync.Get(ctx, p.Name, p.Refresh)
	if err != nil {
		return nil, err
	}
	return applicationOutputs(app), nil
}

// decodeParams strictly decodes an action parameter object. Empty
// params decode to the zero value.
func decodeParams(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &core.ErrInvalidInput{Field: "params", Message: err.Error()}
	}
	return nil
}

// applicationOutputs exposes the settled snapshot and the fields
// workflows most often branch on.
func applicationOutputs(app *core.Application) core.Outputs {
	return core.Outputs{
		"application":     app,
		"resourceVersion": app.ResourceVersion(),
		"health":          string(app.Status.Health.Status),
		"sync":            string(app.Status.Sync.Status),
		"revision":        app.Status.Sync.Revision,
	}
}
