package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ApplicationRepo abstracts the remote controller's application API.
type ApplicationRepo interface {
	// Get fetches an application, forcing the controller to refresh
	// it first when refresh is set.
	Get(ctx context.Context, name string, refresh bool) (*Application, error)
	// Patch applies a JSON patch to the application.
	Patch(ctx context.Context, name string, patch []JSONPatchOperation) (*Application, error)
	// Sync triggers a synchronization and returns the resulting
	// snapshot including its new resourceVersion.
	Sync(ctx context.Context, name string, req *SyncRequest) (*Application, error)
	// Watch opens an event stream for the application starting at
	// resourceVersion. timeout is the idle read timeout of the
	// connection; zero disables it.
	Watch(ctx context.Context, name, resourceVersion string, timeout time.Duration) (ApplicationStream, error)
}

// JSONPatchOperation is a single RFC 6902 operation.
type JSONPatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

const targetRevisionPath = "/spec/source/targetRevision"

// SyncStrategy selects how the controller applies manifests.
type SyncStrategy struct {
	Apply *SyncStrategyApply `json:"apply,omitempty"`
	Hook  *SyncStrategyHook  `json:"hook,omitempty"`
}

type SyncStrategyApply struct {
	Force bool `json:"force,omitempty"`
}

type SyncStrategyHook struct {
	SyncStrategyApply
}

// RetryStrategy configures controller-side retries of a failed sync.
type RetryStrategy struct {
	Limit   int64    `json:"limit,omitempty"`
	Backoff *Backoff `json:"backoff,omitempty"`
}

type Backoff struct {
	Duration    string `json:"duration,omitempty"`
	Factor      *int64 `json:"factor,omitempty"`
	MaxDuration string `json:"maxDuration,omitempty"`
}

// SyncRequest is the body of a sync call.
type SyncRequest struct {
	Name          string         `json:"name"`
	DryRun        bool           `json:"dryRun"`
	Prune         bool           `json:"prune"`
	Resources     []ResourceRef  `json:"resources,omitempty"`
	Strategy      *SyncStrategy  `json:"strategy,omitempty"`
	RetryStrategy *RetryStrategy `json:"retryStrategy,omitempty"`
}

// SyncRequestBuilder assembles a SyncRequest together with the
// optional revision override patch.
type SyncRequestBuilder struct {
	name      string
	revision  string
	dryRun    bool
	prune     bool
	resources []ResourceRef
	strategy  *SyncStrategy
	retry     *RetryStrategy
}

// NewSyncRequestBuilder starts a request for the named application.
func NewSyncRequestBuilder(name string) *SyncRequestBuilder {
	return &SyncRequestBuilder{name: name}
}

// Name returns the target application name.
func (b *SyncRequestBuilder) Name() string {
	return b.name
}

// TargetRevision returns the revision override, if any.
func (b *SyncRequestBuilder) TargetRevision() string {
	return b.revision
}

func (b *SyncRequestBuilder) Revision(revision string) *SyncRequestBuilder {
	b.revision = revision
	return b
}

func (b *SyncRequestBuilder) DryRun(dryRun bool) *SyncRequestBuilder {
	b.dryRun = dryRun
	return b
}

func (b *SyncRequestBuilder) Prune(prune bool) *SyncRequestBuilder {
	b.prune = prune
	return b
}

func (b *SyncRequestBuilder) Resources(resources ...ResourceRef) *SyncRequestBuilder {
	b.resources = append(b.resources, resources...)
	return b
}

func (b *SyncRequestBuilder) Strategy(strategy *SyncStrategy) *SyncRequestBuilder {
	b.strategy = strategy
	return b
}

func (b *SyncRequestBuilder) RetryStrategy(retry *RetryStrategy) *SyncRequestBuilder {
	b.retry = retry
	return b
}

// Build validates the inputs and returns the revision patch (nil when
// no revision override was given) and the sync request.
func (b *SyncRequestBuilder) Build() ([]JSONPatchOperation, *SyncRequest, error) {
	if b.name == "" {
		return nil, nil, &ErrInvalidInput{Field: "name", Message: "application name is required"}
	}
	for i, r := range b.resources {
		if r.Kind == "" || r.Name == "" {
			return nil, nil, &ErrInvalidInput{Field: fmt.Sprintf("resources[%d]", i), Message: "kind and name are required"}
		}
	}

	var patch []JSONPatchOperation
	if b.revision != "" {
		patch = []JSONPatchOperation{{Op: "replace", Path: targetRevisionPath, Value: b.revision}}
	}

	req := &SyncRequest{
		Name:          b.name,
		DryRun:        b.dryRun,
		Prune:         b.prune,
		Resources:     b.resources,
		Strategy:      b.strategy,
		RetryStrategy: b.retry,
	}
	return patch, req, nil
}

// ParseResourceRef parses GROUP:KIND:[NAMESPACE/]NAME. The group may
// be empty for core resources.
func ParseResourceRef(s string) (ResourceRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ResourceRef{}, &ErrInvalidInput{Field: "resource", Message: fmt.Sprintf("%q must be GROUP:KIND:[NAMESPACE/]NAME", s)}
	}

	ref := ResourceRef{Group: parts[0], Kind: parts[1], Name: parts[2]}
	if ns, name, ok := strings.Cut(parts[2], "/"); ok {
		ref.Namespace, ref.Name = ns, name
	}
	if ref.Kind == "" || ref.Name == "" {
		return ResourceRef{}, &ErrInvalidInput{Field: "resource", Message: fmt.Sprintf("%q has an empty kind or name", s)}
	}
	return ref, nil
}

// SyncUseCase drives the patch, sync and wait sequence.
type SyncUseCase struct {
	apps    ApplicationRepo
	watcher *ReconciliationWatcher
}

func NewSyncUseCase(apps ApplicationRepo, watcher *ReconciliationWatcher) *SyncUseCase {
	return &SyncUseCase{
		apps:    apps,
		watcher: watcher,
	}
}

// Sync applies the optional revision override and triggers the sync.
// Errors from the repo are returned unmodified and never retried here.
func (uc *SyncUseCase) Sync(ctx context.Context, b *SyncRequestBuilder) (*Application, error) {
	patch, req, err := b.Build()
	if err != nil {
		return nil, err
	}

	if patch != nil {
		if _, err := uc.apps.Patch(ctx, req.Name, patch); err != nil {
			return nil, err
		}
	}

	app, err := uc.apps.Sync(ctx, req.Name, req)
	if err != nil {
		return nil, err
	}

	slog.Info("sync triggered",
		"application", req.Name,
		"resource_version", app.ResourceVersion(),
		"dry_run", req.DryRun,
		"prune", req.Prune,
	)
	return app, nil
}

// SyncAndWait triggers a sync and waits from the cursor it returned.
func (uc *SyncUseCase) SyncAndWait(ctx context.Context, b *SyncRequestBuilder, policy TerminationPolicy, timeout time.Duration) (*Application, error) {
	app, err := uc.Sync(ctx, b)
	if err != nil {
		return nil, err
	}

	return uc.watcher.Wait(ctx, WaitParams{
		Name:            b.name,
		ResourceVersion: app.ResourceVersion(),
		Policy:          policy,
		Timeout:         timeout,
	})
}

// Wait waits without triggering a sync first.
func (uc *SyncUseCase) Wait(ctx context.Context, params WaitParams) (*Application, error) {
	return uc.watcher.Wait(ctx, params)
}

// Get fetches the application, optionally forcing a refresh.
func (uc *SyncUseCase) Get(ctx context.Context, name string, refresh bool) (*Application, error) {
	if name == "" {
		return nil, &ErrInvalidInput{Field: "name", Message: "application name is required"}
	}
	return uc.apps.Get(ctx, name, refresh)
}

// SettledProbe returns a Retry fallback that accepts the application
// when a failed attempt left it reconciled anyway: synced, at the
// requested revision (when one was given), with no operation in
// flight, and satisfying policy.
func (uc *SyncUseCase) SettledProbe(name, revision string, policy TerminationPolicy) Fallback[*Application] {
	return func(ctx context.Context, _ error) (*Application, bool, error) {
		app, err := uc.apps.Get(ctx, name, false)
		if err != nil {
			return nil, false, err
		}

		if app.Status.Sync.Status != SyncStatusSynced {
			return nil, false, nil
		}
		if revision != "" && app.Spec.Source.TargetRevision != revision {
			return nil, false, nil
		}
		if app.Operation != nil || evaluateOperation(app).inProgress {
			return nil, false, nil
		}
		if !policy.Ready(app.Status.Health.Status, app.Status.Sync.Status, false) {
			return nil, false, nil
		}
		return app, true, nil
	}
}
