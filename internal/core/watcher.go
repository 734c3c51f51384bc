package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ApplicationStream is a single long-lived watch connection yielding
// one decoded event per line. This keeps the core package free of the
// HTTP framing used by the adapter.
type ApplicationStream interface {
	// Next blocks until the next event is decoded. It returns io.EOF
	// once the stream has ended cleanly.
	Next() (*WatchEvent, error)
	// Close releases the underlying connection. It must be safe to
	// call concurrently with a blocked Next.
	Close() error
}

// ReconciliationWatcher blocks until the controller reports an
// application as reconciled according to a TerminationPolicy.
type ReconciliationWatcher struct {
	apps ApplicationRepo
	log  *slog.Logger
}

// NewReconciliationWatcher returns a watcher reading from apps.
func NewReconciliationWatcher(apps ApplicationRepo) *ReconciliationWatcher {
	return &ReconciliationWatcher{
		apps: apps,
		log:  slog.Default().With("component", "reconciliation-watcher"),
	}
}

// WaitParams collects the inputs of a single wait.
type WaitParams struct {
	Name            string
	ResourceVersion string
	Policy          TerminationPolicy
	// Timeout bounds how long the stream may stay idle. Zero blocks
	// until termination, error or cancellation.
	Timeout time.Duration
}

// operationProgress is the per-event verdict on the operation flags.
type operationProgress struct {
	inProgress   bool
	needsRefresh bool
}

// evaluateOperation derives the operation flags of a snapshot.
//
// Dry-run operations are done once finishedAt is set; real ones also
// need a reconciliation at or after finishedAt.
func evaluateOperation(a *Application) operationProgress {
	if a.Operation != nil {
		return operationProgress{
			inProgress:   true,
			needsRefresh: !a.Operation.IsDryRun(),
		}
	}

	state := a.Status.OperationState
	if state == nil {
		return operationProgress{}
	}

	if state.FinishedAt == nil {
		return operationProgress{inProgress: true}
	}

	if !state.Operation.IsDryRun() {
		reconciledAt := a.reconciledAt()
		if reconciledAt == nil || reconciledAt.Before(state.FinishedAt) {
			return operationProgress{inProgress: true}
		}
	}

	return operationProgress{}
}

// Wait opens a watch at params.ResourceVersion and consumes events
// until the policy is satisfied. The stream is closed on every exit
// path, and when ctx is cancelled it is closed immediately so that a
// blocked read returns.
func (w *ReconciliationWatcher) Wait(ctx context.Context, params WaitParams) (*Application, error) {
	if params.Name == "" {
		return nil, &ErrInvalidInput{Field: "name", Message: "application name is required"}
	}
	if params.Timeout < 0 {
		return nil, &ErrInvalidInput{Field: "timeout", Message: "must not be negative"}
	}

	stream, err := w.apps.Watch(ctx, params.Name, params.ResourceVersion, params.Timeout)
	if err != nil {
		return nil, w.classify(ctx, params, err)
	}

	release := closeOnce(stream)
	defer release()

	stop := context.AfterFunc(ctx, release)
	defer stop()

	log := w.log.With("application", params.Name, "resource_version", params.ResourceVersion)

	var refresh bool
	for {
		ev, err := stream.Next()
		if err != nil {
			return nil, w.classify(ctx, params, err)
		}

		if ev.Error != nil {
			return nil, &ErrRemote{Message: *ev.Error}
		}
		if ev.Result == nil {
			return nil, &ErrMissingData{Reason: "event has neither error nor result"}
		}
		if ev.Result.Application == nil {
			return nil, &ErrMissingData{Reason: "result has no application"}
		}

		app := ev.Result.Application
		progress := evaluateOperation(app)
		// A just-requested real operation mutates the application
		// asynchronously; remember it until the wait ends.
		refresh = refresh || progress.needsRefresh

		ready := params.Policy.Ready(app.Status.Health.Status, app.Status.Sync.Status, app.Operation != nil)

		log.Debug("watch event",
			"event_resource_version", app.ResourceVersion(),
			"health", app.Status.Health.Status,
			"sync", app.Status.Sync.Status,
			"operation_in_progress", progress.inProgress,
			"ready", ready,
		)

		if !ready || (progress.inProgress && params.Policy.WatchOperation) {
			continue
		}

		release()

		if refresh {
			log.Info("application reconciled, refreshing snapshot")
			refreshed, err := w.apps.Get(ctx, params.Name, true)
			if err != nil && ctx.Err() != nil {
				return nil, &ErrCancelled{Application: params.Name, Cause: context.Cause(ctx)}
			}
			return refreshed, err
		}

		log.Info("application reconciled",
			"health", app.Status.Health.Status,
			"sync", app.Status.Sync.Status,
		)
		return app, nil
	}
}

// classify maps a stream failure onto the wait error kinds.
// Cancellation is checked first because closing the connection on
// cancel surfaces as an ordinary read error.
func (w *ReconciliationWatcher) classify(ctx context.Context, params WaitParams, err error) error {
	switch {
	case ctx.Err() != nil:
		return &ErrCancelled{Application: params.Name, Cause: context.Cause(ctx)}
	case errors.Is(err, io.EOF):
		return &ErrUnexpectedEndOfStream{Application: params.Name}
	case IsTimeout(err):
		return &ErrWaitTimeout{Application: params.Name, Timeout: params.Timeout, Cause: err}
	}

	var (
		domainErr *DomainError
		missing   *ErrMissingData
	)
	if errors.As(err, &domainErr) || errors.As(err, &missing) {
		return err
	}
	return &ErrTransport{Op: "watch application " + params.Name, Cause: err}
}

// closeOnce returns a function closing s exactly once, however many
// goroutines call it.
func closeOnce(s ApplicationStream) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = s.Close()
		})
	}
}
