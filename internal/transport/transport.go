// Package transport runs the long-lived parts of the server (the HTTP
// listener and the token cache evictor) as one unit.
package transport

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// stopTimeout bounds each Listener.Stop call.
const stopTimeout = 15 * time.Second

// Listener is a component with a blocking Start and a graceful Stop.
type Listener interface {
	// Start blocks until ctx is done or the component fails.
	Start(context.Context) error
	// Stop releases the component within the ctx deadline.
	Stop(context.Context) error
}

// Serve starts every listener and returns once all of them have
// exited. The first Start error or the cancellation of ctx stops the
// whole group; listeners are stopped in reverse order so that the ones
// started last go down first.
func Serve(ctx context.Context, lis ...Listener) error {
	eg, groupCtx := errgroup.WithContext(ctx)

	for _, l := range lis {
		eg.Go(func() error { return l.Start(groupCtx) })
	}

	eg.Go(func() error {
		<-groupCtx.Done()
		return stopAll(slices.Backward(lis))
	})

	return eg.Wait()
}

func stopAll(lis iter.Seq2[int, Listener]) error {
	var errs []error
	for i, l := range lis {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := l.Stop(ctx); err != nil {
			slog.Warn("listener stop failed", "index", i, "error", err)
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}
