package app

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/otterscale/otterscale-tasks/internal/app"

// Metrics holds the instruments recorded by action invocations. The
// instruments resolve against the global meter provider, so they pick
// up the provider installed when the server mounts /metrics.
type Metrics struct {
	actions  metric.Int64Counter
	waitTime metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	actions, err := meter.Int64Counter("tasks_actions_total",
		metric.WithDescription("Action invocations by action and result"),
	)
	if err != nil {
		return nil, err
	}

	waitTime, err := meter.Float64Histogram("tasks_sync_wait_seconds",
		metric.WithDescription("Time spent waiting for applications to reconcile"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{actions: actions, waitTime: waitTime}, nil
}
