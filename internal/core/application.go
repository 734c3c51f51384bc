package core

import (
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// HealthStatusCode is the controller-reported health of an
// application's deployed resources.
type HealthStatusCode string

const (
	HealthStatusHealthy     HealthStatusCode = "Healthy"
	HealthStatusSuspended   HealthStatusCode = "Suspended"
	HealthStatusDegraded    HealthStatusCode = "Degraded"
	HealthStatusProgressing HealthStatusCode = "Progressing"
	HealthStatusMissing     HealthStatusCode = "Missing"
	HealthStatusUnknown     HealthStatusCode = "Unknown"
)

// SyncStatusCode reports whether live state matches desired state.
type SyncStatusCode string

const (
	SyncStatusSynced    SyncStatusCode = "Synced"
	SyncStatusOutOfSync SyncStatusCode = "OutOfSync"
	SyncStatusUnknown   SyncStatusCode = "Unknown"
)

// Application is a snapshot of a continuous-delivery application as
// returned by the controller. Snapshots are treated as immutable once
// decoded.
type Application struct {
	Metadata  ApplicationMetadata `json:"metadata"`
	Spec      ApplicationSpec     `json:"spec"`
	Operation *Operation          `json:"operation,omitempty"`
	Status    ApplicationStatus   `json:"status"`
}

// Name returns the application name.
func (a *Application) Name() string {
	return a.Metadata.Name
}

// ResourceVersion returns the state cursor of the snapshot.
func (a *Application) ResourceVersion() string {
	return a.Metadata.ResourceVersion
}

type ApplicationMetadata struct {
	Name            string `json:"name"`
	Namespace       string `json:"namespace,omitempty"`
	ResourceVersion string `json:"resourceVersion,omitempty"`
}

type ApplicationSpec struct {
	Project string            `json:"project,omitempty"`
	Source  ApplicationSource `json:"source"`
}

type ApplicationSource struct {
	RepoURL        string `json:"repoURL,omitempty"`
	Path           string `json:"path,omitempty"`
	TargetRevision string `json:"targetRevision,omitempty"`
}

// Operation describes a requested operation. Only the sync variant is
// modelled.
type Operation struct {
	Sync *SyncOperation `json:"sync,omitempty"`
}

// IsDryRun reports whether the operation is explicitly a dry run. A
// missing sync descriptor or dryRun flag counts as a real run.
func (o *Operation) IsDryRun() bool {
	return o != nil && o.Sync != nil && o.Sync.DryRun != nil && *o.Sync.DryRun
}

type SyncOperation struct {
	Revision string `json:"revision,omitempty"`
	DryRun   *bool  `json:"dryRun,omitempty"`
	Prune    bool   `json:"prune,omitempty"`
}

type ApplicationStatus struct {
	Health         HealthStatus    `json:"health"`
	Sync           SyncStatus      `json:"sync"`
	OperationState *OperationState `json:"operationState,omitempty"`
	ReconciledAt   *metav1.Time    `json:"reconciledAt,omitempty"`
}

type HealthStatus struct {
	Status  HealthStatusCode `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
}

type SyncStatus struct {
	Status   SyncStatusCode `json:"status,omitempty"`
	Revision string         `json:"revision,omitempty"`
}

// OperationState describes the most recently run operation.
type OperationState struct {
	Operation    Operation    `json:"operation"`
	Phase        string       `json:"phase,omitempty"`
	Message      string       `json:"message,omitempty"`
	StartedAt    *metav1.Time `json:"startedAt,omitempty"`
	FinishedAt   *metav1.Time `json:"finishedAt,omitempty"`
	ReconciledAt *metav1.Time `json:"reconciledAt,omitempty"`
}

// reconciledAt returns the reconciliation timestamp recorded on the
// operation state, falling back to the application-level one the
// controller reports on status. Because of the fallback a snapshot
// only counts as never reconciled when both timestamps are missing.
func (a *Application) reconciledAt() *metav1.Time {
	if s := a.Status.OperationState; s != nil && s.ReconciledAt != nil {
		return s.ReconciledAt
	}
	return a.Status.ReconciledAt
}

// ResourceRef identifies a single resource targeted by a sync.
type ResourceRef struct {
	Group     string `json:"group"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// WatchEvent is a single decoded line of the application event
// stream. Exactly one of Error and Result is expected to be set.
type WatchEvent struct {
	Error  *string
	Result *WatchEventResult
}

// UnmarshalJSON accepts both a plain string error and the gateway
// shape {"error":{"message":"..."}}.
func (e *WatchEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Error  json.RawMessage   `json:"error"`
		Result *WatchEventResult `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = WatchEvent{Result: raw.Result}

	if len(raw.Error) == 0 || string(raw.Error) == "null" {
		return nil
	}

	var msg string
	if err := json.Unmarshal(raw.Error, &msg); err == nil {
		e.Error = &msg
		return nil
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw.Error, &obj); err != nil {
		return fmt.Errorf("decode error field: %w", err)
	}
	e.Error = &obj.Message
	return nil
}

type WatchEventResult struct {
	Type        string       `json:"type,omitempty"`
	Application *Application `json:"application,omitempty"`
}
