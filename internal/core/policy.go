package core

// TerminationPolicy selects which readiness criteria must hold before
// a wait on an application may stop. A zero policy accepts any
// snapshot.
type TerminationPolicy struct {
	WatchHealth    bool `json:"watchHealth"`
	WatchSuspended bool `json:"watchSuspended"`
	WatchSync      bool `json:"watchSync"`
	WatchOperation bool `json:"watchOperation"`
}

// Ready reports whether a snapshot with the given health, sync status
// and operation presence satisfies the policy.
func (p TerminationPolicy) Ready(health HealthStatusCode, sync SyncStatusCode, operationPresent bool) bool {
	return p.healthCheckPassed(health) &&
		p.syncCheckPassed(sync) &&
		p.operationalCheckPassed(operationPresent)
}

func (p TerminationPolicy) healthCheckPassed(health HealthStatusCode) bool {
	switch {
	case p.WatchSuspended && p.WatchHealth:
		return health == HealthStatusHealthy || health == HealthStatusSuspended
	case p.WatchSuspended:
		return health == HealthStatusSuspended
	case p.WatchHealth:
		return health == HealthStatusHealthy
	default:
		return true
	}
}

func (p TerminationPolicy) syncCheckPassed(sync SyncStatusCode) bool {
	return !p.WatchSync || sync == SyncStatusSynced
}

func (p TerminationPolicy) operationalCheckPassed(operationPresent bool) bool {
	return !p.WatchOperation || !operationPresent
}
