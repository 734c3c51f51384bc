package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWatchEvent_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantError string
		wantApp   string
	}{
		{"plain error", `{"error":"boom"}`, "boom", ""},
		{"gateway error", `{"error":{"grpc_code":5,"http_code":404,"message":"not found"}}`, "not found", ""},
		{"result", `{"result":{"type":"MODIFIED","application":{"metadata":{"name":"guestbook","resourceVersion":"7"}}}}`, "", "guestbook"},
		{"null error", `{"error":null,"result":{"application":{"metadata":{"name":"a"}}}}`, "", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev WatchEvent
			if err := json.Unmarshal([]byte(tt.line), &ev); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if tt.wantError != "" {
				if ev.Error == nil || *ev.Error != tt.wantError {
					t.Fatalf("error = %v, want %q", ev.Error, tt.wantError)
				}
				return
			}
			if ev.Error != nil {
				t.Fatalf("unexpected error %q", *ev.Error)
			}
			if ev.Result == nil || ev.Result.Application == nil || ev.Result.Application.Name() != tt.wantApp {
				t.Fatalf("unexpected result %+v", ev.Result)
			}
		})
	}
}

func TestApplication_DecodeOperationState(t *testing.T) {
	raw := `{
		"metadata": {"name": "guestbook", "resourceVersion": "42"},
		"status": {
			"health": {"status": "Healthy"},
			"sync": {"status": "Synced", "revision": "abc"},
			"reconciledAt": "2024-01-01T12:00:05Z",
			"operationState": {
				"operation": {"sync": {"dryRun": true}},
				"phase": "Succeeded",
				"finishedAt": "2024-01-01T12:00:00Z"
			}
		}
	}`

	var a Application
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	state := a.Status.OperationState
	if state == nil || state.FinishedAt == nil {
		t.Fatal("expected operation state with finishedAt")
	}
	if !state.Operation.IsDryRun() {
		t.Error("expected dry-run operation")
	}
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !state.FinishedAt.Time.Equal(want) {
		t.Errorf("finishedAt = %s, want %s", state.FinishedAt.Time, want)
	}
	if a.reconciledAt() == nil || a.reconciledAt().Time.Before(want) {
		t.Errorf("reconciledAt = %v, want after finishedAt", a.reconciledAt())
	}
}

func TestOperation_IsDryRun(t *testing.T) {
	var nilOp *Operation
	if nilOp.IsDryRun() {
		t.Error("nil operation reported as dry run")
	}
	if (&Operation{}).IsDryRun() {
		t.Error("operation without sync reported as dry run")
	}
	if (&Operation{Sync: &SyncOperation{}}).IsDryRun() {
		t.Error("absent dryRun reported as dry run")
	}
	if !(&Operation{Sync: &SyncOperation{DryRun: boolPtr(true)}}).IsDryRun() {
		t.Error("dryRun=true not reported as dry run")
	}
}
