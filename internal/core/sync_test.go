package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSyncRequestBuilder_Build(t *testing.T) {
	strategy := &SyncStrategy{Hook: &SyncStrategyHook{SyncStrategyApply{Force: true}}}
	retry := &RetryStrategy{Limit: 3, Backoff: &Backoff{Duration: "5s", MaxDuration: "3m"}}

	patch, req, err := NewSyncRequestBuilder("guestbook").
		Revision("v1.2.0").
		DryRun(true).
		Prune(true).
		Resources(ResourceRef{Group: "apps", Kind: "Deployment", Name: "web", Namespace: "default"}).
		Strategy(strategy).
		RetryStrategy(retry).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantPatch := []JSONPatchOperation{{Op: "replace", Path: "/spec/source/targetRevision", Value: "v1.2.0"}}
	if diff := cmp.Diff(wantPatch, patch); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}

	wantReq := &SyncRequest{
		Name:          "guestbook",
		DryRun:        true,
		Prune:         true,
		Resources:     []ResourceRef{{Group: "apps", Kind: "Deployment", Name: "web", Namespace: "default"}},
		Strategy:      strategy,
		RetryStrategy: retry,
	}
	if diff := cmp.Diff(wantReq, req); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncRequestBuilder_NoRevisionNoPatch(t *testing.T) {
	patch, _, err := NewSyncRequestBuilder("guestbook").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if patch != nil {
		t.Errorf("expected no patch, got %+v", patch)
	}
}

func TestSyncRequestBuilder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		builder *SyncRequestBuilder
	}{
		{"empty name", NewSyncRequestBuilder("")},
		{"resource without kind", NewSyncRequestBuilder("guestbook").Resources(ResourceRef{Name: "web"})},
		{"resource without name", NewSyncRequestBuilder("guestbook").Resources(ResourceRef{Kind: "Service"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.builder.Build()
			var invalid *ErrInvalidInput
			if !errors.As(err, &invalid) {
				t.Fatalf("expected ErrInvalidInput, got %T: %v", err, err)
			}
		})
	}
}

func TestParseResourceRef(t *testing.T) {
	tests := []struct {
		in      string
		want    ResourceRef
		wantErr bool
	}{
		{in: "apps:Deployment:web", want: ResourceRef{Group: "apps", Kind: "Deployment", Name: "web"}},
		{in: "apps:Deployment:prod/web", want: ResourceRef{Group: "apps", Kind: "Deployment", Name: "web", Namespace: "prod"}},
		{in: ":Service:api", want: ResourceRef{Kind: "Service", Name: "api"}},
		{in: "Deployment:web", wantErr: true},
		{in: "apps::web", wantErr: true},
		{in: "apps:Deployment:prod/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResourceRef(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResourceRef: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSyncUseCase_PatchesBeforeSync(t *testing.T) {
	repo := &mockApplicationRepo{synced: testApp("100", HealthStatusProgressing, SyncStatusOutOfSync)}
	uc := NewSyncUseCase(repo, NewReconciliationWatcher(repo))

	app, err := uc.Sync(context.Background(), NewSyncRequestBuilder("guestbook").Revision("main"))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if app.ResourceVersion() != "100" {
		t.Errorf("resourceVersion = %q, want 100", app.ResourceVersion())
	}
	if diff := cmp.Diff([]string{"patch", "sync"}, repo.callOrder); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncUseCase_ErrorsPropagateUnmodified(t *testing.T) {
	patchErr := errors.New("patch refused")
	syncErr := &DomainError{Code: ErrorCodePermissionDenied, Message: "denied"}

	t.Run("patch", func(t *testing.T) {
		repo := &mockApplicationRepo{patchErr: patchErr}
		uc := NewSyncUseCase(repo, NewReconciliationWatcher(repo))

		_, err := uc.Sync(context.Background(), NewSyncRequestBuilder("guestbook").Revision("main"))
		if err != patchErr {
			t.Fatalf("err = %v, want %v", err, patchErr)
		}
		if diff := cmp.Diff([]string{"patch"}, repo.callOrder); diff != "" {
			t.Errorf("call order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sync", func(t *testing.T) {
		repo := &mockApplicationRepo{syncErr: syncErr}
		uc := NewSyncUseCase(repo, NewReconciliationWatcher(repo))

		_, err := uc.SyncAndWait(context.Background(), NewSyncRequestBuilder("guestbook"), strictPolicy(), 0)
		if err != syncErr {
			t.Fatalf("err = %v, want %v", err, syncErr)
		}
		if diff := cmp.Diff([]string{"sync"}, repo.callOrder); diff != "" {
			t.Errorf("call order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSyncUseCase_SyncAndWaitUsesFreshCursor(t *testing.T) {
	started := withOperation(testApp("201", HealthStatusProgressing, SyncStatusOutOfSync), boolPtr(false))
	settled := testApp("202", HealthStatusHealthy, SyncStatusSynced)
	refreshed := testApp("203", HealthStatusHealthy, SyncStatusSynced)

	repo := &mockApplicationRepo{
		synced:    testApp("200", HealthStatusProgressing, SyncStatusOutOfSync),
		stream:    newFakeStream(appEvent(started), appEvent(settled)),
		refreshed: refreshed,
	}
	uc := NewSyncUseCase(repo, NewReconciliationWatcher(repo))

	got, err := uc.SyncAndWait(context.Background(), NewSyncRequestBuilder("guestbook").DryRun(false), strictPolicy(), 30*time.Second)
	if err != nil {
		t.Fatalf("SyncAndWait: %v", err)
	}
	if got != refreshed {
		t.Errorf("expected refreshed snapshot, got rv=%q", got.ResourceVersion())
	}
	if repo.watchVersion != "200" {
		t.Errorf("watch cursor = %q, want 200", repo.watchVersion)
	}
	if repo.watchTimeout != 30*time.Second {
		t.Errorf("watch timeout = %s, want 30s", repo.watchTimeout)
	}
	if diff := cmp.Diff([]string{"sync", "watch", "get"}, repo.callOrder); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncUseCase_SettledProbe(t *testing.T) {
	finished := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	settled := func() *Application {
		a := testApp("300", HealthStatusHealthy, SyncStatusSynced)
		a.Spec.Source.TargetRevision = "v2"
		return a
	}

	tests := []struct {
		name string
		app  func() *Application
		want bool
	}{
		{"settled at revision", settled, true},
		{"other revision", func() *Application {
			a := settled()
			a.Spec.Source.TargetRevision = "v1"
			return a
		}, false},
		{"out of sync", func() *Application {
			a := settled()
			a.Status.Sync.Status = SyncStatusOutOfSync
			return a
		}, false},
		{"operation pending", func() *Application {
			return withOperation(settled(), boolPtr(false))
		}, false},
		{"operation not yet reconciled", func() *Application {
			a := settled()
			a.Status.OperationState = &OperationState{
				Operation:  Operation{Sync: &SyncOperation{}},
				FinishedAt: timePtr(finished),
			}
			return a
		}, false},
		{"degraded", func() *Application {
			a := settled()
			a.Status.Health.Status = HealthStatusDegraded
			return a
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockApplicationRepo{refreshed: tt.app()}
			uc := NewSyncUseCase(repo, NewReconciliationWatcher(repo))

			probe := uc.SettledProbe("guestbook", "v2", strictPolicy())
			got, ok, err := probe(context.Background(), errors.New("timed out"))
			if err != nil {
				t.Fatalf("probe: %v", err)
			}
			if ok != tt.want {
				t.Fatalf("ok = %v, want %v", ok, tt.want)
			}
			if ok && got != repo.refreshed {
				t.Error("probe did not return the fetched application")
			}
			if repo.getRefresh {
				t.Error("probe must not force a refresh")
			}
		})
	}
}
