package core

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// fakeStream replays scripted events. When block is set it blocks
// after the script is exhausted until Close is called.
type fakeStream struct {
	events []*WatchEvent
	errAt  error
	block  bool

	pos    int
	closed chan struct{}
	once   sync.Once
	closes atomic.Int32
}

func newFakeStream(events ...*WatchEvent) *fakeStream {
	return &fakeStream{events: events, closed: make(chan struct{})}
}

func (s *fakeStream) Next() (*WatchEvent, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.errAt != nil {
		return nil, s.errAt
	}
	if s.block {
		<-s.closed
		return nil, errors.New("read on closed connection")
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.closed) })
	return nil
}

// mockApplicationRepo implements ApplicationRepo for testing.
type mockApplicationRepo struct {
	stream   *fakeStream
	watchErr error

	refreshed  *Application
	getErr     error
	onGet      func()
	getCalls   int
	getRefresh bool

	synced    *Application
	syncErr   error
	syncReq   *SyncRequest
	patchErr  error
	patches   [][]JSONPatchOperation
	callOrder []string

	watchName    string
	watchVersion string
	watchTimeout time.Duration
}

func (m *mockApplicationRepo) Get(_ context.Context, _ string, refresh bool) (*Application, error) {
	m.getCalls++
	m.getRefresh = refresh
	m.callOrder = append(m.callOrder, "get")
	if m.onGet != nil {
		m.onGet()
	}
	return m.refreshed, m.getErr
}

func (m *mockApplicationRepo) Patch(_ context.Context, _ string, patch []JSONPatchOperation) (*Application, error) {
	m.callOrder = append(m.callOrder, "patch")
	m.patches = append(m.patches, patch)
	return nil, m.patchErr
}

func (m *mockApplicationRepo) Sync(_ context.Context, _ string, req *SyncRequest) (*Application, error) {
	m.callOrder = append(m.callOrder, "sync")
	m.syncReq = req
	return m.synced, m.syncErr
}

func (m *mockApplicationRepo) Watch(_ context.Context, name, resourceVersion string, timeout time.Duration) (ApplicationStream, error) {
	m.callOrder = append(m.callOrder, "watch")
	m.watchName, m.watchVersion, m.watchTimeout = name, resourceVersion, timeout
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	return m.stream, nil
}

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *metav1.Time {
	mt := metav1.NewTime(t)
	return &mt
}

func appEvent(a *Application) *WatchEvent {
	return &WatchEvent{Result: &WatchEventResult{Type: "MODIFIED", Application: a}}
}

func testApp(rv string, health HealthStatusCode, sync SyncStatusCode) *Application {
	return &Application{
		Metadata: ApplicationMetadata{Name: "guestbook", ResourceVersion: rv},
		Status: ApplicationStatus{
			Health: HealthStatus{Status: health},
			Sync:   SyncStatus{Status: sync},
		},
	}
}

func withOperation(a *Application, dryRun *bool) *Application {
	a.Operation = &Operation{Sync: &SyncOperation{DryRun: dryRun}}
	return a
}

func strictPolicy() TerminationPolicy {
	return TerminationPolicy{WatchHealth: true, WatchSync: true, WatchOperation: true}
}

func TestEvaluateOperation(t *testing.T) {
	finished := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	withState := func(dryRun *bool, finishedAt, reconciledAt *metav1.Time) *Application {
		a := testApp("1", HealthStatusHealthy, SyncStatusSynced)
		a.Status.OperationState = &OperationState{
			Operation:    Operation{Sync: &SyncOperation{DryRun: dryRun}},
			FinishedAt:   finishedAt,
			ReconciledAt: reconciledAt,
		}
		return a
	}

	tests := []struct {
		name string
		app  *Application
		want operationProgress
	}{
		{"no operation info", testApp("1", HealthStatusHealthy, SyncStatusSynced), operationProgress{}},
		{"requested real operation", withOperation(testApp("1", "", ""), nil), operationProgress{inProgress: true, needsRefresh: true}},
		{"requested explicit non dry run", withOperation(testApp("1", "", ""), boolPtr(false)), operationProgress{inProgress: true, needsRefresh: true}},
		{"requested dry run", withOperation(testApp("1", "", ""), boolPtr(true)), operationProgress{inProgress: true}},
		{"unfinished operation", withState(nil, nil, nil), operationProgress{inProgress: true}},
		{"finished real not reconciled", withState(boolPtr(false), timePtr(finished), nil), operationProgress{inProgress: true}},
		{"finished dry run not reconciled", withState(boolPtr(true), timePtr(finished), nil), operationProgress{}},
		{"finished real reconciled before finish", withState(nil, timePtr(finished), timePtr(finished.Add(-time.Second))), operationProgress{inProgress: true}},
		{"finished real reconciled at finish", withState(nil, timePtr(finished), timePtr(finished)), operationProgress{}},
		{"finished real reconciled after finish", withState(nil, timePtr(finished), timePtr(finished.Add(time.Minute))), operationProgress{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluateOperation(tt.app); got != tt.want {
				t.Errorf("evaluateOperation() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEvaluateOperation_StatusReconciledAtFallback(t *testing.T) {
	finished := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := testApp("1", HealthStatusHealthy, SyncStatusSynced)
	a.Status.OperationState = &OperationState{FinishedAt: timePtr(finished)}
	a.Status.ReconciledAt = timePtr(finished.Add(time.Second))

	if got := evaluateOperation(a); got.inProgress {
		t.Errorf("expected operation reconciled via status.reconciledAt, got %+v", got)
	}
}

func TestReconciliationWatcher_TerminatesOnThirdEvent(t *testing.T) {
	first := withOperation(testApp("11", HealthStatusProgressing, SyncStatusOutOfSync), boolPtr(true))
	second := withOperation(testApp("12", HealthStatusProgressing, SyncStatusSynced), boolPtr(true))
	third := testApp("13", HealthStatusHealthy, SyncStatusSynced)
	trailing := testApp("14", HealthStatusDegraded, SyncStatusOutOfSync)

	stream := newFakeStream(appEvent(first), appEvent(second), appEvent(third), appEvent(trailing))
	repo := &mockApplicationRepo{stream: stream}
	w := NewReconciliationWatcher(repo)

	got, err := w.Wait(context.Background(), WaitParams{Name: "guestbook", ResourceVersion: "10", Policy: strictPolicy()})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != third {
		t.Errorf("returned snapshot rv=%q, want the third event", got.ResourceVersion())
	}
	if stream.pos != 3 {
		t.Errorf("consumed %d events, want 3", stream.pos)
	}
	if repo.getCalls != 0 {
		t.Errorf("unexpected refresh for dry-run operations")
	}
	if n := stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
	if repo.watchVersion != "10" {
		t.Errorf("watch opened at %q, want 10", repo.watchVersion)
	}
}

func TestReconciliationWatcher_RefreshAfterRealOperation(t *testing.T) {
	started := withOperation(testApp("21", HealthStatusProgressing, SyncStatusOutOfSync), boolPtr(false))
	settled := testApp("22", HealthStatusHealthy, SyncStatusSynced)
	refreshed := testApp("23", HealthStatusHealthy, SyncStatusSynced)

	stream := newFakeStream(appEvent(started), appEvent(settled))
	repo := &mockApplicationRepo{stream: stream, refreshed: refreshed}
	w := NewReconciliationWatcher(repo)

	got, err := w.Wait(context.Background(), WaitParams{Name: "guestbook", Policy: strictPolicy()})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != refreshed {
		t.Errorf("expected the forced-refresh snapshot, got rv=%q", got.ResourceVersion())
	}
	if repo.getCalls != 1 || !repo.getRefresh {
		t.Errorf("get calls = %d (refresh=%v), want one refresh", repo.getCalls, repo.getRefresh)
	}
	if n := stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
}

func TestReconciliationWatcher_OperationIgnoredWithoutWatch(t *testing.T) {
	running := withOperation(testApp("31", HealthStatusHealthy, SyncStatusSynced), boolPtr(true))

	stream := newFakeStream(appEvent(running))
	repo := &mockApplicationRepo{stream: stream}
	w := NewReconciliationWatcher(repo)

	got, err := w.Wait(context.Background(), WaitParams{
		Name:   "guestbook",
		Policy: TerminationPolicy{WatchHealth: true, WatchSync: true},
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != running {
		t.Errorf("expected first snapshot to terminate the wait")
	}
}

func TestReconciliationWatcher_Errors(t *testing.T) {
	boom := "boom"

	tests := []struct {
		name   string
		stream *fakeStream
		check  func(t *testing.T, err error)
	}{
		{
			name:   "remote error event",
			stream: newFakeStream(&WatchEvent{Error: &boom}),
			check: func(t *testing.T, err error) {
				var remote *ErrRemote
				if !errors.As(err, &remote) {
					t.Fatalf("expected ErrRemote, got %T: %v", err, err)
				}
				if remote.Message != "boom" {
					t.Errorf("message = %q, want %q", remote.Message, "boom")
				}
			},
		},
		{
			name:   "event without result",
			stream: newFakeStream(&WatchEvent{}),
			check: func(t *testing.T, err error) {
				var missing *ErrMissingData
				if !errors.As(err, &missing) {
					t.Fatalf("expected ErrMissingData, got %T: %v", err, err)
				}
			},
		},
		{
			name:   "result without application",
			stream: newFakeStream(&WatchEvent{Result: &WatchEventResult{Type: "MODIFIED"}}),
			check: func(t *testing.T, err error) {
				var missing *ErrMissingData
				if !errors.As(err, &missing) {
					t.Fatalf("expected ErrMissingData, got %T: %v", err, err)
				}
			},
		},
		{
			name:   "stream ends early",
			stream: newFakeStream(appEvent(testApp("41", HealthStatusProgressing, SyncStatusSynced))),
			check: func(t *testing.T, err error) {
				var eos *ErrUnexpectedEndOfStream
				if !errors.As(err, &eos) {
					t.Fatalf("expected ErrUnexpectedEndOfStream, got %T: %v", err, err)
				}
			},
		},
		{
			name: "read timeout",
			stream: func() *fakeStream {
				s := newFakeStream()
				s.errAt = os.ErrDeadlineExceeded
				return s
			}(),
			check: func(t *testing.T, err error) {
				var timeout *ErrWaitTimeout
				if !errors.As(err, &timeout) {
					t.Fatalf("expected ErrWaitTimeout, got %T: %v", err, err)
				}
			},
		},
		{
			name: "connection reset",
			stream: func() *fakeStream {
				s := newFakeStream()
				s.errAt = errors.New("connection reset by peer")
				return s
			}(),
			check: func(t *testing.T, err error) {
				var transport *ErrTransport
				if !errors.As(err, &transport) {
					t.Fatalf("expected ErrTransport, got %T: %v", err, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockApplicationRepo{stream: tt.stream}
			w := NewReconciliationWatcher(repo)

			_, err := w.Wait(context.Background(), WaitParams{Name: "guestbook", Policy: strictPolicy(), Timeout: time.Second})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			tt.check(t, err)
			if n := tt.stream.closes.Load(); n != 1 {
				t.Errorf("stream closed %d times, want 1", n)
			}
		})
	}
}

func TestReconciliationWatcher_ZeroTimeoutPassedThrough(t *testing.T) {
	stream := newFakeStream(appEvent(testApp("51", HealthStatusHealthy, SyncStatusSynced)))
	repo := &mockApplicationRepo{stream: stream}
	w := NewReconciliationWatcher(repo)

	if _, err := w.Wait(context.Background(), WaitParams{Name: "guestbook", Policy: strictPolicy()}); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if repo.watchTimeout != 0 {
		t.Errorf("watch timeout = %s, want 0 (no timeout)", repo.watchTimeout)
	}
}

func TestReconciliationWatcher_Cancel(t *testing.T) {
	stream := newFakeStream(appEvent(testApp("61", HealthStatusProgressing, SyncStatusOutOfSync)))
	stream.block = true
	repo := &mockApplicationRepo{stream: stream}
	w := NewReconciliationWatcher(repo)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := w.Wait(ctx, WaitParams{Name: "guestbook", Policy: strictPolicy()})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		var cancelled *ErrCancelled
		if !errors.As(err, &cancelled) {
			t.Fatalf("expected ErrCancelled, got %T: %v", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}

	if n := stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
}

func TestReconciliationWatcher_WatchOpenFails(t *testing.T) {
	repo := &mockApplicationRepo{watchErr: &DomainError{Code: ErrorCodeNotFound, Message: "app not found"}}
	w := NewReconciliationWatcher(repo)

	_, err := w.Wait(context.Background(), WaitParams{Name: "guestbook"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != ErrorCodeNotFound {
		t.Fatalf("expected not found DomainError, got %T: %v", err, err)
	}
}

func TestReconciliationWatcher_Validation(t *testing.T) {
	w := NewReconciliationWatcher(&mockApplicationRepo{})

	tests := []struct {
		name   string
		params WaitParams
	}{
		{"empty name", WaitParams{}},
		{"negative timeout", WaitParams{Name: "guestbook", Timeout: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Wait(context.Background(), tt.params)
			var invalid *ErrInvalidInput
			if !errors.As(err, &invalid) {
				t.Fatalf("expected ErrInvalidInput, got %T: %v", err, err)
			}
		})
	}
}

func TestReconciliationWatcher_CancelDuringRefresh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &mockApplicationRepo{
		stream: newFakeStream(
			appEvent(withOperation(testApp("5", HealthStatusProgressing, SyncStatusOutOfSync), nil)),
			appEvent(testApp("6", HealthStatusHealthy, SyncStatusSynced)),
		),
		onGet:  cancel,
		getErr: &ErrTransport{Op: "get application guestbook", Cause: context.Canceled},
	}

	_, err := NewReconciliationWatcher(repo).Wait(ctx, WaitParams{
		Name:   "guestbook",
		Policy: TerminationPolicy{WatchHealth: true, WatchSync: true, WatchOperation: true},
	})

	var cancelled *ErrCancelled
	if !errors.As(err, &cancelled) {
		t.Fatalf("err = %T %v, want ErrCancelled", err, err)
	}
	if repo.getCalls != 1 {
		t.Errorf("get calls = %d, want 1", repo.getCalls)
	}
}

func TestReconciliationWatcher_RefreshErrorPassesThrough(t *testing.T) {
	notFound := &DomainError{Code: ErrorCodeNotFound, Message: "gone"}
	repo := &mockApplicationRepo{
		stream: newFakeStream(
			appEvent(withOperation(testApp("5", HealthStatusProgressing, SyncStatusOutOfSync), nil)),
			appEvent(testApp("6", HealthStatusHealthy, SyncStatusSynced)),
		),
		getErr: notFound,
	}

	_, err := NewReconciliationWatcher(repo).Wait(context.Background(), WaitParams{
		Name:   "guestbook",
		Policy: TerminationPolicy{WatchHealth: true, WatchSync: true},
	})
	if err != notFound {
		t.Fatalf("err = %v, want %v", err, notFound)
	}
}
