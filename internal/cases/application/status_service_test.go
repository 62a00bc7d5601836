package application

import (
	"context"
	"errors"
	"testing"
	"time"

	cases "refundtrack/internal/cases/domain"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeCaseRepo struct {
	states      map[string]*cases.State
	trackErr    error
	caseErr     error
	trackCalls  int
	statusCalls int
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{states: make(map[string]*cases.State)}
}

func (r *fakeCaseRepo) put(state cases.State) {
	copied := state
	r.states[state.ID] = &copied
}

func (r *fakeCaseRepo) GetCase(ctx context.Context, id string) (*cases.State, error) {
	state, ok := r.states[id]
	if !ok {
		return nil, cases.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (r *fakeCaseRepo) UpdateCaseStatus(ctx context.Context, id string, status cases.Status, at time.Time) error {
	if r.caseErr != nil {
		return r.caseErr
	}
	r.statusCalls++
	state := r.states[id]
	state.Status = status
	state.UpdatedAt = at
	return nil
}

func (r *fakeCaseRepo) UpdateTrackStatus(ctx context.Context, id string, track cases.Track, status cases.TrackStatus, changedAt time.Time) error {
	if r.trackErr != nil {
		return r.trackErr
	}
	r.trackCalls++
	state := r.states[id]
	if track == cases.TrackState {
		state.StateStatus = status
		state.StateChangedAt = &changedAt
	} else {
		state.FederalStatus = status
		state.FederalChangedAt = &changedAt
	}
	state.UpdatedAt = changedAt
	return nil
}

type fakeReconciler struct {
	calls []string
	err   error
}

func (r *fakeReconciler) Reconcile(ctx context.Context, caseID string) error {
	r.calls = append(r.calls, caseID)
	return r.err
}

func seededService(t *testing.T, repo *fakeCaseRepo, reconciler Reconciler, now time.Time) *StatusService {
	t.Helper()
	service, err := NewStatusService(repo, reconciler, fakeClock{now: now}, nil)
	if err != nil {
		t.Fatalf("new status service: %v", err)
	}
	return service
}

func baselineState(now time.Time) cases.State {
	changed := now.AddDate(0, 0, -10)
	return cases.State{
		ID:               "case-1",
		UserID:           "user-1",
		Status:           cases.StatusFiled,
		FederalStatus:    cases.TrackInProcess,
		FederalChangedAt: &changed,
		StateStatus:      cases.TrackNotFiled,
		UpdatedAt:        changed,
	}
}

func TestApplyTrackStatus_ValidMoveUpdatesAndReconciles(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeCaseRepo()
	repo.put(baselineState(now))
	reconciler := &fakeReconciler{}
	service := seededService(t, repo, reconciler, now)

	state, err := service.ApplyTrackStatus(context.Background(), "case-1", cases.TrackFederal, cases.TrackVerification)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.FederalStatus != cases.TrackVerification {
		t.Errorf("status: got %s", state.FederalStatus)
	}
	if state.FederalChangedAt == nil || !state.FederalChangedAt.Equal(now) {
		t.Errorf("changed at: got %v, want %s", state.FederalChangedAt, now)
	}
	if len(reconciler.calls) != 1 || reconciler.calls[0] != "case-1" {
		t.Errorf("reconcile calls: %v", reconciler.calls)
	}
	if repo.trackCalls != 1 {
		t.Errorf("track updates: got %d", repo.trackCalls)
	}
}

func TestApplyTrackStatus_RejectedMoveLeavesStateUntouched(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeCaseRepo()
	repo.put(baselineState(now))
	reconciler := &fakeReconciler{}
	service := seededService(t, repo, reconciler, now)

	_, err := service.ApplyTrackStatus(context.Background(), "case-1", cases.TrackFederal, cases.TrackRefundSent)
	var transitionErr *cases.TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected *TransitionError, got %v", err)
	}
	if repo.trackCalls != 0 {
		t.Errorf("rejected move should not persist, got %d updates", repo.trackCalls)
	}
	if len(reconciler.calls) != 0 {
		t.Errorf("rejected move should not reconcile, got %v", reconciler.calls)
	}
}

func TestApplyTrackStatus_SameStatusKeepsChangedAt(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeCaseRepo()
	base := baselineState(now)
	repo.put(base)
	reconciler := &fakeReconciler{}
	service := seededService(t, repo, reconciler, now)

	state, err := service.ApplyTrackStatus(context.Background(), "case-1", cases.TrackFederal, cases.TrackInProcess)
	if err != nil {
		t.Fatalf("same-status apply should be a valid no-op: %v", err)
	}
	if !state.FederalChangedAt.Equal(*base.FederalChangedAt) {
		t.Errorf("changed at should be untouched: got %v", state.FederalChangedAt)
	}
	if repo.trackCalls != 0 {
		t.Errorf("no-op should not persist, got %d updates", repo.trackCalls)
	}
}

func TestApplyTrackStatus_UnknownTrackAndCase(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeCaseRepo()
	repo.put(baselineState(now))
	service := seededService(t, repo, &fakeReconciler{}, now)

	if _, err := service.ApplyTrackStatus(context.Background(), "case-1", "municipal", cases.TrackInProcess); err == nil {
		t.Error("expected unknown track rejection")
	}
	_, err := service.ApplyTrackStatus(context.Background(), "missing", cases.TrackFederal, cases.TrackInProcess)
	if !errors.Is(err, cases.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyTrackStatus_ReconcileErrorPropagates(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeCaseRepo()
	repo.put(baselineState(now))
	reconciler := &fakeReconciler{err: errors.New("reconcile unavailable")}
	service := seededService(t, repo, reconciler, now)

	if _, err := service.ApplyTrackStatus(context.Background(), "case-1", cases.TrackFederal, cases.TrackVerification); err == nil {
		t.Fatal("expected reconcile error to surface")
	}
	// The status change itself was persisted before reconciliation failed.
	if repo.trackCalls != 1 {
		t.Errorf("track updates: got %d, want 1", repo.trackCalls)
	}
}

func TestApplyCaseStatus(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeCaseRepo()
	repo.put(baselineState(now))
	service := seededService(t, repo, &fakeReconciler{}, now)

	state, err := service.ApplyCaseStatus(context.Background(), "case-1", cases.StatusCompleted)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.Status != cases.StatusCompleted {
		t.Errorf("status: got %s", state.Status)
	}

	_, err = service.ApplyCaseStatus(context.Background(), "case-1", cases.StatusIntake)
	var transitionErr *cases.TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected *TransitionError, got %v", err)
	}
	if transitionErr.Family != cases.FamilyCase {
		t.Errorf("family: got %s", transitionErr.Family)
	}
}

func TestValidNextStatuses_Passthrough(t *testing.T) {
	service := seededService(t, newFakeCaseRepo(), &fakeReconciler{}, time.Now().UTC())
	got := service.ValidNextStatuses(cases.FamilyCase, string(cases.StatusCompleted))
	want := map[string]bool{string(cases.StatusCompleted): true, string(cases.StatusClosed): true}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for _, status := range got {
		if !want[status] {
			t.Errorf("unexpected status %s", status)
		}
	}
}
