package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	alarms "refundtrack/internal/alarms/domain"
	cases "refundtrack/internal/cases/domain"
)

func newTestReconciler(t *testing.T, caseStore *stubCaseStore, alarmStore *stubAlarmStore, clock Clock, notifier Notifier) *Reconciler {
	t.Helper()
	opts := []ReconcilerOption{WithClock(clock)}
	if notifier != nil {
		opts = append(opts, WithNotifier(notifier))
	}
	reconciler, err := NewReconciler(caseStore, alarmStore, newTestThresholds(newStubThresholdStore(), clock), nil, opts...)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return reconciler
}

func inProcessCase(id string, now time.Time, daysAgo int) cases.State {
	return cases.State{
		ID:               id,
		UserID:           "user-" + id,
		Status:           cases.StatusFiled,
		FederalStatus:    cases.TrackInProcess,
		FederalChangedAt: timePtr(now.AddDate(0, 0, -daysAgo)),
		StateStatus:      cases.TrackNotFiled,
		UpdatedAt:        now,
	}
}

func TestReconcile_TriggersAlarmAndNotifies(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}
	caseStore := newStubCaseStore()
	alarmStore := newStubAlarmStore()
	notifier := &stubNotifier{}
	caseStore.put(inProcessCase("case-1", now, 25))

	reconciler := newTestReconciler(t, caseStore, alarmStore, clock, notifier)
	if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	open, _ := alarmStore.FindOpen(context.Background(), "case-1")
	if len(open) != 1 {
		t.Fatalf("got %d open records, want 1", len(open))
	}
	record := open[0]
	if record.Type != alarms.TypePossibleVerification {
		t.Errorf("type: got %s", record.Type)
	}
	if record.Track != cases.TrackFederal {
		t.Errorf("track: got %s", record.Track)
	}
	if record.Severity != alarms.SeverityWarning {
		t.Errorf("severity: got %s", record.Severity)
	}
	if record.Resolution != alarms.ResolutionActive {
		t.Errorf("resolution: got %s", record.Resolution)
	}
	if record.ThresholdDays != 21 || record.ActualDays != 25 {
		t.Errorf("days: got %d/%d", record.ThresholdDays, record.ActualDays)
	}
	if record.StatusAtTrigger != string(cases.TrackInProcess) {
		t.Errorf("status at trigger: got %s", record.StatusAtTrigger)
	}

	if notifier.callCount() != 1 {
		t.Fatalf("got %d notifications, want 1", notifier.callCount())
	}
	call := notifier.calls[0]
	if call.userID != "user-case-1" {
		t.Errorf("notify user: got %s", call.userID)
	}
	if call.templateKey != "alarm_possible_verification_federal" {
		t.Errorf("template key: got %s", call.templateKey)
	}
	if call.variables["actual_days"] != "25" {
		t.Errorf("actual_days var: got %s", call.variables["actual_days"])
	}
}

func TestReconcile_IdempotentAcrossRepeatedCalls(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}
	caseStore := newStubCaseStore()
	alarmStore := newStubAlarmStore()
	notifier := &stubNotifier{}
	caseStore.put(inProcessCase("case-1", now, 25))

	reconciler := newTestReconciler(t, caseStore, alarmStore, clock, notifier)
	for i := 0; i < 3; i++ {
		if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}

	if alarmStore.createCalls != 1 {
		t.Errorf("creates: got %d, want 1", alarmStore.createCalls)
	}
	if notifier.callCount() != 1 {
		t.Errorf("notifications: got %d, want 1", notifier.callCount())
	}
	open, _ := alarmStore.FindOpen(context.Background(), "case-1")
	if len(open) != 1 {
		t.Errorf("open records: got %d, want 1", len(open))
	}
}

func TestReconcile_RefreshesObservedDays(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}
	caseStore := newStubCaseStore()
	alarmStore := newStubAlarmStore()
	caseStore.put(inProcessCase("case-1", now, 25))

	reconciler := newTestReconciler(t, caseStore, alarmStore, clock, nil)
	if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	clock.Advance(5 * 24 * time.Hour)
	if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	open, _ := alarmStore.FindOpen(context.Background(), "case-1")
	if len(open) != 1 {
		t.Fatalf("open records: got %d, want 1", len(open))
	}
	if open[0].ActualDays != 30 {
		t.Errorf("actual days after refresh: got %d, want 30", open[0].ActualDays)
	}
	if alarmStore.createCalls != 1 {
		t.Errorf("creates: got %d, want 1", alarmStore.createCalls)
	}
}

func TestReconcile_AutoResolvesWhenConditionClears(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}
	caseStore := newStubCaseStore()
	alarmStore := newStubAlarmStore()
	caseStore.put(inProcessCase("case-1", now, 25))

	reconciler := newTestReconciler(t, caseStore, alarmStore, clock, nil)
	if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	state, _ := caseStore.GetCase(context.Background(), "case-1")
	state.FederalStatus = cases.TrackTaxesCompleted
	state.FederalChangedAt = timePtr(now)
	caseStore.put(*state)

	if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	open, _ := alarmStore.FindOpen(context.Background(), "case-1")
	if len(open) != 0 {
		t.Fatalf("open records: got %d, want 0", len(open))
	}
	history, _ := alarmStore.ListByCase(context.Background(), "case-1", alarms.ResolutionAutoResolved)
	if len(history) != 1 {
		t.Fatalf("auto-resolved records: got %d, want 1", len(history))
	}
	if history[0].AutoResolveReason != alarms.AutoResolveReasonStatusChanged {
		t.Errorf("reason: got %q, want %q", history[0].AutoResolveReason, alarms.AutoResolveReasonStatusChanged)
	}
	if history[0].ResolvedAt == nil {
		t.Error("resolved at should be set")
	}
}

func TestReconcile_NotifyFailureDoesNotFailReconcile(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}
	caseStore := newStubCaseStore()
	alarmStore := newStubAlarmStore()
	notifier := &stubNotifier{err: errors.New("webhook down")}
	caseStore.put(inProcessCase("case-1", now, 25))

	reconciler := newTestReconciler(t, caseStore, alarmStore, clock, notifier)
	if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
		t.Fatalf("reconcile should swallow notify failures: %v", err)
	}
	open, _ := alarmStore.FindOpen(context.Background(), "case-1")
	if len(open) != 1 {
		t.Errorf("open records: got %d, want 1", len(open))
	}
}

func TestReconcile_RepairsDuplicateOpenRecords(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}
	caseStore := newStubCaseStore()
	alarmStore := newStubAlarmStore()
	caseStore.put(inProcessCase("case-1", now, 25))

	older := alarms.Record{
		ID: "alarm-old", CaseID: "case-1",
		Type: alarms.TypePossibleVerification, Track: cases.TrackFederal,
		Severity: alarms.SeverityWarning, Resolution: alarms.ResolutionActive,
		ThresholdDays: 21, ActualDays: 22,
		TriggeredAt: now.AddDate(0, 0, -3), UpdatedAt: now.AddDate(0, 0, -3),
	}
	newer := older
	newer.ID = "alarm-new"
	newer.ActualDays = 24
	newer.TriggeredAt = now.AddDate(0, 0, -1)
	alarmStore.seed(older)
	alarmStore.seed(newer)

	reconciler := newTestReconciler(t, caseStore, alarmStore, clock, nil)
	if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	open, _ := alarmStore.FindOpen(context.Background(), "case-1")
	if len(open) != 1 {
		t.Fatalf("open records: got %d, want 1", len(open))
	}
	if open[0].ID != "alarm-new" {
		t.Errorf("kept record: got %s, want alarm-new", open[0].ID)
	}
	if open[0].ActualDays != 25 {
		t.Errorf("kept record should be refreshed: got %d days", open[0].ActualDays)
	}
	stale := alarmStore.get("alarm-old")
	if stale.Resolution != alarms.ResolutionAutoResolved {
		t.Errorf("stale record resolution: got %s", stale.Resolution)
	}
	if stale.AutoResolveReason != AutoResolveReasonDuplicate {
		t.Errorf("stale record reason: got %q", stale.AutoResolveReason)
	}
	if alarmStore.createCalls != 0 {
		t.Errorf("creates: got %d, want 0", alarmStore.createCalls)
	}
}

func TestReconcile_UnknownCase(t *testing.T) {
	clock := &fixedClock{now: time.Now().UTC()}
	reconciler := newTestReconciler(t, newStubCaseStore(), newStubAlarmStore(), clock, nil)
	err := reconciler.Reconcile(context.Background(), "missing")
	if !errors.Is(err, cases.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReconcile_ThresholdOverrideDisablesTrack(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}
	caseStore := newStubCaseStore()
	alarmStore := newStubAlarmStore()
	thresholdStore := newStubThresholdStore()
	_ = thresholdStore.UpsertOverride(context.Background(), &alarms.Override{CaseID: "case-1", DisableFederal: true})
	caseStore.put(inProcessCase("case-1", now, 25))

	reconciler, err := NewReconciler(caseStore, alarmStore, newTestThresholds(thresholdStore, clock), nil, WithClock(clock))
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	if err := reconciler.Reconcile(context.Background(), "case-1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	open, _ := alarmStore.FindOpen(context.Background(), "case-1")
	if len(open) != 0 {
		t.Fatalf("disabled track should produce no alarms, got %d", len(open))
	}
}

func TestReconcile_ConcurrentCallsForOneCaseCreateOnce(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}
	caseStore := newStubCaseStore()
	alarmStore := newStubAlarmStore()
	caseStore.put(inProcessCase("case-1", now, 25))

	reconciler := newTestReconciler(t, caseStore, alarmStore, clock, nil)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- reconciler.Reconcile(context.Background(), "case-1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent reconcile: %v", err)
		}
	}

	open, _ := alarmStore.FindOpen(context.Background(), "case-1")
	if len(open) != 1 {
		t.Fatalf("got %d open records, want 1", len(open))
	}
	if alarmStore.createCalls != 1 {
		t.Errorf("creates: got %d, want 1", alarmStore.createCalls)
	}
}
