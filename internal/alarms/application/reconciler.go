package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	alarms "refundtrack/internal/alarms/domain"
	cases "refundtrack/internal/cases/domain"
	"refundtrack/internal/observability/metrics"
)

// AutoResolveReasonDuplicate is stamped on redundant open records found at
// read time; the most-recently-triggered record stays canonical.
const AutoResolveReasonDuplicate = "duplicate open record superseded"

// Reconciler keeps persisted alarm records consistent with live case state.
// Safe to call concurrently for different case IDs and repeatedly for the
// same case ID; calls for one case ID are serialized.
type Reconciler struct {
	caseStore  CaseStore
	alarmStore AlarmStore
	thresholds *ThresholdService
	notifier   Notifier
	clock      Clock
	logger     *log.Logger

	mu    sync.Mutex
	locks map[string]*caseLock
}

type caseLock struct {
	mu   sync.Mutex
	refs int
}

// ReconcilerOption customizes the reconciler.
type ReconcilerOption func(*Reconciler)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) ReconcilerOption {
	return func(r *Reconciler) {
		r.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ReconcilerOption {
	return func(r *Reconciler) {
		r.clock = clock
	}
}

// NewReconciler constructs a reconciler.
func NewReconciler(caseStore CaseStore, alarmStore AlarmStore, thresholds *ThresholdService, logger *log.Logger, opts ...ReconcilerOption) (*Reconciler, error) {
	if caseStore == nil || alarmStore == nil {
		return nil, errors.New("reconciler: nil store")
	}
	if thresholds == nil {
		return nil, errors.New("reconciler: nil threshold service")
	}
	r := &Reconciler{
		caseStore:  caseStore,
		alarmStore: alarmStore,
		thresholds: thresholds,
		clock:      SystemClock{},
		logger:     logger,
		locks:      make(map[string]*caseLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile converges the case's open alarm records onto the alarm set
// computed from its current state: stale records are auto-resolved, new
// conditions create records, and matching records get their observed
// elapsed days refreshed. After it returns, open records are in 1:1
// correspondence with the computed set at the time of the call.
func (r *Reconciler) Reconcile(ctx context.Context, caseID string) error {
	if r == nil {
		return errors.New("reconciler: nil")
	}
	if caseID == "" {
		return errors.New("reconciler: case id required")
	}
	started := time.Now()
	err := r.reconcile(ctx, caseID)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveReconcile(result, time.Since(started))
	return err
}

func (r *Reconciler) reconcile(ctx context.Context, caseID string) error {
	unlock := r.lockCase(caseID)
	defer unlock()

	state, err := r.caseStore.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	if state == nil {
		return cases.ErrNotFound
	}

	now := r.clock.Now().UTC()
	eff := r.thresholds.Resolve(ctx, caseID)
	computed := alarms.Calculate(state.FederalStatus, state.FederalChangedAt,
		state.StateStatus, state.StateChangedAt, eff, now)

	open, err := r.alarmStore.FindOpen(ctx, caseID)
	if err != nil {
		return err
	}
	openByKey, err := r.repairDuplicates(ctx, caseID, open, now)
	if err != nil {
		return err
	}

	computedByKey := make(map[alarms.Key]alarms.Computed, len(computed))
	for _, c := range computed {
		computedByKey[c.KeyOf()] = c
	}

	for key, record := range openByKey {
		if _, still := computedByKey[key]; still {
			continue
		}
		if err := r.alarmStore.MarkAutoResolved(ctx, record.ID, alarms.AutoResolveReasonStatusChanged, now); err != nil {
			return err
		}
		metrics.IncAlarmEvent("auto_resolved")
		r.logf("alarm_auto_resolved", caseID, record.ID, string(key.Type), string(key.Track), "")
	}

	for key, c := range computedByKey {
		record, matched := openByKey[key]
		if matched {
			if err := r.alarmStore.UpdateObserved(ctx, record.ID, c.ActualDays, c.Message, now); err != nil {
				return err
			}
			continue
		}
		created, err := r.createRecord(ctx, state, c, now)
		if err != nil {
			return err
		}
		metrics.IncAlarmEvent("triggered")
		r.logf("alarm_triggered", caseID, created.ID, string(key.Type), string(key.Track), "")
		r.dispatchNotification(ctx, state, created)
	}
	return nil
}

func (r *Reconciler) createRecord(ctx context.Context, state *cases.State, c alarms.Computed, now time.Time) (*alarms.Record, error) {
	status, changedAt := state.TrackStatusOf(c.Track)
	record := &alarms.Record{
		ID:              buildRecordID(state.ID, c.Type, c.Track, now),
		CaseID:          state.ID,
		Type:            c.Type,
		Severity:        c.Severity,
		Track:           c.Track,
		Message:         c.Message,
		ThresholdDays:   c.ThresholdDays,
		ActualDays:      c.ActualDays,
		StatusAtTrigger: string(status),
		StatusChangedAt: changedAt,
		Resolution:      alarms.ResolutionActive,
		TriggeredAt:     now,
		UpdatedAt:       now,
	}
	if err := r.alarmStore.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// dispatchNotification is best-effort: failures are logged and swallowed
// so alarm persistence never depends on notification delivery.
func (r *Reconciler) dispatchNotification(ctx context.Context, state *cases.State, record *alarms.Record) {
	if r.notifier == nil {
		return
	}
	vars := map[string]string{
		"case_id":        record.CaseID,
		"alarm_type":     string(record.Type),
		"track":          string(record.Track),
		"severity":       string(record.Severity),
		"message":        record.Message,
		"threshold_days": fmt.Sprintf("%d", record.ThresholdDays),
		"actual_days":    fmt.Sprintf("%d", record.ActualDays),
		"status":         record.StatusAtTrigger,
	}
	if err := r.notifier.Notify(ctx, state.UserID, TemplateKeyFor(record.Type, record.Track), vars); err != nil {
		r.logf("alarm_notify_failed", record.CaseID, record.ID, string(record.Type), string(record.Track), err.Error())
	}
}

// repairDuplicates collapses multiple open records per (type, track) key
// down to the most-recently-triggered one. Duplicates indicate a past
// invariant breach; they are logged loudly and auto-resolved, never deleted.
func (r *Reconciler) repairDuplicates(ctx context.Context, caseID string, open []alarms.Record, now time.Time) (map[alarms.Key]alarms.Record, error) {
	grouped := make(map[alarms.Key][]alarms.Record)
	for _, record := range open {
		key := record.KeyOf()
		grouped[key] = append(grouped[key], record)
	}
	result := make(map[alarms.Key]alarms.Record, len(grouped))
	for key, records := range grouped {
		if len(records) == 1 {
			result[key] = records[0]
			continue
		}
		sort.Slice(records, func(i, j int) bool {
			return records[i].TriggeredAt.After(records[j].TriggeredAt)
		})
		r.logf("alarm_duplicate_open_records", caseID, records[0].ID, string(key.Type), string(key.Track),
			fmt.Sprintf("found=%d keeping most recent", len(records)))
		for _, stale := range records[1:] {
			if err := r.alarmStore.MarkAutoResolved(ctx, stale.ID, AutoResolveReasonDuplicate, now); err != nil {
				return nil, err
			}
		}
		result[key] = records[0]
	}
	return result, nil
}

func (r *Reconciler) lockCase(caseID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[caseID]
	if !ok {
		lock = &caseLock{}
		r.locks[caseID] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(r.locks, caseID)
		}
		r.mu.Unlock()
	}
}

// TemplateKeyFor names the notification template for an alarm type/track.
func TemplateKeyFor(alarmType alarms.Type, track cases.Track) string {
	return "alarm_" + string(alarmType) + "_" + string(track)
}

func buildRecordID(caseID string, alarmType alarms.Type, track cases.Track, at time.Time) string {
	sum := sha1.Sum([]byte(caseID + "|" + string(alarmType) + "|" + string(track) + "|" + at.Format(time.RFC3339Nano)))
	return "alarm-" + hex.EncodeToString(sum[:8])
}

func (r *Reconciler) logf(event, caseID, alarmID, alarmType, track, detail string) {
	if r.logger == nil {
		return
	}
	r.logger.Printf("event=%s case_id=%s alarm_id=%s type=%s track=%s detail=%s",
		event, caseID, alarmID, alarmType, track, detail)
}
