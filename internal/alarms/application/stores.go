package application

import (
	"context"
	"time"

	alarms "refundtrack/internal/alarms/domain"
	cases "refundtrack/internal/cases/domain"
)

// CaseStore reads case state from the case-management collaborator.
type CaseStore interface {
	GetCase(ctx context.Context, id string) (*cases.State, error)
	// ListAlarmEligible pages case states whose federal or state status
	// belongs to an alarm-eligible family, cursor-ordered by case ID.
	ListAlarmEligible(ctx context.Context, cursor string, limit int) ([]cases.State, bool, string, error)
}

// AlarmStore persists alarm history records.
type AlarmStore interface {
	GetByID(ctx context.Context, id string) (*alarms.Record, error)
	FindOpen(ctx context.Context, caseID string) ([]alarms.Record, error)
	FindOpenByTypeTrack(ctx context.Context, caseID string, alarmType alarms.Type, track cases.Track) (*alarms.Record, error)
	Create(ctx context.Context, record *alarms.Record) error
	// UpdateObserved refreshes actual_days and message on an open record.
	UpdateObserved(ctx context.Context, id string, actualDays int, message string, updatedAt time.Time) error
	MarkAcknowledged(ctx context.Context, id string, at time.Time) error
	MarkResolved(ctx context.Context, id, resolvedBy, note string, at time.Time) error
	MarkDismissed(ctx context.Context, id, resolvedBy, note string, at time.Time) error
	MarkAutoResolved(ctx context.Context, id, reason string, at time.Time) error
	ListByCase(ctx context.Context, caseID string, resolution alarms.Resolution) ([]alarms.Record, error)
	// CountOpenByCases returns the open-record count per case ID.
	CountOpenByCases(ctx context.Context, caseIDs []string) (map[string]int, error)
}

// ThresholdStore persists per-case threshold overrides.
type ThresholdStore interface {
	GetOverride(ctx context.Context, caseID string) (*alarms.Override, error)
	UpsertOverride(ctx context.Context, override *alarms.Override) error
	DeleteOverride(ctx context.Context, caseID string) error
}

// RunStore persists batch run statistics so the last completed run survives
// a restart.
type RunStore interface {
	SaveRun(ctx context.Context, stats RunStats) error
	LastRun(ctx context.Context) (*RunStats, error)
}

// Notifier dispatches a client-facing notification. Implementations are
// best-effort; delivery failure must never affect alarm bookkeeping.
type Notifier interface {
	Notify(ctx context.Context, userID, templateKey string, variables map[string]string) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
