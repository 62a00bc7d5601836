package alarms

import (
	"errors"
	"time"

	cases "refundtrack/internal/cases/domain"
)

// ErrNotFound indicates a missing alarm record.
var ErrNotFound = errors.New("alarm: not found")

// Type classifies a time-based alarm condition.
type Type string

const (
	TypePossibleVerification Type = "possible_verification"
	TypeVerificationTimeout  Type = "verification_timeout"
	TypeLetterSentTimeout    Type = "letter_sent_timeout"
)

// Severity is the alarm level.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Resolution is the lifecycle state of a persisted alarm record.
type Resolution string

const (
	ResolutionActive       Resolution = "active"
	ResolutionAcknowledged Resolution = "acknowledged"
	ResolutionResolved     Resolution = "resolved"
	ResolutionDismissed    Resolution = "dismissed"
	ResolutionAutoResolved Resolution = "auto_resolved"
)

// AutoResolveReasonStatusChanged is stamped on records auto-resolved because
// a status transition made the alarm condition false.
const AutoResolveReasonStatusChanged = "status changed - alarm condition no longer met"

// IsOpen reports whether a record in this resolution still represents a
// live alarm condition.
func (r Resolution) IsOpen() bool {
	return r == ResolutionActive || r == ResolutionAcknowledged
}

// IsTerminal reports whether the resolution admits no further transitions.
func (r Resolution) IsTerminal() bool {
	return r == ResolutionResolved || r == ResolutionDismissed || r == ResolutionAutoResolved
}

// CanTransition reports whether the one-way resolution state machine
// permits moving to the target. Terminal states permit nothing; repeated
// application of an already-reached state is a caller-level no-op.
func (r Resolution) CanTransition(to Resolution) bool {
	switch r {
	case ResolutionActive:
		return to == ResolutionAcknowledged || to == ResolutionResolved ||
			to == ResolutionDismissed || to == ResolutionAutoResolved
	case ResolutionAcknowledged:
		return to == ResolutionResolved || to == ResolutionDismissed ||
			to == ResolutionAutoResolved
	default:
		return false
	}
}

// Record is a persisted alarm history row.
type Record struct {
	ID                string      `json:"id"`
	CaseID            string      `json:"case_id"`
	Type              Type        `json:"type"`
	Severity          Severity    `json:"severity"`
	Track             cases.Track `json:"track"`
	Message           string      `json:"message"`
	ThresholdDays     int         `json:"threshold_days"`
	ActualDays        int         `json:"actual_days"`
	StatusAtTrigger   string      `json:"status_at_trigger"`
	StatusChangedAt   *time.Time  `json:"status_changed_at,omitempty"`
	Resolution        Resolution  `json:"resolution"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy        string      `json:"resolved_by,omitempty"`
	ResolutionNote    string      `json:"resolution_note,omitempty"`
	AutoResolveReason string      `json:"auto_resolve_reason,omitempty"`
	TriggeredAt       time.Time   `json:"triggered_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Computed is an ephemeral alarm derived from live case state. It is
// recomputed on every read and never persisted directly.
type Computed struct {
	Type          Type        `json:"type"`
	Severity      Severity    `json:"severity"`
	Track         cases.Track `json:"track"`
	Message       string      `json:"message"`
	ThresholdDays int         `json:"threshold_days"`
	ActualDays    int         `json:"actual_days"`
}

// Key identifies the open-record dedup tuple (type, track) within one case.
type Key struct {
	Type  Type
	Track cases.Track
}

// KeyOf returns the dedup key for a computed alarm.
func (c Computed) KeyOf() Key {
	return Key{Type: c.Type, Track: c.Track}
}

// KeyOf returns the dedup key for a persisted record.
func (r Record) KeyOf() Key {
	return Key{Type: r.Type, Track: r.Track}
}
