package cases

import (
	"errors"
	"time"
)

// ErrNotFound indicates a missing case record.
var ErrNotFound = errors.New("case: not found")

// State is the alarm-relevant snapshot of a case: per-track status plus
// the timestamp of the last change to that status. The full case record
// is owned by the case-management collaborator.
type State struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Status           Status      `json:"status"`
	FederalStatus    TrackStatus `json:"federal_status"`
	FederalChangedAt *time.Time  `json:"federal_changed_at,omitempty"`
	StateStatus      TrackStatus `json:"state_status"`
	StateChangedAt   *time.Time  `json:"state_changed_at,omitempty"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TrackStatusOf returns the status and changed-at for one track.
func (s State) TrackStatusOf(track Track) (TrackStatus, *time.Time) {
	if track == TrackState {
		return s.StateStatus, s.StateChangedAt
	}
	return s.FederalStatus, s.FederalChangedAt
}

// BothTracksCompleted reports whether the case qualifies for the
// dashboard's hideCompleted filter.
func (s State) BothTracksCompleted() bool {
	return s.FederalStatus.IsCompleted() && s.StateStatus.IsCompleted()
}
