package application

import (
	"context"
	"errors"
	"log"
	"time"

	cases "refundtrack/internal/cases/domain"
	"refundtrack/internal/observability/metrics"
)

// CaseRepository persists case status changes.
type CaseRepository interface {
	GetCase(ctx context.Context, id string) (*cases.State, error)
	UpdateCaseStatus(ctx context.Context, id string, status cases.Status, at time.Time) error
	UpdateTrackStatus(ctx context.Context, id string, track cases.Track, status cases.TrackStatus, changedAt time.Time) error
}

// Reconciler reconciles one case's alarm records after a status change.
type Reconciler interface {
	Reconcile(ctx context.Context, caseID string) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// StatusService validates and applies status transitions, then reconciles
// the case's alarms synchronously so a terminal move auto-resolves stale
// records without waiting for the nightly run.
type StatusService struct {
	repo       CaseRepository
	reconciler Reconciler
	clock      Clock
	logger     *log.Logger
}

// NewStatusService constructs a status service.
func NewStatusService(repo CaseRepository, reconciler Reconciler, clock Clock, logger *log.Logger) (*StatusService, error) {
	if repo == nil {
		return nil, errors.New("status service: nil repository")
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &StatusService{repo: repo, reconciler: reconciler, clock: clock, logger: logger}, nil
}

// ApplyTrackStatus moves one track to a new status. A same-status update is
// a valid no-op that leaves the changed-at timestamp untouched.
func (s *StatusService) ApplyTrackStatus(ctx context.Context, caseID string, track cases.Track, to cases.TrackStatus) (*cases.State, error) {
	if s == nil {
		return nil, errors.New("status service: nil")
	}
	if caseID == "" {
		return nil, errors.New("status service: case id required")
	}
	if !track.Valid() {
		return nil, errors.New("status service: unknown track")
	}
	state, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, cases.ErrNotFound
	}

	family := cases.TrackFamily(track)
	current, _ := state.TrackStatusOf(track)
	if err := cases.ValidateTransition(family, string(current), string(to)); err != nil {
		metrics.IncStatusChange(string(family), "rejected")
		return nil, err
	}
	if current == to {
		return state, nil
	}

	now := s.clock.Now().UTC()
	if err := s.repo.UpdateTrackStatus(ctx, caseID, track, to, now); err != nil {
		metrics.IncStatusChange(string(family), "error")
		return nil, err
	}
	metrics.IncStatusChange(string(family), "applied")
	if track == cases.TrackState {
		state.StateStatus = to
		state.StateChangedAt = &now
	} else {
		state.FederalStatus = to
		state.FederalChangedAt = &now
	}
	state.UpdatedAt = now
	s.logf("track_status_changed", caseID, string(track), string(current), string(to))

	if s.reconciler != nil {
		if err := s.reconciler.Reconcile(ctx, caseID); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// ApplyCaseStatus moves the case-level workflow status.
func (s *StatusService) ApplyCaseStatus(ctx context.Context, caseID string, to cases.Status) (*cases.State, error) {
	if s == nil {
		return nil, errors.New("status service: nil")
	}
	if caseID == "" {
		return nil, errors.New("status service: case id required")
	}
	state, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, cases.ErrNotFound
	}
	if err := cases.ValidateTransition(cases.FamilyCase, string(state.Status), string(to)); err != nil {
		metrics.IncStatusChange(string(cases.FamilyCase), "rejected")
		return nil, err
	}
	if state.Status == to {
		return state, nil
	}
	now := s.clock.Now().UTC()
	if err := s.repo.UpdateCaseStatus(ctx, caseID, to, now); err != nil {
		metrics.IncStatusChange(string(cases.FamilyCase), "error")
		return nil, err
	}
	metrics.IncStatusChange(string(cases.FamilyCase), "applied")
	s.logf("case_status_changed", caseID, "case", string(state.Status), string(to))
	state.Status = to
	state.UpdatedAt = now
	return state, nil
}

// Get loads one case state.
func (s *StatusService) Get(ctx context.Context, caseID string) (*cases.State, error) {
	if s == nil {
		return nil, errors.New("status service: nil")
	}
	state, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, cases.ErrNotFound
	}
	return state, nil
}

// ValidNextStatuses returns the permitted next statuses for a family.
func (s *StatusService) ValidNextStatuses(family cases.Family, from string) []string {
	return cases.ValidNextStatuses(family, from)
}

func (s *StatusService) logf(event, caseID, track, from, to string) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("event=%s case_id=%s track=%s from=%s to=%s", event, caseID, track, from, to)
}
