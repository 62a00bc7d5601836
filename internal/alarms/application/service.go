package application

import (
	"context"
	"errors"

	alarms "refundtrack/internal/alarms/domain"
	"refundtrack/internal/observability/metrics"
)

// Service handles operator actions on alarm records. Resolution moves one
// way; operations on already-terminal records are no-ops, not errors.
type Service struct {
	alarmStore AlarmStore
	clock      Clock
}

// NewService constructs an alarm record service.
func NewService(alarmStore AlarmStore, clock Clock) (*Service, error) {
	if alarmStore == nil {
		return nil, errors.New("alarms: nil store")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{alarmStore: alarmStore, clock: clock}, nil
}

// Acknowledge moves an active alarm to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id string) (*alarms.Record, error) {
	return s.transition(ctx, id, alarms.ResolutionAcknowledged, "", "")
}

// Resolve marks an open alarm resolved by an operator.
func (s *Service) Resolve(ctx context.Context, id, resolvedBy, note string) (*alarms.Record, error) {
	return s.transition(ctx, id, alarms.ResolutionResolved, resolvedBy, note)
}

// Dismiss marks an open alarm dismissed by an operator.
func (s *Service) Dismiss(ctx context.Context, id, resolvedBy, note string) (*alarms.Record, error) {
	return s.transition(ctx, id, alarms.ResolutionDismissed, resolvedBy, note)
}

// ListByCase returns the case's alarm history, optionally filtered by resolution.
func (s *Service) ListByCase(ctx context.Context, caseID string, resolution alarms.Resolution) ([]alarms.Record, error) {
	if caseID == "" {
		return nil, errors.New("alarms: case id required")
	}
	return s.alarmStore.ListByCase(ctx, caseID, resolution)
}

// GetByID fetches one alarm record.
func (s *Service) GetByID(ctx context.Context, id string) (*alarms.Record, error) {
	if id == "" {
		return nil, errors.New("alarms: alarm id required")
	}
	record, err := s.alarmStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, alarms.ErrNotFound
	}
	return record, nil
}

func (s *Service) transition(ctx context.Context, id string, to alarms.Resolution, resolvedBy, note string) (*alarms.Record, error) {
	if s == nil {
		return nil, errors.New("alarms: nil service")
	}
	record, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Resolution == to || record.Resolution.IsTerminal() {
		return record, nil
	}
	if !record.Resolution.CanTransition(to) {
		return record, nil
	}
	now := s.clock.Now().UTC()
	switch to {
	case alarms.ResolutionAcknowledged:
		if err := s.alarmStore.MarkAcknowledged(ctx, record.ID, now); err != nil {
			return nil, err
		}
	case alarms.ResolutionResolved:
		if err := s.alarmStore.MarkResolved(ctx, record.ID, resolvedBy, note, now); err != nil {
			return nil, err
		}
		record.ResolvedAt = &now
		record.ResolvedBy = resolvedBy
		record.ResolutionNote = note
	case alarms.ResolutionDismissed:
		if err := s.alarmStore.MarkDismissed(ctx, record.ID, resolvedBy, note, now); err != nil {
			return nil, err
		}
		record.ResolvedAt = &now
		record.ResolvedBy = resolvedBy
		record.ResolutionNote = note
	default:
		return record, nil
	}
	record.Resolution = to
	record.UpdatedAt = now
	metrics.IncAlarmEvent(string(to))
	return record, nil
}
