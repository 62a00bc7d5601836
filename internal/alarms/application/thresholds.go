package application

import (
	"context"
	"errors"
	"log"

	alarms "refundtrack/internal/alarms/domain"
)

// ThresholdService merges per-case overrides with system defaults and
// manages the override lifecycle.
type ThresholdService struct {
	store    ThresholdStore
	defaults alarms.Defaults
	clock    Clock
	logger   *log.Logger
}

// NewThresholdService constructs a threshold service.
func NewThresholdService(store ThresholdStore, defaults alarms.Defaults, clock Clock, logger *log.Logger) (*ThresholdService, error) {
	if store == nil {
		return nil, errors.New("thresholds: nil store")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ThresholdService{store: store, defaults: defaults, clock: clock, logger: logger}, nil
}

// Defaults returns the system default thresholds.
func (s *ThresholdService) Defaults() alarms.Defaults {
	return s.defaults
}

// Resolve returns the effective thresholds for a case. Absence of an
// override is the common case; a store read failure falls back to the
// defaults so alarm computation never stalls on the override lookup.
func (s *ThresholdService) Resolve(ctx context.Context, caseID string) alarms.Effective {
	override, err := s.store.GetOverride(ctx, caseID)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("event=threshold_lookup_failed case_id=%s err=%v", caseID, err)
		}
		return alarms.Merge(s.defaults, nil)
	}
	return alarms.Merge(s.defaults, override)
}

// GetOverride returns the stored override, or nil when none exists.
func (s *ThresholdService) GetOverride(ctx context.Context, caseID string) (*alarms.Override, error) {
	return s.store.GetOverride(ctx, caseID)
}

// Upsert creates or replaces the case's override, stamping audit fields.
func (s *ThresholdService) Upsert(ctx context.Context, override *alarms.Override, actor string) (*alarms.Override, error) {
	if override == nil || override.CaseID == "" {
		return nil, errors.New("thresholds: case id required")
	}
	if err := validateOverride(override); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	existing, err := s.store.GetOverride(ctx, override.CaseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		override.CreatedAt = existing.CreatedAt
		if override.CreatedBy == "" {
			override.CreatedBy = existing.CreatedBy
		}
	} else {
		override.CreatedAt = now
		override.CreatedBy = actor
	}
	override.UpdatedAt = now
	if err := s.store.UpsertOverride(ctx, override); err != nil {
		return nil, err
	}
	return override, nil
}

// Delete removes the case's override, reverting it to defaults.
func (s *ThresholdService) Delete(ctx context.Context, caseID string) error {
	if caseID == "" {
		return errors.New("thresholds: case id required")
	}
	return s.store.DeleteOverride(ctx, caseID)
}

func validateOverride(override *alarms.Override) error {
	for _, days := range []*int{
		override.FederalInProcessDays,
		override.StateInProcessDays,
		override.VerificationTimeoutDays,
		override.LetterSentTimeoutDays,
	} {
		if days != nil && *days <= 0 {
			return errors.New("thresholds: day limits must be positive")
		}
	}
	return nil
}
