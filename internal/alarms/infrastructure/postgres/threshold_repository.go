package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "refundtrack/internal/alarms/domain"
)

// ThresholdRepository is a Postgres repository for per-case threshold
// overrides. At most one row exists per case (upsert keyed by case_id).
type ThresholdRepository struct {
	db *sql.DB
}

// NewThresholdRepository constructs a repository.
func NewThresholdRepository(db *sql.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// GetOverride returns the case's override, or nil when none exists.
func (r *ThresholdRepository) GetOverride(ctx context.Context, caseID string) (*alarms.Override, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("threshold repo: nil db")
	}
	if caseID == "" {
		return nil, errors.New("threshold repo: case id required")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT case_id, federal_in_process_days, state_in_process_days, verification_timeout_days,
	letter_sent_timeout_days, disable_federal, disable_state, reason, created_by,
	created_at, updated_at
FROM threshold_overrides
WHERE case_id = $1`, caseID)

	var override alarms.Override
	var federal, state, verification, letter sql.NullInt64
	var reason, createdBy sql.NullString
	if err := row.Scan(
		&override.CaseID,
		&federal,
		&state,
		&verification,
		&letter,
		&override.DisableFederal,
		&override.DisableState,
		&reason,
		&createdBy,
		&override.CreatedAt,
		&override.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	override.FederalInProcessDays = intPtr(federal)
	override.StateInProcessDays = intPtr(state)
	override.VerificationTimeoutDays = intPtr(verification)
	override.LetterSentTimeoutDays = intPtr(letter)
	if reason.Valid {
		override.Reason = reason.String
	}
	if createdBy.Valid {
		override.CreatedBy = createdBy.String
	}
	override.CreatedAt = override.CreatedAt.UTC()
	override.UpdatedAt = override.UpdatedAt.UTC()
	return &override, nil
}

// UpsertOverride inserts or replaces the case's override.
func (r *ThresholdRepository) UpsertOverride(ctx context.Context, override *alarms.Override) error {
	if r == nil || r.db == nil {
		return errors.New("threshold repo: nil db")
	}
	if override == nil || override.CaseID == "" {
		return errors.New("threshold repo: case id required")
	}
	if override.CreatedAt.IsZero() {
		override.CreatedAt = time.Now().UTC()
	}
	if override.UpdatedAt.IsZero() {
		override.UpdatedAt = override.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO threshold_overrides (
	case_id, federal_in_process_days, state_in_process_days, verification_timeout_days,
	letter_sent_timeout_days, disable_federal, disable_state, reason, created_by,
	created_at, updated_at
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7, $8, $9,
	$10, $11
)
ON CONFLICT (case_id) DO UPDATE SET
	federal_in_process_days = EXCLUDED.federal_in_process_days,
	state_in_process_days = EXCLUDED.state_in_process_days,
	verification_timeout_days = EXCLUDED.verification_timeout_days,
	letter_sent_timeout_days = EXCLUDED.letter_sent_timeout_days,
	disable_federal = EXCLUDED.disable_federal,
	disable_state = EXCLUDED.disable_state,
	reason = EXCLUDED.reason,
	updated_at = EXCLUDED.updated_at`,
		override.CaseID,
		nullableInt(override.FederalInProcessDays),
		nullableInt(override.StateInProcessDays),
		nullableInt(override.VerificationTimeoutDays),
		nullableInt(override.LetterSentTimeoutDays),
		override.DisableFederal,
		override.DisableState,
		nullableString(override.Reason),
		nullableString(override.CreatedBy),
		override.CreatedAt,
		override.UpdatedAt,
	)
	return err
}

// DeleteOverride removes the case's override, reverting it to defaults.
// Deleting a missing override is a no-op.
func (r *ThresholdRepository) DeleteOverride(ctx context.Context, caseID string) error {
	if r == nil || r.db == nil {
		return errors.New("threshold repo: nil db")
	}
	if caseID == "" {
		return errors.New("threshold repo: case id required")
	}
	_, err := r.db.ExecContext(ctx, `
DELETE FROM threshold_overrides
WHERE case_id = $1`, caseID)
	return err
}

func intPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}
