package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	cases "refundtrack/internal/cases/domain"
)

// CaseRepository is a Postgres repository for case state.
type CaseRepository struct {
	db *sql.DB
}

// NewCaseRepository constructs a repository.
func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

const caseColumns = `id, user_id, status, federal_status, federal_changed_at, state_status, state_changed_at, updated_at`

// GetCase fetches the alarm-relevant snapshot of one case.
func (r *CaseRepository) GetCase(ctx context.Context, id string) (*cases.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("case repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+caseColumns+`
FROM cases
WHERE id = $1`, id)
	return scanCase(row)
}

// ListAlarmEligible pages cases whose federal or state status belongs to an
// alarm-eligible family, ordered by case ID for cursor pagination. It reads
// limit+1 rows to compute hasMore without a count query.
func (r *CaseRepository) ListAlarmEligible(ctx context.Context, cursor string, limit int) ([]cases.State, bool, string, error) {
	if r == nil || r.db == nil {
		return nil, false, "", errors.New("case repo: nil db")
	}
	if limit <= 0 {
		limit = 20
	}

	eligible := cases.AlarmEligibleTrackStatuses()
	placeholders := make([]string, len(eligible))
	args := make([]any, 0, len(eligible)+2)
	for i, status := range eligible {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, string(status))
	}
	in := strings.Join(placeholders, ", ")

	query := `
SELECT ` + caseColumns + `
FROM cases
WHERE (federal_status IN (` + in + `) OR state_status IN (` + in + `))`
	if cursor != "" {
		query += fmt.Sprintf(" AND id > $%d", len(args)+1)
		args = append(args, cursor)
	}
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, "", err
	}
	defer rows.Close()

	var result []cases.State
	for rows.Next() {
		state, err := scanCase(rows)
		if err != nil {
			return nil, false, "", err
		}
		result = append(result, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, false, "", err
	}

	hasMore := len(result) > limit
	if hasMore {
		result = result[:limit]
	}
	nextCursor := ""
	if hasMore && len(result) > 0 {
		nextCursor = result[len(result)-1].ID
	}
	return result, hasMore, nextCursor, nil
}

// UpdateTrackStatus persists a track status change and its changed-at stamp.
func (r *CaseRepository) UpdateTrackStatus(ctx context.Context, id string, track cases.Track, status cases.TrackStatus, changedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("case repo: nil db")
	}
	if !track.Valid() {
		return errors.New("case repo: unknown track")
	}
	statusColumn, changedColumn := "federal_status", "federal_changed_at"
	if track == cases.TrackState {
		statusColumn, changedColumn = "state_status", "state_changed_at"
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE cases
SET `+statusColumn+` = $1, `+changedColumn+` = $2, updated_at = $2
WHERE id = $3`, string(status), changedAt, id)
	if err != nil {
		return err
	}
	return ensureRow(result)
}

// UpdateCaseStatus persists a case workflow status change.
func (r *CaseRepository) UpdateCaseStatus(ctx context.Context, id string, status cases.Status, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("case repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE cases
SET status = $1, updated_at = $2
WHERE id = $3`, string(status), at, id)
	if err != nil {
		return err
	}
	return ensureRow(result)
}

func ensureRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return cases.ErrNotFound
	}
	return nil
}

type caseScanner interface {
	Scan(dest ...any) error
}

func scanCase(row caseScanner) (*cases.State, error) {
	var state cases.State
	var federalChangedAt sql.NullTime
	var stateChangedAt sql.NullTime
	if err := row.Scan(
		&state.ID,
		&state.UserID,
		&state.Status,
		&state.FederalStatus,
		&federalChangedAt,
		&state.StateStatus,
		&stateChangedAt,
		&state.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if federalChangedAt.Valid {
		t := federalChangedAt.Time.UTC()
		state.FederalChangedAt = &t
	}
	if stateChangedAt.Valid {
		t := stateChangedAt.Time.UTC()
		state.StateChangedAt = &t
	}
	state.UpdatedAt = state.UpdatedAt.UTC()
	return &state, nil
}
