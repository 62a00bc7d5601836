package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	alarms "refundtrack/internal/alarms/domain"
	cases "refundtrack/internal/cases/domain"
)

// AlarmRepository is a Postgres repository for alarm records.
type AlarmRepository struct {
	db *sql.DB
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

const alarmColumns = `id, case_id, alarm_type, severity, track, message, threshold_days, actual_days,
	status_at_trigger, status_changed_at, resolution, resolved_at, resolved_by, resolution_note,
	auto_resolve_reason, triggered_at, updated_at`

// Create inserts a new alarm record.
func (r *AlarmRepository) Create(ctx context.Context, record *alarms.Record) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if record == nil {
		return errors.New("alarm repo: nil record")
	}
	if record.ID == "" || record.CaseID == "" {
		return errors.New("alarm repo: missing fields")
	}
	if record.TriggeredAt.IsZero() {
		record.TriggeredAt = time.Now().UTC()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.TriggeredAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarm_records (
	id, case_id, alarm_type, severity, track, message, threshold_days, actual_days,
	status_at_trigger, status_changed_at, resolution, resolved_at, resolved_by, resolution_note,
	auto_resolve_reason, triggered_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13, $14,
	$15, $16, $17
)`,
		record.ID,
		record.CaseID,
		string(record.Type),
		string(record.Severity),
		string(record.Track),
		record.Message,
		record.ThresholdDays,
		record.ActualDays,
		record.StatusAtTrigger,
		nullableTimePtr(record.StatusChangedAt),
		string(record.Resolution),
		nullableTimePtr(record.ResolvedAt),
		nullableString(record.ResolvedBy),
		nullableString(record.ResolutionNote),
		nullableString(record.AutoResolveReason),
		record.TriggeredAt,
		record.UpdatedAt,
	)
	return err
}

// GetByID fetches an alarm record by id.
func (r *AlarmRepository) GetByID(ctx context.Context, id string) (*alarms.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+alarmColumns+`
FROM alarm_records
WHERE id = $1`, id)
	return scanRecord(row)
}

// FindOpen returns every open (active or acknowledged) record for a case.
func (r *AlarmRepository) FindOpen(ctx context.Context, caseID string) ([]alarms.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if caseID == "" {
		return nil, errors.New("alarm repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+alarmColumns+`
FROM alarm_records
WHERE case_id = $1 AND resolution IN ('active', 'acknowledged')
ORDER BY triggered_at DESC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// FindOpenByTypeTrack returns the open record for a (case, type, track)
// tuple, or nil. At most one should exist; the most recent wins.
func (r *AlarmRepository) FindOpenByTypeTrack(ctx context.Context, caseID string, alarmType alarms.Type, track cases.Track) (*alarms.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if caseID == "" {
		return nil, errors.New("alarm repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+alarmColumns+`
FROM alarm_records
WHERE case_id = $1 AND alarm_type = $2 AND track = $3
	AND resolution IN ('active', 'acknowledged')
ORDER BY triggered_at DESC
LIMIT 1`, caseID, string(alarmType), string(track))
	return scanRecord(row)
}

// UpdateObserved refreshes the observed elapsed days and message.
func (r *AlarmRepository) UpdateObserved(ctx context.Context, id string, actualDays int, message string, updatedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alarm_records
SET actual_days = $1, message = $2, updated_at = $3
WHERE id = $4 AND resolution IN ('active', 'acknowledged')`, actualDays, message, updatedAt, id)
	return err
}

// MarkAcknowledged moves a record to acknowledged. An update against a
// terminally resolved record matches no row and is a no-op.
func (r *AlarmRepository) MarkAcknowledged(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alarm_records
SET resolution = $1, updated_at = $2
WHERE id = $3 AND resolution IN ('active', 'acknowledged')`, string(alarms.ResolutionAcknowledged), at, id)
	return err
}

// MarkResolved moves a record to resolved with operator attribution.
func (r *AlarmRepository) MarkResolved(ctx context.Context, id, resolvedBy, note string, at time.Time) error {
	return r.markTerminal(ctx, id, alarms.ResolutionResolved, resolvedBy, note, "", at)
}

// MarkDismissed moves a record to dismissed with operator attribution.
func (r *AlarmRepository) MarkDismissed(ctx context.Context, id, resolvedBy, note string, at time.Time) error {
	return r.markTerminal(ctx, id, alarms.ResolutionDismissed, resolvedBy, note, "", at)
}

// MarkAutoResolved moves a record to auto_resolved with a machine reason.
func (r *AlarmRepository) MarkAutoResolved(ctx context.Context, id, reason string, at time.Time) error {
	return r.markTerminal(ctx, id, alarms.ResolutionAutoResolved, "", "", reason, at)
}

// markTerminal closes an open record. Resolution is one-way: a record
// already in a terminal state matches no row, so a concurrent reconcile can
// never overwrite an operator's resolution.
func (r *AlarmRepository) markTerminal(ctx context.Context, id string, resolution alarms.Resolution, resolvedBy, note, reason string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alarm_records
SET resolution = $1, resolved_at = $2, resolved_by = $3, resolution_note = $4,
	auto_resolve_reason = $5, updated_at = $6
WHERE id = $7 AND resolution IN ('active', 'acknowledged')`,
		string(resolution), at, nullableString(resolvedBy), nullableString(note),
		nullableString(reason), at, id)
	return err
}

// ListByCase lists a case's alarm history, optionally filtered by resolution.
func (r *AlarmRepository) ListByCase(ctx context.Context, caseID string, resolution alarms.Resolution) ([]alarms.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if caseID == "" {
		return nil, errors.New("alarm repo: invalid query")
	}
	query := `
SELECT ` + alarmColumns + `
FROM alarm_records
WHERE case_id = $1`
	args := []any{caseID}
	if resolution != "" {
		query += " AND resolution = $2"
		args = append(args, string(resolution))
	}
	query += " ORDER BY triggered_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CountOpenByCases returns the open-record count per case ID. Cases with
// no open records are absent from the map.
func (r *AlarmRepository) CountOpenByCases(ctx context.Context, caseIDs []string) (map[string]int, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	counts := make(map[string]int, len(caseIDs))
	if len(caseIDs) == 0 {
		return counts, nil
	}
	placeholders := make([]string, len(caseIDs))
	args := make([]any, len(caseIDs))
	for i, id := range caseIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT case_id, COUNT(*)
FROM alarm_records
WHERE case_id IN (`+strings.Join(placeholders, ", ")+`)
	AND resolution IN ('active', 'acknowledged')
GROUP BY case_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var caseID string
		var count int
		if err := rows.Scan(&caseID, &count); err != nil {
			return nil, err
		}
		counts[caseID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

type recordScanner interface {
	Scan(dest ...any) error
}

func collectRecords(rows *sql.Rows) ([]alarms.Record, error) {
	var result []alarms.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanRecord(row recordScanner) (*alarms.Record, error) {
	var record alarms.Record
	var statusChangedAt sql.NullTime
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullString
	var note sql.NullString
	var reason sql.NullString
	if err := row.Scan(
		&record.ID,
		&record.CaseID,
		&record.Type,
		&record.Severity,
		&record.Track,
		&record.Message,
		&record.ThresholdDays,
		&record.ActualDays,
		&record.StatusAtTrigger,
		&statusChangedAt,
		&record.Resolution,
		&resolvedAt,
		&resolvedBy,
		&note,
		&reason,
		&record.TriggeredAt,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	record.TriggeredAt = record.TriggeredAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if statusChangedAt.Valid {
		t := statusChangedAt.Time.UTC()
		record.StatusChangedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		record.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		record.ResolvedBy = resolvedBy.String
	}
	if note.Valid {
		record.ResolutionNote = note.String
	}
	if reason.Valid {
		record.AutoResolveReason = reason.String
	}
	return &record, nil
}

func nullableTimePtr(value *time.Time) sql.NullTime {
	if value == nil || value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
