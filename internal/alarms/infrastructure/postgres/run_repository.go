package postgres

import (
	"context"
	"database/sql"
	"errors"

	alarmapp "refundtrack/internal/alarms/application"
)

// RunRepository persists batch reconciliation run statistics so the last
// completed run is reportable across restarts.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun appends one completed run.
func (r *RunRepository) SaveRun(ctx context.Context, stats alarmapp.RunStats) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO reconcile_runs (
	run_at, cases_processed, alarms_triggered, alarms_auto_resolved, errors, duration
) VALUES (
	$1, $2, $3, $4, $5, $6
)`,
		stats.RunAt,
		stats.CasesProcessed,
		stats.AlarmsTriggered,
		stats.AlarmsAutoResolved,
		stats.Errors,
		stats.Duration,
	)
	return err
}

// LastRun returns the most recent run, or nil when none has completed yet.
func (r *RunRepository) LastRun(ctx context.Context) (*alarmapp.RunStats, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT run_at, cases_processed, alarms_triggered, alarms_auto_resolved, errors, duration
FROM reconcile_runs
ORDER BY run_at DESC
LIMIT 1`)

	var stats alarmapp.RunStats
	if err := row.Scan(
		&stats.RunAt,
		&stats.CasesProcessed,
		&stats.AlarmsTriggered,
		&stats.AlarmsAutoResolved,
		&stats.Errors,
		&stats.Duration,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	stats.RunAt = stats.RunAt.UTC()
	return &stats, nil
}
