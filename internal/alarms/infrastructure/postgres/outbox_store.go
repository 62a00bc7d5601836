package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const (
	// OutboxPending rows await delivery.
	OutboxPending = "pending"
	// OutboxSent rows were delivered.
	OutboxSent = "sent"
	// OutboxDead rows exhausted their delivery attempts.
	OutboxDead = "dead"
)

// OutboxRecord is one queued client-facing notification.
type OutboxRecord struct {
	ID          string
	UserID      string
	TemplateKey string
	Variables   map[string]string
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OutboxStore is a Postgres store for the notification outbox.
type OutboxStore struct {
	db *sql.DB
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Insert queues a notification for delivery.
func (s *OutboxStore) Insert(ctx context.Context, record *OutboxRecord) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	if record == nil || record.ID == "" {
		return errors.New("outbox store: missing id")
	}
	variables, err := json.Marshal(record.Variables)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Status = OutboxPending
	_, err = s.db.ExecContext(ctx, `
INSERT INTO notification_outbox (
	id, user_id, template_key, variables, status, attempts, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, 0, $6, $6
)`,
		record.ID,
		record.UserID,
		record.TemplateKey,
		variables,
		record.Status,
		record.CreatedAt,
	)
	return err
}

// ListPending returns up to limit pending notifications, oldest first.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, template_key, variables, status, attempts, COALESCE(last_error, ''), created_at, updated_at
FROM notification_outbox
WHERE status = $1
ORDER BY created_at
LIMIT $2`, OutboxPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OutboxRecord
	for rows.Next() {
		var record OutboxRecord
		var variables []byte
		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.TemplateKey,
			&variables,
			&record.Status,
			&record.Attempts,
			&record.LastError,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(variables) > 0 {
			if err := json.Unmarshal(variables, &record.Variables); err != nil {
				return nil, err
			}
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountPending returns the number of undelivered notifications.
func (s *OutboxStore) CountPending(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("outbox store: nil db")
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM notification_outbox
WHERE status = $1`, OutboxPending).Scan(&count)
	return count, err
}

// MarkSent records a successful delivery.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE notification_outbox
SET status = $1, updated_at = $2
WHERE id = $3`, OutboxSent, time.Now().UTC(), id)
	return err
}

// MarkFailed increments the attempt count and dead-letters the row once
// maxAttempts is reached.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE notification_outbox
SET attempts = attempts + 1,
	last_error = $1,
	status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE status END,
	updated_at = $4
WHERE id = $5`, message, maxAttempts, OutboxDead, time.Now().UTC(), id)
	return err
}
