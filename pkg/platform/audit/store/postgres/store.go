// Package postgres implements the audit outbox. Events written here commit
// atomically with the domain transaction carried in ctx; the relay drains the
// table and publishes to Kafka.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "refhub/pkg/platform/audit"
	txcontext "refhub/pkg/platform/tx"
)

// Schema is the outbox layout, applied idempotently at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_outbox (
    id           UUID PRIMARY KEY,
    action       TEXT NOT NULL,
    occurred_at  TIMESTAMPTZ NOT NULL,
    payload      JSONB NOT NULL,
    published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_audit_outbox_unpublished ON audit_outbox (occurred_at) WHERE published_at IS NULL;
`

// Store writes audit events to the outbox table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies the outbox schema.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// payload is the JSON structure published to Kafka. Field names match
// audit.Event for proper deserialization by consumers.
type payload struct {
	ID        string `json:"ID"`
	Action    string `json:"Action"`
	Timestamp string `json:"Timestamp"`
	UserID    int64  `json:"UserID,omitempty"`
	Username  string `json:"Username,omitempty"`
	Reason    string `json:"Reason,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
	ClientIP  string `json:"ClientIP,omitempty"`
	UserAgent string `json:"UserAgent,omitempty"`
}

// Append writes an audit event to the outbox for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	body, err := json.Marshal(payload{
		ID:        eventID.String(),
		Action:    string(event.Action),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		UserID:    event.UserID,
		Username:  event.Username,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ClientIP:  event.ClientIP,
		UserAgent: event.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_outbox (id, action, occurred_at, payload)
		VALUES ($1, $2, $3, $4)`,
		eventID, string(event.Action), event.Timestamp, body)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// OutboxRow is an unpublished event awaiting relay.
type OutboxRow struct {
	ID      uuid.UUID
	Action  string
	Payload []byte
}

// FetchUnpublished locks and returns up to limit unpublished rows. Must run
// inside a transaction; SKIP LOCKED lets concurrent relay instances share the
// backlog without double-publishing.
func FetchUnpublished(ctx context.Context, tx *sql.Tx, limit int) ([]OutboxRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, action, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY occurred_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var r OutboxRow
		if err := rows.Scan(&r.ID, &r.Action, &r.Payload); err != nil {
			return nil, fmt.Errorf("fetch unpublished: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch unpublished: %w", err)
	}
	return out, nil
}

// MarkPublished stamps the given rows as delivered.
func MarkPublished(ctx context.Context, tx *sql.Tx, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE audit_outbox SET published_at = $2 WHERE id = $1`, id, at); err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
	}
	return nil
}
