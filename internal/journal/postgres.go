package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS token_events (
	id          TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	token_id    TEXT,
	slot_id     TEXT,
	doctor_id   TEXT,
	payload     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS token_events_token_id_idx ON token_events (token_id);
`

// execer is the part of *pgxpool.Pool the sink needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgSink appends events to the token_events table.
type PgSink struct {
	db execer
}

func NewPgSink(db execer) *PgSink {
	return &PgSink{db: db}
}

func (s *PgSink) Name() string { return "postgres" }

func (s *PgSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create token_events: %w", err)
	}
	return nil
}

func (s *PgSink) Write(ctx context.Context, ev Event) error {
	var payload []byte
	if len(ev.Payload) > 0 {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", ev.Type, err)
		}
		payload = data
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO token_events (id, event_type, token_id, slot_id, doctor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.Type, nullable(ev.TokenID), nullable(ev.SlotID), nullable(ev.DoctorID), payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert token event: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
