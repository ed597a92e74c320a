// Package postgres provides a pgx-backed Store keeping each conversation
// record as one JSONB row keyed by session id.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloomline-ai/promoflow/convengine/record"
	"github.com/bloomline-ai/promoflow/convengine/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_records (
	session_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	handler    TEXT NOT NULL,
	stage      TEXT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversation_records_user_idx ON conversation_records (user_id);
`

// Store persists conversation records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Load implements store.Store.
func (s *Store) Load(ctx context.Context, sessionID string) (*record.ConversationRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM conversation_records WHERE session_id = $1`,
		sessionID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load %s: %w", sessionID, err)
	}

	var rec record.ConversationRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("postgres: decode %s: %w", sessionID, err)
	}
	return &rec, nil
}

// Save implements store.Store with an upsert on session_id.
func (s *Store) Save(ctx context.Context, rec *record.ConversationRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: encode %s: %w", rec.SessionID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_records (session_id, user_id, handler, stage, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (session_id) DO UPDATE
		SET handler = EXCLUDED.handler,
		    stage = EXCLUDED.stage,
		    payload = EXCLUDED.payload,
		    updated_at = now()`,
		rec.SessionID, rec.UserID, string(rec.Handler), string(rec.CurrentStage), payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", rec.SessionID, err)
	}
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_records WHERE session_id = $1`, sessionID,
	); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
