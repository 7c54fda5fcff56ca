// Package db provides the Postgres connection helper, schema migration, and the pin history
// store. The database is optional: without DB_DSN the bot runs with no persistence at all.
// Voting sessions are never written here; only pin outcomes are.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/pinvote/pin"
	"github.com/onnwee/pinvote/vote"
)

// MaxRecent caps how many rows Recent returns.
const MaxRecent = 500

// Connect opens a Postgres connection for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty dsn")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	database.SetMaxOpenConns(5)
	database.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return database, nil
}

// PinHistory stores pin outcomes in the pin_events table. It implements pin.Recorder.
type PinHistory struct {
	db *sql.DB
}

// NewPinHistory returns a history backed by db. The schema must already be migrated.
func NewPinHistory(db *sql.DB) *PinHistory { return &PinHistory{db: db} }

// Record inserts ev.
func (h *PinHistory) Record(ctx context.Context, ev pin.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO pin_events (channel_id, message_id, outcome, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.Ref.ChannelID, ev.Ref.MessageID, ev.Outcome, ev.Detail, at.UTC())
	if err != nil {
		return fmt.Errorf("insert pin event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. limit is clamped to [1, MaxRecent].
func (h *PinHistory) Recent(ctx context.Context, limit int) ([]pin.Event, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxRecent {
		limit = MaxRecent
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT channel_id, message_id, outcome, detail, created_at FROM pin_events ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pin events: %w", err)
	}
	defer rows.Close()

	var out []pin.Event
	for rows.Next() {
		var ev pin.Event
		var ref vote.MessageRef
		if err := rows.Scan(&ref.ChannelID, &ref.MessageID, &ev.Outcome, &ev.Detail, &ev.At); err != nil {
			return nil, fmt.Errorf("scan pin event: %w", err)
		}
		ev.Ref = ref
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (h *PinHistory) Ping(ctx context.Context) error { return h.db.PingContext(ctx) }
