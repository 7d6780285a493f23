package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrations holds the schema for the audit table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// PGSink appends events to the audit_events table.
type PGSink struct {
	db *sql.DB
}

// OpenPG opens a pooled connection for the sink.
func OpenPG(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// NewPGSink wraps db.
func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Append(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Fields)
	if err != nil {
		return fmt.Errorf("encode audit fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_events(id, occurred_at, event, request_id, user_id, fields)
		values ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.OccurredAt, ev.Name, nullable(ev.RequestID), nullable(ev.UserID), payload)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
