package observability

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the DDL for the capture journal. Only metadata is stored; image
// bytes never reach the database.
const Schema = `
CREATE TABLE IF NOT EXISTS capture_logs (
    capture_id  TEXT PRIMARY KEY,
    url         TEXT NOT NULL,
    width       INTEGER NOT NULL,
    height      INTEGER NOT NULL,
    scale       REAL NOT NULL,
    bytes       INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    outcome     TEXT NOT NULL,
    error       TEXT,
    trace_id    TEXT,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_capture_logs_created
    ON capture_logs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_capture_logs_outcome
    ON capture_logs(outcome, created_at DESC);
`

// Init applies Schema to db.
func Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("observability: init schema: %w", err)
	}
	return nil
}
