// CLAUDE:SUMMARY SQLite capture journal: one metadata row per screenshot attempt, recent listing, retention cleanup.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pagesnap/dbopen"
)

// CaptureEvent describes one capture attempt.
type CaptureEvent struct {
	ID       string        `json:"id"`
	URL      string        `json:"url"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Scale    float64       `json:"scale"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	TraceID  string        `json:"trace_id,omitempty"`
	At       time.Time     `json:"at"`
}

// CaptureLog writes capture events to the capture_logs table.
type CaptureLog struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// CaptureLogOption configures a CaptureLog.
type CaptureLogOption func(*CaptureLog)

// WithLogger sets the logger used to report write failures.
func WithLogger(l *slog.Logger) CaptureLogOption {
	return func(c *CaptureLog) { c.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CaptureLogOption {
	return func(c *CaptureLog) { c.now = now }
}

// NewCaptureLog creates a journal backed by db. The schema must already be
// applied (Init or dbopen.WithSchema(Schema)).
func NewCaptureLog(db *sql.DB, opts ...CaptureLogOption) *CaptureLog {
	l := &CaptureLog{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// RecordCapture stores e. Non-blocking for the caller's outcome: errors are
// logged and swallowed, so a failing journal never fails a capture.
func (l *CaptureLog) RecordCapture(ctx context.Context, e CaptureEvent) {
	at := e.At
	if at.IsZero() {
		at = l.now()
	}
	var errText any
	if e.Error != "" {
		errText = e.Error
	}
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO capture_logs (
			capture_id, url, width, height, scale, bytes,
			duration_ms, outcome, error, trace_id, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.URL, e.Width, e.Height, e.Scale, e.Bytes,
		e.Duration.Milliseconds(), e.Outcome, errText, e.TraceID, at.Unix())
	if err != nil {
		l.logger.Error("observability: capture log failed", "error", err, "capture_id", e.ID)
	}
}

// Recent returns the newest events, newest first. limit <= 0 means 50.
func (l *CaptureLog) Recent(ctx context.Context, limit int) ([]CaptureEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT capture_id, url, width, height, scale, bytes,
		       duration_ms, outcome, COALESCE(error, ''), COALESCE(trace_id, ''), created_at
		FROM capture_logs
		ORDER BY created_at DESC, capture_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("observability: recent: %w", err)
	}
	defer rows.Close()

	var out []CaptureEvent
	for rows.Next() {
		var (
			e      CaptureEvent
			durMs  int64
			atUnix int64
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.Width, &e.Height, &e.Scale, &e.Bytes,
			&durMs, &e.Outcome, &e.Error, &e.TraceID, &atUnix); err != nil {
			return nil, fmt.Errorf("observability: scan: %w", err)
		}
		e.Duration = time.Duration(durMs) * time.Millisecond
		e.At = time.Unix(atUnix, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// OutcomeCounts returns the number of events per outcome since the given time.
func (l *CaptureLog) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM capture_logs
		WHERE created_at >= ?
		GROUP BY outcome`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("observability: outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Cleanup deletes events older than days. days <= 0 disables cleanup.
func (l *CaptureLog) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := l.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	res, err := dbopen.Exec(ctx, l.db, `DELETE FROM capture_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// StartRetention runs Cleanup every interval until ctx is done.
func (l *CaptureLog) StartRetention(ctx context.Context, days int, interval time.Duration) {
	if days <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := l.Cleanup(ctx, days)
				if err != nil {
					l.logger.Warn("observability: retention cleanup", "error", err)
					continue
				}
				if n > 0 {
					l.logger.Info("observability: retention cleanup", "deleted", n)
				}
			}
		}
	}()
}
