// Package journal keeps an in-memory DuckDB record of upload attempts for
// diagnostics. Nothing is written to disk; the journal lives as long as the
// process.
package journal

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/extractdesk/backend/internal/models"
)

// Options tune the embedded database.
type Options struct {
	Threads     int
	MemoryLimit string
}

// Journal stores attempts in an in-memory DuckDB table.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates the in-memory database and its attempts table.
func Open(opts Options, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("journal")

	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		var pragmas []string
		if opts.MemoryLimit != "" {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
		}
		if opts.Threads > 0 {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("executing %q: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE attempts (
			id          VARCHAR PRIMARY KEY,
			widget_id   VARCHAR NOT NULL,
			file_name   VARCHAR NOT NULL,
			size        BIGINT NOT NULL,
			outcome     VARCHAR NOT NULL,
			status_code INTEGER,
			error       VARCHAR,
			started_at  TIMESTAMP NOT NULL,
			duration_ms BIGINT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create attempts table: %w", err)
	}

	logger.Debug("journal opened", zap.Int("threads", opts.Threads), zap.String("memory_limit", opts.MemoryLimit))
	return &Journal{db: db, logger: logger}, nil
}

// Record appends one attempt.
func (j *Journal) Record(ctx context.Context, a *models.Attempt) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attempts (id, widget_id, file_name, size, outcome, status_code, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.WidgetID, a.FileName, a.Size, string(a.Outcome), a.StatusCode, a.Error, a.StartedAt, a.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("recording attempt %s: %w", a.ID, err)
	}
	return nil
}

// List returns the most recent attempts for a widget, newest first.
// A non-positive limit returns every attempt.
func (j *Journal) List(ctx context.Context, widgetID string, limit int) ([]models.Attempt, error) {
	query := `
		SELECT id, widget_id, file_name, size, outcome, status_code, error, started_at, duration_ms
		FROM attempts
		WHERE widget_id = ?
		ORDER BY started_at DESC`
	args := []any{widgetID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]models.Attempt, 0)
	for rows.Next() {
		var a models.Attempt
		var outcome string
		var status sql.NullInt64
		var errText sql.NullString
		if err := rows.Scan(&a.ID, &a.WidgetID, &a.FileName, &a.Size, &outcome, &status, &errText, &a.StartedAt, &a.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.Outcome = models.AttemptOutcome(outcome)
		a.StatusCode = int(status.Int64)
		a.Error = errText.String
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Stats counts attempts per outcome across all widgets.
func (j *Journal) Stats(ctx context.Context) (map[models.AttemptOutcome]int, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM attempts GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("querying attempt stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.AttemptOutcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scanning attempt stats: %w", err)
		}
		stats[models.AttemptOutcome(outcome)] = count
	}
	return stats, rows.Err()
}

// Forget drops every attempt recorded for a widget.
func (j *Journal) Forget(ctx context.Context, widgetID string) error {
	if _, err := j.db.ExecContext(ctx, "DELETE FROM attempts WHERE widget_id = ?", widgetID); err != nil {
		return fmt.Errorf("deleting attempts for %s: %w", widgetID, err)
	}
	return nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
