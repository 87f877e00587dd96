package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/timsteinerr/transcriptor/internal/core/domain"
	"github.com/timsteinerr/transcriptor/internal/core/ports"
)

// DefaultHistoryLimit applies when ListRecent is called with a non-positive limit.
const DefaultHistoryLimit = 50

var _ ports.HistoryRepository = (*Repository)(nil)

// SaveOutcome upserts the terminal outcome of a job.
func (r *Repository) SaveOutcome(ctx context.Context, entry ports.HistoryEntry) error {
	query := `
	INSERT INTO job_history (job_id, url, status, error, language, finished_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (job_id) DO UPDATE SET
		status      = excluded.status,
		error       = excluded.error,
		language    = excluded.language,
		finished_at = excluded.finished_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		string(entry.JobID), entry.URL, string(entry.Status),
		nullString(entry.Error), nullString(entry.Language),
		entry.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save outcome %s: %w", entry.JobID, err)
	}
	return nil
}

// ListRecent returns outcomes newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]ports.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := `SELECT job_id, url, status, error, language, finished_at FROM job_history ORDER BY finished_at DESC, job_id ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []ports.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanHistoryRow(rows *sql.Rows) (ports.HistoryEntry, error) {
	var e ports.HistoryEntry
	var idStr, statusStr string
	var errStr, langStr sql.NullString

	if err := rows.Scan(&idStr, &e.URL, &statusStr, &errStr, &langStr, &e.FinishedAt); err != nil {
		return ports.HistoryEntry{}, err
	}
	e.JobID = domain.JobID(idStr)
	e.Status = domain.JobStatus(statusStr)
	e.Error = errStr.String
	e.Language = langStr.String
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
