package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var _ HistoryRepository = (*HistoryRepositoryImpl)(nil)

// HistoryRepositoryImpl records harvest runs and their per-author outcomes.
type HistoryRepositoryImpl struct {
	db *DB
}

func NewHistoryRepository(db *DB) *HistoryRepositoryImpl {
	return &HistoryRepositoryImpl{db: db}
}

func (r *HistoryRepositoryImpl) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, state)
		VALUES (?, ?, 'RUNNING')
	`, runID, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

func (r *HistoryRepositoryImpl) FinishRun(ctx context.Context, runID, state, errMsg string, finishedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, state, errMsg, formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

func (r *HistoryRepositoryImpl) RecordAuthorRun(ctx context.Context, run AuthorRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO author_runs (run_id, handle, state, collected, enriched, appended, written, error, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Handle, run.State, run.Collected, run.Enriched, run.Appended,
		run.Written, run.Error, run.Duration.Milliseconds(), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to record author run: %w", err)
	}
	return nil
}

func (r *HistoryRepositoryImpl) GetRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, r.finished_at, r.state, r.error,
		       COUNT(a.id),
		       COALESCE(SUM(CASE WHEN a.state = 'FAILED' THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN author_runs a ON a.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &startedAt, &finishedAt, &run.State, &run.Error, &run.Authors, &run.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func (r *HistoryRepositoryImpl) GetAuthorStats(ctx context.Context) ([]AuthorStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.handle,
		       COUNT(*),
		       SUM(CASE WHEN a.state = 'FAILED' THEN 1 ELSE 0 END),
		       SUM(a.appended),
		       MAX(a.finished_at),
		       MAX(CASE WHEN a.state = 'DONE' THEN a.finished_at END),
		       (SELECT l.state FROM author_runs l WHERE l.handle = a.handle ORDER BY l.finished_at DESC, l.id DESC LIMIT 1),
		       (SELECT l.error FROM author_runs l WHERE l.handle = a.handle ORDER BY l.finished_at DESC, l.id DESC LIMIT 1)
		FROM author_runs a
		GROUP BY a.handle
		ORDER BY a.handle
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query author stats: %w", err)
	}
	defer rows.Close()

	var stats []AuthorStats
	for rows.Next() {
		var (
			s           AuthorStats
			lastRun     sql.NullString
			lastSuccess sql.NullString
		)
		if err := rows.Scan(&s.Handle, &s.Runs, &s.Failures, &s.TotalAppended, &lastRun, &lastSuccess, &s.LastState, &s.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan author stats: %w", err)
		}

		if lastRun.Valid {
			t := parseTime(lastRun.String)
			s.LastRunAt = &t
		}
		if lastSuccess.Valid {
			t := parseTime(lastSuccess.String)
			s.LastSuccessAt = &t
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate author stats: %w", err)
	}
	return stats, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
