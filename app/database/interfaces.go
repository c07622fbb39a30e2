package database

import (
	"context"
	"time"
)

type HistoryRepository interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, runID, state, errMsg string, finishedAt time.Time) error
	RecordAuthorRun(ctx context.Context, run AuthorRun) error

	GetRecentRuns(ctx context.Context, limit int) ([]Run, error)
	GetAuthorStats(ctx context.Context) ([]AuthorStats, error)
}
