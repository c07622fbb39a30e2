package api

import (
	"net/http"
	"time"

	"github.com/lysyi3m/timeline-comb/app/database"
	"github.com/lysyi3m/timeline-comb/app/feed"
	"github.com/lysyi3m/timeline-comb/app/tasks"
)

type FeedReader interface {
	Read(handle string) ([]byte, time.Time, error)
	Handles() ([]string, error)
}

var _ FeedReader = (*feed.FileStore)(nil)

type HarvestScheduler interface {
	EnqueueRun() error
	LastRun() (tasks.RunSummary, bool)
	Running() bool
}

var _ HarvestScheduler = (*tasks.Scheduler)(nil)

type AuthorCounter interface {
	GetAuthorCount() int
}

type Handler struct {
	feeds     FeedReader
	authors   AuthorCounter
	history   database.HistoryRepository
	scheduler HarvestScheduler
	metrics   http.Handler
	version   string
}
