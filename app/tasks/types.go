package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/timeline-comb/app/browser"
	"github.com/lysyi3m/timeline-comb/app/collector"
	"github.com/lysyi3m/timeline-comb/app/feed"
)

// AuthorState is the step a harvest task is in, or how it ended.
type AuthorState string

const (
	StateNavigate AuthorState = "NAVIGATE"
	StateCollect  AuthorState = "COLLECT"
	StateEnrich   AuthorState = "ENRICH"
	StateMerge    AuthorState = "MERGE"
	StateCooldown AuthorState = "COOLDOWN"
	StateDone     AuthorState = "DONE"
	StateFailed   AuthorState = "FAILED"
)

// RunState is the terminal state of a whole run.
type RunState string

const (
	RunDone    RunState = "DONE"
	RunAborted RunState = "ABORTED"
)

type AuthorResult struct {
	Handle    string        `json:"handle"`
	State     AuthorState   `json:"state"`
	FailedIn  AuthorState   `json:"failed_in,omitempty"`
	Collected int           `json:"collected"`
	Enriched  int           `json:"enriched"`
	Appended  int           `json:"appended"`
	Written   bool          `json:"written"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

type RunSummary struct {
	ID         string         `json:"id"`
	State      RunState       `json:"state"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Authors    []AuthorResult `json:"authors"`
}

// Failed counts the authors that did not finish.
func (s *RunSummary) Failed() int {
	failed := 0
	for _, a := range s.Authors {
		if a.State == StateFailed {
			failed++
		}
	}
	return failed
}

type Collector interface {
	Collect(ctx context.Context, handle string, targetCount, maxScrollAttempts int) ([]collector.PostReference, error)
}

type Enricher interface {
	Enrich(ctx context.Context, handle string, posts []collector.PostReference, published map[string]bool) ([]feed.EnrichedPost, error)
}

type Merger interface {
	Merge(ctx context.Context, handle string, meta feed.Metadata, posts []feed.EnrichedPost) (feed.MergeResult, error)
}

type Authenticator interface {
	Ensure(ctx context.Context, page browser.Page) error
}

// RunRecorder receives run outcomes for monitoring.
type RunRecorder interface {
	RecordAuthor(handle, state string, collected, appended int)
	RecordRun(state string, duration time.Duration)
}

// Launcher starts a browser for one run. The caller closes the page.
type Launcher func(ctx context.Context) (browser.Page, error)
