package database

import (
	"time"
)

type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	Authors    int        `json:"authors"`
	Failed     int        `json:"failed"`
}

type AuthorRun struct {
	RunID      string
	Handle     string
	State      string
	Collected  int
	Enriched   int
	Appended   int
	Written    bool
	Error      string
	Duration   time.Duration
	FinishedAt time.Time
}

// AuthorStats summarises the recorded history of one author.
type AuthorStats struct {
	Handle        string     `json:"handle"`
	Runs          int        `json:"runs"`
	Failures      int        `json:"failures"`
	TotalAppended int        `json:"total_appended"`
	LastState     string     `json:"last_state"`
	LastError     string     `json:"last_error,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}
