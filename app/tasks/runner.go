package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/timeline-comb/app/authors"
	"github.com/lysyi3m/timeline-comb/app/collector"
	"github.com/lysyi3m/timeline-comb/app/database"
	"github.com/lysyi3m/timeline-comb/app/enrich"
	"github.com/lysyi3m/timeline-comb/app/feed"
	"github.com/lysyi3m/timeline-comb/app/pace"
)

type RunnerOptions struct {
	SiteURL        string
	EmbedURL       string
	ElementTimeout time.Duration
	CooldownMin    time.Duration
	CooldownMax    time.Duration
}

// Runner harvests a list of authors one after another in a single browser.
type Runner struct {
	launch    Launcher
	auth      Authenticator
	pacer     pace.Pacer
	extractor *collector.Extractor
	merger    Merger
	store     feed.DocumentStore
	history   database.HistoryRepository
	metrics   RunRecorder
	opts      RunnerOptions
}

// NewRunner returns a runner. history may be nil.
func NewRunner(launch Launcher, auth Authenticator, pacer pace.Pacer, extractor *collector.Extractor,
	merger Merger, store feed.DocumentStore, history database.HistoryRepository, opts RunnerOptions) *Runner {
	return &Runner{
		launch:    launch,
		auth:      auth,
		pacer:     pacer,
		extractor: extractor,
		merger:    merger,
		store:     store,
		history:   history,
		opts:      opts,
	}
}

func (r *Runner) WithMetrics(metrics RunRecorder) *Runner {
	r.metrics = metrics
	return r
}

// Run authenticates once and harvests every author in order. Failures of a
// single author are recorded and the run moves on; failing to start the
// browser or to authenticate aborts the run and is returned as an error,
// as is cancellation of ctx.
func (r *Runner) Run(ctx context.Context, list []authors.Author) (summary RunSummary, err error) {
	summary = RunSummary{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Authors:   make([]AuthorResult, 0, len(list)),
	}
	r.recordStart(ctx, summary)

	defer func() {
		summary.FinishedAt = time.Now().UTC()
		summary.State = RunDone
		if err != nil {
			summary.State = RunAborted
			summary.Error = err.Error()
		}
		r.recordFinish(summary)

		slog.Info("Run finished",
			"run_id", summary.ID,
			"state", summary.State,
			"authors", len(summary.Authors),
			"failed", summary.Failed(),
			"duration", summary.FinishedAt.Sub(summary.StartedAt))
	}()

	page, err := r.launch(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Warn("Failed to close browser", "error", closeErr)
		}
	}()

	if err := r.auth.Ensure(ctx, page); err != nil {
		slog.Error("Authentication failed, aborting run", "run_id", summary.ID, "error", err)
		return summary, err
	}

	coll := collector.NewCollector(page, r.extractor, r.pacer)
	enricher := enrich.NewEnricher(page, r.pacer, r.opts.EmbedURL, r.opts.ElementTimeout)

	for i, author := range list {
		task := NewHarvestAuthorTask(author, page, r.pacer, r.opts.SiteURL, coll, enricher, r.merger, r.store)
		task.Start()

		if taskErr := task.Execute(ctx); taskErr != nil && ctx.Err() == nil {
			slog.Error("Author harvest failed",
				"author", author.Handle,
				"state", task.Result.FailedIn,
				"error", taskErr)
		}

		summary.Authors = append(summary.Authors, task.Result)
		r.recordAuthor(summary.ID, task.Result)

		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		if i < len(list)-1 {
			slog.Debug("Cooling down before next author", "next", list[i+1].Handle)
			if err := task.Cooldown(ctx, r.opts.CooldownMin, r.opts.CooldownMax); err != nil {
				return summary, err
			}
		}
	}

	return summary, nil
}

func (r *Runner) recordStart(ctx context.Context, summary RunSummary) {
	if r.history == nil {
		return
	}
	if err := r.history.StartRun(ctx, summary.ID, summary.StartedAt); err != nil {
		slog.Warn("Failed to record run", "run_id", summary.ID, "error", err)
	}
}

// History writes use their own context so outcomes of a cancelled run are
// still recorded.
func (r *Runner) recordAuthor(runID string, result AuthorResult) {
	if r.metrics != nil {
		r.metrics.RecordAuthor(result.Handle, string(result.State), result.Collected, result.Appended)
	}
	if r.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.history.RecordAuthorRun(ctx, database.AuthorRun{
		RunID:      runID,
		Handle:     result.Handle,
		State:      string(result.State),
		Collected:  result.Collected,
		Enriched:   result.Enriched,
		Appended:   result.Appended,
		Written:    result.Written,
		Error:      result.Error,
		Duration:   result.Duration,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("Failed to record author run", "author", result.Handle, "error", err)
	}
}

func (r *Runner) recordFinish(summary RunSummary) {
	if r.metrics != nil {
		r.metrics.RecordRun(string(summary.State), summary.FinishedAt.Sub(summary.StartedAt))
	}
	if r.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.history.FinishRun(ctx, summary.ID, string(summary.State), summary.Error, summary.FinishedAt); err != nil {
		slog.Warn("Failed to record run finish", "run_id", summary.ID, "error", err)
	}
}
