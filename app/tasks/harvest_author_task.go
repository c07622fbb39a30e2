package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/timeline-comb/app/authors"
	"github.com/lysyi3m/timeline-comb/app/browser"
	"github.com/lysyi3m/timeline-comb/app/feed"
	"github.com/lysyi3m/timeline-comb/app/pace"
)

const (
	navigatePauseMin = 4 * time.Second
	navigatePauseMax = 7 * time.Second
)

var _ TaskInterface = (*HarvestAuthorTask)(nil)

// HarvestAuthorTask runs one author through navigate, collect, enrich and
// merge. Result is filled in as the task progresses.
type HarvestAuthorTask struct {
	Task
	author    authors.Author
	page      browser.Page
	pacer     pace.Pacer
	siteURL   string
	collector Collector
	enricher  Enricher
	merger    Merger
	store     feed.DocumentStore

	state  AuthorState
	Result AuthorResult
}

func NewHarvestAuthorTask(author authors.Author, page browser.Page, pacer pace.Pacer, siteURL string,
	collector Collector, enricher Enricher, merger Merger, store feed.DocumentStore) *HarvestAuthorTask {
	return &HarvestAuthorTask{
		Task:      NewTask(TaskTypeHarvestAuthor, author.Handle),
		author:    author,
		page:      page,
		pacer:     pacer,
		siteURL:   strings.TrimRight(siteURL, "/"),
		collector: collector,
		enricher:  enricher,
		merger:    merger,
		store:     store,
		Result:    AuthorResult{Handle: author.Handle},
	}
}

func (t *HarvestAuthorTask) Execute(ctx context.Context) error {
	err := t.execute(ctx)
	t.Result.Duration = t.GetDuration()

	if err != nil {
		t.Result.State = StateFailed
		t.Result.FailedIn = t.state
		t.Result.Error = err.Error()
		return err
	}

	t.state = StateDone
	t.Result.State = StateDone

	slog.Info("Task completed",
		"type", "HarvestAuthor",
		"author", t.Author,
		"duration", t.Result.Duration,
		"collected", t.Result.Collected,
		"enriched", t.Result.Enriched,
		"new", t.Result.Appended,
		"written", t.Result.Written)

	return nil
}

func (t *HarvestAuthorTask) execute(ctx context.Context) error {
	handle := t.author.Handle

	t.state = StateNavigate
	profileURL := fmt.Sprintf("%s/%s", t.siteURL, handle)
	if err := t.page.Navigate(ctx, profileURL); err != nil {
		return fmt.Errorf("failed to open timeline %s: %w", profileURL, err)
	}
	if err := t.pacer.Pause(ctx, navigatePauseMin, navigatePauseMax); err != nil {
		return err
	}

	t.state = StateCollect
	posts, err := t.collector.Collect(ctx, handle, t.author.Settings.MaxPosts, t.author.Settings.MaxScrollAttempts)
	t.Result.Collected = len(posts)
	if err != nil {
		return fmt.Errorf("failed to collect timeline: %w", err)
	}

	t.state = StateEnrich
	published, err := t.publishedGUIDs(handle)
	if err != nil {
		return err
	}

	enriched, err := t.enricher.Enrich(ctx, handle, posts, published)
	if err != nil {
		return fmt.Errorf("failed to enrich posts: %w", err)
	}
	for _, post := range enriched {
		if post.Embed != nil {
			t.Result.Enriched++
		}
	}

	t.state = StateMerge
	result, err := t.merger.Merge(ctx, handle, t.metadata(), enriched)
	if err != nil {
		return fmt.Errorf("failed to merge feed: %w", err)
	}
	t.Result.Appended = result.Appended
	t.Result.Written = result.Written

	return nil
}

// Cooldown holds the session idle before the next author. The task's
// result is final by then; only its state moves to COOLDOWN.
func (t *HarvestAuthorTask) Cooldown(ctx context.Context, min, max time.Duration) error {
	t.state = StateCooldown
	slog.Debug("Cooling down", "author", t.Author, "state", t.state)
	return t.pacer.Pause(ctx, min, max)
}

// State is the step the task is in, or the step it failed in.
func (t *HarvestAuthorTask) State() AuthorState {
	return t.state
}

// publishedGUIDs reads the entries already in the author's feed so they are
// not fetched again.
func (t *HarvestAuthorTask) publishedGUIDs(handle string) (map[string]bool, error) {
	doc, err := t.store.Load(handle)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing feed: %w", err)
	}
	if doc == nil {
		return map[string]bool{}, nil
	}
	return doc.GUIDs(), nil
}

func (t *HarvestAuthorTask) metadata() feed.Metadata {
	return feed.Metadata{
		Title:       t.author.Feed.Title,
		Description: t.author.Feed.Description,
		Language:    t.author.Feed.Language,
	}
}
