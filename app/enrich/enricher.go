package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/timeline-comb/app/browser"
	"github.com/lysyi3m/timeline-comb/app/collector"
	"github.com/lysyi3m/timeline-comb/app/feed"
	"github.com/lysyi3m/timeline-comb/app/pace"
)

const (
	DefaultPauseMin = 3 * time.Second
	DefaultPauseMax = 5 * time.Second

	embedSelector = "textarea"
)

// Enricher fetches embeddable HTML for posts through the embed service,
// using a secondary tab so the timeline page stays where it is.
type Enricher struct {
	page           browser.Page
	pacer          pace.Pacer
	embedURL       string
	elementTimeout time.Duration
	pauseMin       time.Duration
	pauseMax       time.Duration
}

// NewEnricher returns an enricher. embedURL is a format string with one %s
// for the escaped permalink.
func NewEnricher(page browser.Page, pacer pace.Pacer, embedURL string, elementTimeout time.Duration) *Enricher {
	return &Enricher{
		page:           page,
		pacer:          pacer,
		embedURL:       embedURL,
		elementTimeout: elementTimeout,
		pauseMin:       DefaultPauseMin,
		pauseMax:       DefaultPauseMax,
	}
}

func (e *Enricher) WithPause(min, max time.Duration) *Enricher {
	e.pauseMin = min
	e.pauseMax = max
	return e
}

// Enrich returns one EnrichedPost per input post, in input order. Posts whose
// permalink is in published are returned Skipped without a fetch. A failed
// fetch leaves Embed nil; only cancellation of ctx is returned as an error.
func (e *Enricher) Enrich(ctx context.Context, handle string, posts []collector.PostReference, published map[string]bool) ([]feed.EnrichedPost, error) {
	result := make([]feed.EnrichedPost, 0, len(posts))

	var tab browser.Page
	tabFailed := false
	defer func() {
		if tab != nil {
			if err := tab.Close(); err != nil {
				slog.Warn("Failed to close embed tab", "author", handle, "error", err)
			}
		}
	}()

	fetched, failed := 0, 0
	for _, post := range posts {
		if published[post.Permalink] {
			result = append(result, feed.EnrichedPost{PostReference: post, Skipped: true})
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		// a tab that failed to open is not retried within the batch
		if tab == nil && !tabFailed {
			var err error
			tab, err = e.page.NewTab(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				slog.Warn("Failed to open embed tab, remaining posts get no embed", "author", handle, "error", err)
				tab = nil
				tabFailed = true
			}
		}

		var embed *string
		if tab != nil {
			embed = e.fetch(ctx, tab, handle, post)
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if embed == nil {
			failed++
		} else {
			fetched++
		}
		result = append(result, feed.EnrichedPost{PostReference: post, Embed: embed})
	}

	slog.Info("Posts enriched",
		"author", handle,
		"posts", len(posts),
		"fetched", fetched,
		"failed", failed,
		"skipped", len(posts)-fetched-failed)

	return result, nil
}

func (e *Enricher) fetch(ctx context.Context, tab browser.Page, handle string, post collector.PostReference) *string {
	embedURL := e.EmbedURL(post.Permalink)

	if err := tab.Navigate(ctx, embedURL); err != nil {
		e.warn(ctx, handle, post, fmt.Errorf("failed to open embed page: %w", err))
		return nil
	}

	if err := e.pacer.Pause(ctx, e.pauseMin, e.pauseMax); err != nil {
		return nil
	}

	el, err := tab.WaitFor(ctx, embedSelector, e.elementTimeout)
	if err != nil {
		e.warn(ctx, handle, post, fmt.Errorf("failed to find embed code: %w", err))
		return nil
	}

	value, err := tab.Value(ctx, el)
	if err != nil {
		e.warn(ctx, handle, post, fmt.Errorf("failed to read embed code: %w", err))
		return nil
	}

	value = strings.TrimSpace(value)
	if value == "" {
		e.warn(ctx, handle, post, fmt.Errorf("embed code is empty"))
		return nil
	}

	return &value
}

// EmbedURL is the embed service page for one permalink.
func (e *Enricher) EmbedURL(permalink string) string {
	return fmt.Sprintf(e.embedURL, url.QueryEscape(permalink))
}

func (e *Enricher) warn(ctx context.Context, handle string, post collector.PostReference, err error) {
	if ctx.Err() != nil {
		return
	}
	slog.Warn("Embed unavailable, using placeholder",
		"author", handle,
		"permalink", post.Permalink,
		"error", err)
}
