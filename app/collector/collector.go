package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/timeline-comb/app/browser"
	"github.com/lysyi3m/timeline-comb/app/pace"
)

const (
	DefaultSettleMin = 3 * time.Second
	DefaultSettleMax = 6 * time.Second
)

// Collector pages through an author's timeline by scrolling, gathering post
// references in discovery order.
type Collector struct {
	page      browser.Page
	extractor *Extractor
	pacer     pace.Pacer
	settleMin time.Duration
	settleMax time.Duration
}

func NewCollector(page browser.Page, extractor *Extractor, pacer pace.Pacer) *Collector {
	return &Collector{
		page:      page,
		extractor: extractor,
		pacer:     pacer,
		settleMin: DefaultSettleMin,
		settleMax: DefaultSettleMax,
	}
}

// WithSettle overrides the pause after each scroll.
func (c *Collector) WithSettle(min, max time.Duration) *Collector {
	c.settleMin = min
	c.settleMax = max
	return c
}

// Collect gathers up to targetCount distinct posts by handle from the page
// currently loaded. It gives up after maxScrollAttempts consecutive scrolls
// that surface nothing new; a short result is not an error. The only error
// is cancellation of ctx, returned along with whatever was collected.
func (c *Collector) Collect(ctx context.Context, handle string, targetCount, maxScrollAttempts int) ([]PostReference, error) {
	collected := make([]PostReference, 0, max(targetCount, 0))
	seen := make(map[string]bool)
	scrollAttempts := 0

	for len(collected) < targetCount && scrollAttempts < maxScrollAttempts {
		if err := ctx.Err(); err != nil {
			return collected, err
		}

		added := c.readVisible(ctx, handle, targetCount, &collected, seen)
		if len(collected) >= targetCount {
			break
		}

		if err := c.page.ScrollToBottom(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("Scroll failed", "author", handle, "error", err)
		}
		if err := c.pacer.Pause(ctx, c.settleMin, c.settleMax); err != nil {
			return collected, err
		}

		if added == 0 {
			scrollAttempts++
			slog.Debug("No new posts after scrolling", "author", handle, "scroll_attempts", scrollAttempts)
		} else {
			scrollAttempts = 0
		}
	}

	if err := ctx.Err(); err != nil {
		return collected, err
	}

	slog.Info("Timeline collected",
		"author", handle,
		"collected", len(collected),
		"target", targetCount,
		"scroll_attempts", scrollAttempts)

	return collected, nil
}

// readVisible appends the unseen posts currently on the page and returns how
// many were added.
func (c *Collector) readVisible(ctx context.Context, handle string, targetCount int, collected *[]PostReference, seen map[string]bool) int {
	candidates, err := c.extractor.Candidates(ctx, c.page)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("Failed to query timeline", "author", handle, "error", err)
		}
		return 0
	}

	added := 0
	for _, candidate := range candidates {
		post, ok := c.extractor.Extract(ctx, c.page, candidate, handle)
		if !ok || seen[post.Permalink] {
			continue
		}

		seen[post.Permalink] = true
		*collected = append(*collected, post)
		added++

		if len(*collected) >= targetCount {
			break
		}
	}

	slog.Debug("Timeline read",
		"author", handle,
		"candidates", len(candidates),
		"new", added,
		"total", len(*collected))

	return added
}
