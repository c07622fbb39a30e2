package collector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/lysyi3m/timeline-comb/app/browser"
)

// PostReference identifies one post on an author's timeline. Permalink is
// the post's identity and becomes the feed GUID.
type PostReference struct {
	Permalink   string
	PublishedAt string
}

// DefaultContainerSelectors match post containers; the host markup is
// unstable, so several are queried and unioned.
var DefaultContainerSelectors = []string{
	"article[role='article']",
	"div[data-testid='tweet']",
}

var statusPathPattern = regexp.MustCompile(`^/([A-Za-z0-9_]+)/status/([0-9]+)(?:/.*)?$`)

// Extractor turns page elements into post references.
type Extractor struct {
	siteURL            string
	containerSelectors []string
}

func NewExtractor(siteURL string, containerSelectors []string) *Extractor {
	if len(containerSelectors) == 0 {
		containerSelectors = DefaultContainerSelectors
	}
	return &Extractor{
		siteURL:            strings.TrimRight(siteURL, "/"),
		containerSelectors: containerSelectors,
	}
}

// Candidates returns the post containers currently on the page, each node
// once.
func (e *Extractor) Candidates(ctx context.Context, page browser.Page) ([]browser.Element, error) {
	return browser.FindUnion(ctx, page, e.containerSelectors)
}

// Extract reads the permalink and timestamp of one container. ok is false
// for containers that are not posts by handle (ads, recommendations,
// markup without a timestamp).
func (e *Extractor) Extract(ctx context.Context, page browser.Page, container browser.Element, handle string) (PostReference, bool) {
	link, ok := browser.FindFirst(ctx, page, container, permalinkLocators(handle))
	if !ok {
		return PostReference{}, false
	}

	href, ok := page.Attribute(ctx, link, "href")
	if !ok {
		return PostReference{}, false
	}

	permalink, statusID, ok := e.canonicalPermalink(href, handle)
	if !ok {
		return PostReference{}, false
	}

	timeEl, ok := browser.FindFirst(ctx, page, container, timestampLocators(statusID))
	if !ok {
		return PostReference{}, false
	}

	publishedAt, ok := page.Attribute(ctx, timeEl, "datetime")
	if !ok || strings.TrimSpace(publishedAt) == "" {
		return PostReference{}, false
	}

	return PostReference{Permalink: permalink, PublishedAt: strings.TrimSpace(publishedAt)}, true
}

// canonicalPermalink accepts relative or absolute hrefs whose path is
// /<handle>/status/<id>, dropping trailing segments such as /photo/1. The
// handle is written as given so differently cased hrefs yield one GUID.
func (e *Extractor) canonicalPermalink(href, handle string) (string, string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", "", false
	}

	m := statusPathPattern.FindStringSubmatch(u.Path)
	if m == nil || !strings.EqualFold(m[1], handle) {
		return "", "", false
	}

	return fmt.Sprintf("%s/%s/status/%s", e.siteURL, handle, m[2]), m[2], true
}

func permalinkLocators(handle string) []string {
	return []string{
		fmt.Sprintf("a[href*='/%s/status/']", handle),
		"time ~ a[href*='/status/']",
		"a[href*='/status/']",
	}
}

// The first locator binds the timestamp to the permalink's own anchor so a
// quoted post nested in the container cannot supply the date.
func timestampLocators(statusID string) []string {
	return []string{
		fmt.Sprintf("a[href$='/status/%s'] time", statusID),
		"time",
		"a time",
	}
}
