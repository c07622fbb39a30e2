package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lysyi3m/timeline-comb/app/titles"
)

const (
	NoEmbedPlaceholder  = "No embed code available"
	fallbackTitlePrefix = "Posted on "
	defaultLanguage     = "en"
)

// Merger folds newly collected posts into an author's stored document.
// Stored entries are never rewritten; new posts are appended after them.
type Merger struct {
	store   DocumentStore
	titler  titles.Titler
	siteURL string
}

// NewMerger returns a merger. titler may be nil, in which case every new
// entry gets the fallback title.
func NewMerger(store DocumentStore, titler titles.Titler, siteURL string) *Merger {
	return &Merger{
		store:   store,
		titler:  titler,
		siteURL: strings.TrimRight(siteURL, "/"),
	}
}

// Merge appends the posts not yet in handle's document and writes it back.
// Nothing is written when no entry was appended. meta overrides the seeded
// channel metadata of a document that does not exist yet.
func (m *Merger) Merge(ctx context.Context, handle string, meta Metadata, posts []EnrichedPost) (MergeResult, error) {
	doc, err := m.store.Load(handle)
	if err != nil {
		return MergeResult{}, err
	}
	if doc == nil {
		doc = &Document{Metadata: m.seedMetadata(handle, meta)}
	}

	result := MergeResult{Existing: len(doc.Entries)}
	existing := doc.GUIDs()

	entries := make([]Entry, 0, len(doc.Entries)+len(posts))
	entries = append(entries, doc.Entries...)

	for _, post := range posts {
		if post.Permalink == "" || existing[post.Permalink] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entries = append(entries, m.newEntry(ctx, handle, post))
		existing[post.Permalink] = true
		result.Appended++
	}

	if result.Appended == 0 {
		slog.Debug("No new entries, feed left untouched", "author", handle, "existing", result.Existing)
		return result, nil
	}

	doc.Entries = entries
	path, err := m.store.Save(handle, doc)
	if err != nil {
		return result, err
	}

	result.Written = true
	result.Path = path

	slog.Info("Feed updated",
		"author", handle,
		"path", path,
		"existing", result.Existing,
		"appended", result.Appended)

	return result, nil
}

func (m *Merger) newEntry(ctx context.Context, handle string, post EnrichedPost) Entry {
	description := NoEmbedPlaceholder
	if post.Embed != nil && strings.TrimSpace(*post.Embed) != "" {
		description = strings.TrimSpace(*post.Embed)
	}

	return Entry{
		GUID:        post.Permalink,
		Title:       m.title(ctx, handle, post),
		Link:        post.Permalink,
		Description: description,
		PublishedAt: FormatPublished(post.PublishedAt),
	}
}

// title asks the title service when there is an embed to describe and
// falls back to a date-based title on any failure.
func (m *Merger) title(ctx context.Context, handle string, post EnrichedPost) string {
	fallback := FallbackTitle(post.PublishedAt)
	if m.titler == nil || post.Embed == nil || strings.TrimSpace(*post.Embed) == "" {
		return fallback
	}

	title, err := m.titler.Title(ctx, *post.Embed)
	if err != nil {
		slog.Warn("Failed to generate title, using fallback",
			"author", handle,
			"permalink", post.Permalink,
			"error", err)
		return fallback
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return fallback
	}
	return title
}

func (m *Merger) seedMetadata(handle string, meta Metadata) Metadata {
	seeded := Metadata{
		Title:       cases.Title(language.Und).String(handle),
		Link:        fmt.Sprintf("%s/%s", m.siteURL, handle),
		Description: fmt.Sprintf("RSS feed of the latest posts from %s.", handle),
		Language:    defaultLanguage,
	}

	if meta.Title != "" {
		seeded.Title = meta.Title
	}
	if meta.Link != "" {
		seeded.Link = meta.Link
	}
	if meta.Description != "" {
		seeded.Description = meta.Description
	}
	if meta.Language != "" {
		seeded.Language = meta.Language
	}
	return seeded
}

// FallbackTitle is the title used when no generated title is available.
func FallbackTitle(publishedAt string) string {
	return fallbackTitlePrefix + publishedAt
}

// FormatPublished renders an RFC 3339 timestamp as an RSS pubDate. Anything
// else is kept as is.
func FormatPublished(publishedAt string) string {
	t, err := time.Parse(time.RFC3339, publishedAt)
	if err != nil {
		return publishedAt
	}
	return t.UTC().Format(time.RFC1123Z)
}
