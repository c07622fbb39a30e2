package feed

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/timeline-comb/app/collector"
)

type memStore struct {
	docs  map[string]*Document
	saves int
	err   error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*Document)}
}

func (s *memStore) Load(handle string) (*Document, error) {
	doc, ok := s.docs[handle]
	if !ok {
		return nil, nil
	}
	copied := *doc
	copied.Entries = append([]Entry(nil), doc.Entries...)
	return &copied, nil
}

func (s *memStore) Save(handle string, doc *Document) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saves++
	s.docs[handle] = doc
	return "mem://" + handle, nil
}

type stubTitler struct {
	title string
	err   error
	calls int
}

func (s *stubTitler) Title(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.title, s.err
}

func enriched(permalink, publishedAt string, embed *string) EnrichedPost {
	return EnrichedPost{
		PostReference: collector.PostReference{Permalink: permalink, PublishedAt: publishedAt},
		Embed:         embed,
	}
}

func ptr(s string) *string { return &s }

func guids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.GUID
	}
	return out
}

func TestMergeAppendsOnlyNewPosts(t *testing.T) {
	store := newMemStore()
	store.docs["alice"] = &Document{
		Metadata: Metadata{Title: "Alice"},
		Entries: []Entry{
			{GUID: "t1", Title: "one", Link: "t1"},
			{GUID: "t2", Title: "two", Link: "t2"},
		},
	}
	merger := NewMerger(store, &stubTitler{title: "Fresh title"}, "https://x.com")

	result, err := merger.Merge(context.Background(), "alice", Metadata{}, []EnrichedPost{
		enriched("t2", "2024-01-02T00:00:00.000Z", ptr("<changed>")),
		enriched("t3", "2024-01-03T00:00:00.000Z", ptr("<html>")),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Appended)
	assert.Equal(t, 2, result.Existing)
	assert.True(t, result.Written)
	assert.Equal(t, 1, store.saves)

	doc := store.docs["alice"]
	assert.Equal(t, []string{"t1", "t2", "t3"}, guids(doc.Entries))
	assert.Equal(t, "two", doc.Entries[1].Title, "stored entries are not rewritten")
	assert.Equal(t, "<html>", doc.Entries[2].Description)
	assert.Equal(t, "Fresh title", doc.Entries[2].Title)
	assert.Equal(t, "t3", doc.Entries[2].Link)
	assert.Equal(t, "Wed, 03 Jan 2024 00:00:00 +0000", doc.Entries[2].PublishedAt)
}

func TestMergeNoopWhenNothingNew(t *testing.T) {
	store := newMemStore()
	store.docs["alice"] = &Document{Entries: []Entry{{GUID: "t1"}}}
	merger := NewMerger(store, nil, "https://x.com")

	result, err := merger.Merge(context.Background(), "alice", Metadata{}, []EnrichedPost{
		enriched("t1", "2024-01-01T00:00:00Z", nil),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Appended)
	assert.False(t, result.Written)
	assert.Equal(t, 0, store.saves)

	result, err = merger.Merge(context.Background(), "bob", Metadata{}, nil)
	require.NoError(t, err)
	assert.False(t, result.Written)
	assert.Equal(t, 0, store.saves, "an absent document with nothing new is not created")
}

func TestMergeDeduplicatesWithinBatch(t *testing.T) {
	store := newMemStore()
	merger := NewMerger(store, nil, "https://x.com")

	result, err := merger.Merge(context.Background(), "alice", Metadata{}, []EnrichedPost{
		enriched("t1", "2024-01-01T00:00:00Z", nil),
		enriched("t1", "2024-01-01T00:00:00Z", nil),
		enriched("", "2024-01-01T00:00:00Z", nil),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Appended)
	assert.Equal(t, []string{"t1"}, guids(store.docs["alice"].Entries))
}

func TestMergeFallbackTitle(t *testing.T) {
	store := newMemStore()
	titler := &stubTitler{err: errors.New("service down")}
	merger := NewMerger(store, titler, "https://x.com")

	_, err := merger.Merge(context.Background(), "alice", Metadata{}, []EnrichedPost{
		enriched("t1", "2024-01-01T10:00:00.000Z", ptr("<p>one</p>")),
		enriched("t2", "not a timestamp", ptr("<p>two</p>")),
		enriched("t3", "2024-01-03T10:00:00.000Z", nil),
	})
	require.NoError(t, err)

	entries := store.docs["alice"].Entries
	require.Len(t, entries, 3)
	assert.Equal(t, "Posted on 2024-01-01T10:00:00.000Z", entries[0].Title)
	assert.Equal(t, "Posted on not a timestamp", entries[1].Title)
	assert.Equal(t, "not a timestamp", entries[1].PublishedAt)
	assert.Equal(t, "Posted on 2024-01-03T10:00:00.000Z", entries[2].Title)
	assert.Equal(t, NoEmbedPlaceholder, entries[2].Description)
	assert.Equal(t, 2, titler.calls, "posts without an embed are not sent for titling")
}

func TestMergeWithoutTitler(t *testing.T) {
	store := newMemStore()
	merger := NewMerger(store, nil, "https://x.com")

	_, err := merger.Merge(context.Background(), "alice", Metadata{}, []EnrichedPost{
		enriched("t1", "2024-01-01T10:00:00Z", ptr("<p>one</p>")),
	})
	require.NoError(t, err)
	assert.Equal(t, "Posted on 2024-01-01T10:00:00Z", store.docs["alice"].Entries[0].Title)
}

func TestMergeSeedsMetadata(t *testing.T) {
	store := newMemStore()
	merger := NewMerger(store, nil, "https://x.com/")

	_, err := merger.Merge(context.Background(), "alice", Metadata{}, []EnrichedPost{
		enriched("t1", "2024-01-01T10:00:00Z", nil),
	})
	require.NoError(t, err)

	assert.Equal(t, Metadata{
		Title:       "Alice",
		Link:        "https://x.com/alice",
		Description: "RSS feed of the latest posts from alice.",
		Language:    "en",
	}, store.docs["alice"].Metadata)

	_, err = merger.Merge(context.Background(), "bob", Metadata{Description: "Bob's posts", Language: "de"}, []EnrichedPost{
		enriched("t1", "2024-01-01T10:00:00Z", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bob", store.docs["bob"].Title)
	assert.Equal(t, "Bob's posts", store.docs["bob"].Description)
	assert.Equal(t, "de", store.docs["bob"].Language)
}

func TestMergeSurfacesWriteFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("disk full")
	merger := NewMerger(store, nil, "https://x.com")

	result, err := merger.Merge(context.Background(), "alice", Metadata{}, []EnrichedPost{
		enriched("t1", "2024-01-01T10:00:00Z", nil),
	})
	assert.Error(t, err)
	assert.False(t, result.Written)
}

func TestMergeIsIdempotentOnDisk(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, newTestGenerator("https://feeds.example.com"))
	merger := NewMerger(store, nil, "https://x.com")
	ctx := context.Background()

	posts := []EnrichedPost{
		enriched("https://x.com/alice/status/2", "2024-01-02T10:00:00.000Z", ptr(`<blockquote class="twitter-tweet"><p lang="en">Two &amp; more</p></blockquote>`)),
		enriched("https://x.com/alice/status/1", "2024-01-01T10:00:00.000Z", nil),
	}

	first, err := merger.Merge(ctx, "alice", Metadata{}, posts)
	require.NoError(t, err)
	require.True(t, first.Written)
	assert.Equal(t, 2, first.Appended)

	before, err := os.ReadFile(store.Path("alice"))
	require.NoError(t, err)
	infoBefore, err := os.Stat(store.Path("alice"))
	require.NoError(t, err)

	second, err := merger.Merge(ctx, "alice", Metadata{}, posts)
	require.NoError(t, err)
	assert.False(t, second.Written)
	assert.Equal(t, 0, second.Appended)
	assert.Equal(t, 2, second.Existing)

	after, err := os.ReadFile(store.Path("alice"))
	require.NoError(t, err)
	infoAfter, err := os.Stat(store.Path("alice"))
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, infoBefore.ModTime(), infoAfter.ModTime())
}

func TestMergeKeepsStoredEntriesByteIdentical(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, newTestGenerator("https://feeds.example.com"))
	merger := NewMerger(store, &stubTitler{title: "Generated"}, "https://x.com")
	ctx := context.Background()

	_, err := merger.Merge(ctx, "alice", Metadata{}, []EnrichedPost{
		enriched("https://x.com/alice/status/2", "2024-01-02T10:00:00.000Z", ptr(`<blockquote><p>"Quoted" & <b>bold</b></p></blockquote>`)),
		enriched("https://x.com/alice/status/1", "2024-01-01T10:00:00.000Z", nil),
	})
	require.NoError(t, err)

	before, err := os.ReadFile(store.Path("alice"))
	require.NoError(t, err)
	oldItems := itemsBlock(t, string(before))

	// a title service that now answers differently must not touch old entries
	merger = NewMerger(store, &stubTitler{title: "Different"}, "https://x.com")
	result, err := merger.Merge(ctx, "alice", Metadata{}, []EnrichedPost{
		enriched("https://x.com/alice/status/3", "2024-01-03T10:00:00.000Z", ptr("<p>three</p>")),
		enriched("https://x.com/alice/status/2", "2024-01-02T10:00:00.000Z", ptr("<p>edited</p>")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Appended)

	after, err := os.ReadFile(store.Path("alice"))
	require.NoError(t, err)
	newItems := itemsBlock(t, string(after))

	assert.True(t, strings.HasPrefix(newItems, oldItems), "stored entries should be re-emitted byte for byte")
	assert.Contains(t, newItems[len(oldItems):], "https://x.com/alice/status/3")
	assert.Equal(t, 1, strings.Count(string(after), "<guid isPermaLink=\"true\">https://x.com/alice/status/2</guid>"))
}

func itemsBlock(t *testing.T, rss string) string {
	t.Helper()
	start := strings.Index(rss, "    <item>")
	end := strings.LastIndex(rss, "</item>")
	require.True(t, start >= 0 && end > start, "document has no items")
	return rss[start : end+len("</item>")]
}
