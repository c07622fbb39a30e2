package feed

import (
	"github.com/lysyi3m/timeline-comb/app/collector"
)

// Metadata is the channel-level part of a feed document.
type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
}

// Entry is one item of a feed document. PublishedAt holds the pubDate text
// exactly as written so stored entries round-trip unchanged.
type Entry struct {
	GUID        string
	Title       string
	Link        string
	Description string
	PublishedAt string
}

type Document struct {
	Metadata
	Entries []Entry
}

// EnrichedPost is a collected post plus its embed HTML. A nil Embed means
// enrichment failed; Skipped marks posts that were already published and
// were not enriched at all.
type EnrichedPost struct {
	collector.PostReference
	Embed   *string
	Skipped bool
}

// MergeResult reports what a merge did for one author.
type MergeResult struct {
	Existing int
	Appended int
	Written  bool
	Path     string
}

// GUIDs returns the set of entry GUIDs in the document.
func (d *Document) GUIDs() map[string]bool {
	guids := make(map[string]bool, len(d.Entries))
	for _, entry := range d.Entries {
		guids[entry.GUID] = true
	}
	return guids
}
