package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run reads a stored feed document back into entries in document order.
func (p *Parser) Run(data []byte) (*Document, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	doc := &Document{
		Metadata: Metadata{
			Title:       parsed.Title,
			Link:        parsed.Link,
			Description: parsed.Description,
			Language:    parsed.Language,
		},
		Entries: make([]Entry, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		entry := p.normalizeItem(item)
		if entry.GUID == "" {
			continue
		}
		doc.Entries = append(doc.Entries, entry)
	}

	return doc, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Entry {
	return Entry{
		GUID:        strings.TrimSpace(cmp.Or(item.GUID, item.Link)),
		Title:       item.Title,
		Link:        item.Link,
		Description: item.Description,
		PublishedAt: strings.TrimSpace(item.Published),
	}
}
