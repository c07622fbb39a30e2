package titles

import (
	"context"
	"errors"
	"strings"
)

// MaxWords caps generated titles.
const MaxWords = 10

const promptPrefix = "come up with a short title for an rss entry for the following post, 10 words or less, answer in plain text with only the title:"

var ErrEmptyTitle = errors.New("title service returned an empty title")

// Titler names a post given its embed HTML. Implementations may fail at any
// time; callers keep their own fallback.
type Titler interface {
	Title(ctx context.Context, embedHTML string) (string, error)
}

// Prompt builds the request text for one post.
func Prompt(embedHTML string) string {
	return promptPrefix + ContextText(embedHTML)
}

// Clean reduces a raw model answer to a single-line title of at most
// MaxWords words without surrounding quotes.
func Clean(raw string) string {
	line := strings.TrimSpace(raw)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimPrefix(line, "Title:")
	line = strings.Trim(strings.TrimSpace(line), "\"'`“”*")

	words := strings.Fields(line)
	if len(words) > MaxWords {
		words = words[:MaxWords]
	}
	return strings.Join(words, " ")
}
