package titles

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// ContextText reduces embed HTML to the plain text worth showing the model.
// Readability handles full documents; snippets it cannot score fall back to
// the raw text of the markup.
func ContextText(embedHTML string) string {
	if strings.TrimSpace(embedHTML) == "" {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(embedHTML), nil)
	if err == nil {
		if text := collapseSpace(article.TextContent); text != "" {
			return text
		}
	} else {
		slog.Debug("Readability failed on embed", "error", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(embedHTML))
	if err != nil {
		return collapseSpace(embedHTML)
	}
	doc.Find("script, style").Remove()
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
