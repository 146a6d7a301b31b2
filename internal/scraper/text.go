package scraper

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText converts an upstream description to plain text. Input may be
// HTML, HTML-escaped HTML (Greenhouse) or already plain. Block elements become
// line breaks; runs of whitespace collapse; blank lines are dropped.
func HTMLToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	unescaped := html.UnescapeString(s)
	if !strings.ContainsAny(unescaped, "<>") {
		return collapseWhitespace(unescaped)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(unescaped))
	if err != nil {
		return collapseWhitespace(unescaped)
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, ul, ol").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
