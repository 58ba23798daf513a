package adapter

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxDescriptionLength bounds stored descriptions, in bytes.
const MaxDescriptionLength = 10000

// blockElements get surrounding spaces so "<li>Go</li><li>SQL</li>" does not
// collapse into "GoSQL".
const blockElements = "br,p,div,li,ul,ol,h1,h2,h3,h4,h5,h6,tr,td,section"

// extractText converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (handles Greenhouse's double-encoding;
// no-op on already-real HTML), drops the markup, then collapses whitespace.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(unescaped))
	if err != nil {
		return strings.Join(strings.Fields(unescaped), " ")
	}
	doc.Find("script,style").Remove()
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.BeforeHtml(" ")
		s.AfterHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func cleanDescription(content string) string {
	return truncate(extractText(content), MaxDescriptionLength)
}
