package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Scope is the subset of DOM querying the extractors rely on. An empty
// selector addresses the scope itself.
type Scope interface {
	// Text returns the whitespace-trimmed text of every match.
	Text(selector string) string
	// Attr returns an attribute of the first match.
	Attr(selector, name string) (string, bool)
	// Each visits every match in document order.
	Each(selector string, fn func(Scope))
	// Len counts matches.
	Len(selector string) int
}

// Parse reads an HTML document into a Scope.
func Parse(content string) (Scope, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return selection{s: doc.Selection}, nil
}

type selection struct {
	s *goquery.Selection
}

func (n selection) find(selector string) *goquery.Selection {
	if selector == "" {
		return n.s
	}
	return n.s.Find(selector)
}

func (n selection) Text(selector string) string {
	return normalizeSpace(n.find(selector).Text())
}

func (n selection) Attr(selector, name string) (string, bool) {
	return n.find(selector).First().Attr(name)
}

func (n selection) Each(selector string, fn func(Scope)) {
	n.find(selector).Each(func(_ int, s *goquery.Selection) {
		fn(selection{s: s})
	})
}

func (n selection) Len(selector string) int {
	return n.find(selector).Length()
}

// normalizeSpace maps non-breaking spaces to plain ones and trims.
func normalizeSpace(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
}
