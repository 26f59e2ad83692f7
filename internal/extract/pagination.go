package extract

import (
	"strconv"
	"strings"
)

const nextPageSelector = `.PageNavigation a:contains("Next")`

// HasNextPage reports whether the page links to a following page.
func HasNextPage(doc Scope) bool {
	return doc.Len(nextPageSelector) > 0
}

// NextPageURL resolves the "Next" link against base. Relative links are
// prefixed; absolute ones are returned as is.
func NextPageURL(doc Scope, base string) (string, bool) {
	href, ok := doc.Attr(nextPageSelector, "href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, true
	}
	return strings.TrimRight(base, "/") + href, true
}

// TotalPages is the highest page number linked from the navigation, or 1.
func TotalPages(doc Scope) int {
	pages := 1
	doc.Each(".PageNavigation a", func(a Scope) {
		n, err := strconv.Atoi(leadingInt.FindString(a.Text("")))
		if err == nil && n > pages {
			pages = n
		}
	})
	return pages
}

// NextPage resolves the following page with the extractor's base URL.
func (e *Extractor) NextPage(doc Scope) (string, bool) {
	if !HasNextPage(doc) {
		return "", false
	}
	return NextPageURL(doc, e.baseURL)
}
