package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultPageSize is the number of results lowes.com serves per listing page.
const DefaultPageSize = 24

const (
	nextLinkSelector     = `link[rel="next"]`
	resultsCountSelector = ".results-count"
)

// PaginationError reports that a next page could not be decided for a listing
// page. It ends that branch of the crawl; records already extracted from the
// page remain valid.
type PaginationError struct {
	URL    string
	Reason string
}

func (e PaginationError) Error() string {
	return fmt.Sprintf("parser: pagination for %s: %s", e.URL, e.Reason)
}

// NextPage decides the next listing target for pageURL. It returns the next
// URL, or "" when the result set is exhausted.
//
// The embedded rel=next link is trusted only while the current URL carries no
// query parameters: the site's links sometimes drop query parameters the crawl
// depends on (store and location filters), silently redirecting to a different
// result set. Once any query parameter is present the next offset is always
// computed from the page's total result count.
func NextPage(pageURL string, doc *goquery.Document, pageSize int) (string, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", PaginationError{URL: pageURL, Reason: fmt.Sprintf("unparseable page url: %v", err)}
	}

	if parsed.RawQuery == "" {
		if href, ok := doc.Find(nextLinkSelector).Attr("href"); ok && href != "" {
			return href, nil
		}
	}

	total, err := totalResults(doc)
	if err != nil {
		return "", PaginationError{URL: pageURL, Reason: err.Error()}
	}

	query := parsed.Query()
	offset := 0
	if raw := query.Get("offset"); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n >= 0 {
			offset = n
		}
	}

	if offset+pageSize >= total {
		return "", nil
	}

	query.Set("offset", strconv.Itoa(offset+pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// totalResults reads the results-summary node and strips everything but
// digits, so "1,024 results" parses as 1024. A missing or digit-free node is
// an error rather than a silent end of crawl.
func totalResults(doc *goquery.Document) (int, error) {
	text := strings.TrimSpace(doc.Find(resultsCountSelector).First().Text())
	if text == "" {
		return 0, fmt.Errorf("results count node %q absent", resultsCountSelector)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0, fmt.Errorf("results count %q carries no digits", text)
	}

	total, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("results count %q: %v", text, err)
	}
	return total, nil
}
