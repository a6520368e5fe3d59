package probe

import (
	"strings"

	"github.com/arismoko/strudelprobe/chrome"
)

// Select deterministically picks exactly one page from the list. With no
// matcher it returns the first page in the order the endpoint reported them;
// with a matcher it returns the first page whose URL or title contains the
// matcher, case-insensitively. This is a greedy first-match policy, not a
// ranked one: ties break by listing order.
func Select(pages []chrome.Page, matcher string) (chrome.Page, error) {
	if len(pages) == 0 {
		return chrome.Page{}, &NoPagesError{}
	}
	if matcher == "" {
		return pages[0], nil
	}

	m := strings.ToLower(matcher)
	for _, p := range pages {
		if strings.Contains(strings.ToLower(p.URL), m) || strings.Contains(strings.ToLower(p.Title), m) {
			return p, nil
		}
	}

	return chrome.Page{}, &NoMatchError{Matcher: matcher}
}
