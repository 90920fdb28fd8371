// Package crawler runs a recursive same-site crawl: one loop pops the
// frontier, fetches the page, hands it to the extraction callback and
// queues the site's links until the frontier is empty or the page limit is
// reached.
package crawler

import (
	"context"

	"github.com/PentesterFlow/sitecrawl/internal/fetch"
	"github.com/PentesterFlow/sitecrawl/internal/output"
)

// Status is the session state.
type Status string

// Session states. PageLimitReached, FrontierExhausted, AlreadyCrawling and
// Cancelled are also the possible end reasons of a run.
const (
	Idle              Status = "idle"
	Running           Status = "running"
	PageLimitReached  Status = "page_limit_reached"
	FrontierExhausted Status = "frontier_exhausted"
	Ending            Status = "ending"
	AlreadyCrawling   Status = "already_crawling"
	Cancelled         Status = "cancelled"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	switch s {
	case PageLimitReached, FrontierExhausted, AlreadyCrawling, Cancelled:
		return true
	}
	return false
}

// Page is handed to the extraction callback for every fetched page.
type Page struct {
	*fetch.Page
	// Screenshot is the image path when screenshots are enabled.
	Screenshot string
}

// ExtractFunc processes one fetched page. Doc is nil for non-HTML pages.
type ExtractFunc func(ctx context.Context, page *Page)

// Fetcher retrieves pages. A non-nil error is a fetch failure; the page,
// when returned, carries the response status.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Screenshotter captures a page image and returns its path.
type Screenshotter interface {
	Capture(ctx context.Context, url string) (string, error)
}

// Result is the outcome of a run.
type Result struct {
	Reason  Status          `json:"reason"`
	Summary *output.Summary `json:"summary,omitempty"`
}
