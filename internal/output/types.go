package output

import (
	"time"
)

// PageRecord is written once per successfully fetched page.
type PageRecord struct {
	URL         string        `json:"url"`
	StatusCode  int           `json:"status_code"`
	ContentType string        `json:"content_type,omitempty"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Canonical   string        `json:"canonical,omitempty"`
	Anchors     int           `json:"anchors"`
	Screenshot  string        `json:"screenshot,omitempty"`
	Duration    time.Duration `json:"duration"`
	FetchedAt   time.Time     `json:"fetched_at"`
}

// ErrorRecord is written for every failed fetch.
type ErrorRecord struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Type       string    `json:"type"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

// LinkStats counts links seen on fetched pages.
type LinkStats struct {
	Relative    int `json:"relative"`
	Absolute    int `json:"absolute"`
	Blacklisted int `json:"blacklisted"`
	OffSite     int `json:"off_site"`
	Pushed      int `json:"pushed"`
}

// ModeInfo reports the state mode at the end of a run.
type ModeInfo struct {
	Mode         string    `json:"mode"`
	SwitchReason string    `json:"switch_reason,omitempty"`
	SwitchedAt   time.Time `json:"switched_at,omitempty"`
}

// BufferStats reports batch buffer activity.
type BufferStats struct {
	Flushes  int64 `json:"flushes"`
	Failures int64 `json:"failures"`
	Written  int64 `json:"written"`
	Dropped  int64 `json:"dropped"`
}

// Summary is the end-of-run report.
type Summary struct {
	RunID        string        `json:"run_id"`
	Target       string        `json:"target"`
	Reason       string        `json:"reason"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
	Duration     time.Duration `json:"duration"`
	PagesCrawled int           `json:"pages_crawled"`
	Failures     int           `json:"failures"`
	StatusCodes  map[int]int   `json:"status_codes"`
	Links        LinkStats     `json:"links"`
	Visited      int           `json:"visited"`
	Pending      int           `json:"pending"`
	Screenshots  int           `json:"screenshots"`
	CacheErrors  int           `json:"cache_errors"`
	Mode         ModeInfo      `json:"mode"`
	Buffer       BufferStats   `json:"buffer"`
}

// PagesPerSecond returns the crawl rate of the run.
func (s *Summary) PagesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.PagesCrawled) / s.Duration.Seconds()
}
