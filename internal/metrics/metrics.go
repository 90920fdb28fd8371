// Package metrics collects crawl counters and exposes them to Prometheus.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates crawl metrics.
type Collector struct {
	// Counters
	pagesCrawled     atomic.Int64
	fetchFailures    atomic.Int64
	linksRelative    atomic.Int64
	linksAbsolute    atomic.Int64
	linksBlacklisted atomic.Int64
	linksOffSite     atomic.Int64
	linksPushed      atomic.Int64
	screenshots      atomic.Int64
	flushes          atomic.Int64
	flushFailures    atomic.Int64
	cacheErrors      atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Gauges
	queueDepth   atomic.Int64
	visitedCount atomic.Int64
	persistent   atomic.Bool

	// Histogram buckets for response times in ms
	responseTimeBuckets [len(bucketBounds) + 1]atomic.Int64

	// Tally of fetches by status code; 0 is a transport failure
	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	startTime time.Time
}

// bucketBounds are the upper bounds, in ms, of the response time buckets.
var bucketBounds = [...]int64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		statusCodes: make(map[int]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordPage records a successful fetch.
func (c *Collector) RecordPage(statusCode int, d time.Duration) {
	c.pagesCrawled.Add(1)
	c.RecordStatusCode(statusCode)
	c.RecordResponseTime(d)
}

// RecordFailure records a failed fetch. statusCode is 0 for transport errors.
func (c *Collector) RecordFailure(statusCode int) {
	c.fetchFailures.Add(1)
	c.RecordStatusCode(statusCode)
}

// RecordStatusCode tallies a status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.RLock()
	counter := c.statusCodes[code]
	c.statusMu.RUnlock()

	if counter == nil {
		c.statusMu.Lock()
		if counter = c.statusCodes[code]; counter == nil {
			counter = &atomic.Int64{}
			c.statusCodes[code] = counter
		}
		c.statusMu.Unlock()
	}
	counter.Add(1)
}

// RecordResponseTime records a fetch duration.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)
	c.responseTimeBuckets[bucketFor(ms)].Add(1)
}

func bucketFor(ms int64) int {
	for i, bound := range bucketBounds {
		if ms < bound {
			return i
		}
	}
	return len(bucketBounds)
}

// RecordLinks adds the link counts of one page.
func (c *Collector) RecordLinks(relative, absolute, blacklisted, offSite, pushed int) {
	c.linksRelative.Add(int64(relative))
	c.linksAbsolute.Add(int64(absolute))
	c.linksBlacklisted.Add(int64(blacklisted))
	c.linksOffSite.Add(int64(offSite))
	c.linksPushed.Add(int64(pushed))
}

// RecordScreenshot increments captured screenshots.
func (c *Collector) RecordScreenshot() {
	c.screenshots.Add(1)
}

// RecordFlush records a buffer flush.
func (c *Collector) RecordFlush(err error) {
	c.flushes.Add(1)
	if err != nil {
		c.flushFailures.Add(1)
	}
}

// RecordCacheError records a failed cache-only write.
func (c *Collector) RecordCacheError() {
	c.cacheErrors.Add(1)
}

// SetQueueDepth sets the number of pending URLs.
func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

// SetVisited sets the number of visited URLs.
func (c *Collector) SetVisited(n int64) {
	c.visitedCount.Store(n)
}

// SetPersistent records whether state is held in the store.
func (c *Collector) SetPersistent(persistent bool) {
	c.persistent.Store(persistent)
}

// GetPagesPerSecond returns the average crawl rate since start.
func (c *Collector) GetPagesPerSecond() float64 {
	elapsed := time.Since(c.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.pagesCrawled.Load()) / elapsed
}

// GetAverageResponseTime returns the average response time.
func (c *Collector) GetAverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(c.startTime),
		PagesCrawled:        c.pagesCrawled.Load(),
		FetchFailures:       c.fetchFailures.Load(),
		LinksRelative:       c.linksRelative.Load(),
		LinksAbsolute:       c.linksAbsolute.Load(),
		LinksBlacklisted:    c.linksBlacklisted.Load(),
		LinksOffSite:        c.linksOffSite.Load(),
		LinksPushed:         c.linksPushed.Load(),
		Screenshots:         c.screenshots.Load(),
		Flushes:             c.flushes.Load(),
		FlushFailures:       c.flushFailures.Load(),
		CacheErrors:         c.cacheErrors.Load(),
		QueueDepth:          c.queueDepth.Load(),
		VisitedCount:        c.visitedCount.Load(),
		Persistent:          c.persistent.Load(),
		PagesPerSecond:      c.GetPagesPerSecond(),
		AverageResponseTime: c.GetAverageResponseTime(),
		StatusCodes:         make(map[int]int64),
		ResponseTimeHist:    make([]int64, len(c.responseTimeBuckets)),
	}

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := range c.responseTimeBuckets {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time     `json:"timestamp"`
	Uptime              time.Duration `json:"uptime"`
	PagesCrawled        int64         `json:"pages_crawled"`
	FetchFailures       int64         `json:"fetch_failures"`
	LinksRelative       int64         `json:"links_relative"`
	LinksAbsolute       int64         `json:"links_absolute"`
	LinksBlacklisted    int64         `json:"links_blacklisted"`
	LinksOffSite        int64         `json:"links_off_site"`
	LinksPushed         int64         `json:"links_pushed"`
	Screenshots         int64         `json:"screenshots"`
	Flushes             int64         `json:"flushes"`
	FlushFailures       int64         `json:"flush_failures"`
	CacheErrors         int64         `json:"cache_errors"`
	QueueDepth          int64         `json:"queue_depth"`
	VisitedCount        int64         `json:"visited_count"`
	Persistent          bool          `json:"persistent"`
	PagesPerSecond      float64       `json:"pages_per_second"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	StatusCodes         map[int]int64 `json:"status_codes"`
	ResponseTimeHist    []int64       `json:"response_time_histogram"`
}

// ErrorRate returns failures over attempted fetches.
func (s *Snapshot) ErrorRate() float64 {
	total := s.PagesCrawled + s.FetchFailures
	if total == 0 {
		return 0
	}
	return float64(s.FetchFailures) / float64(total)
}

// SortedStatusCodes returns the tallied status codes in ascending order.
func (s *Snapshot) SortedStatusCodes() []int {
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// Summary returns a human-readable summary.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"pages_crawled":        s.PagesCrawled,
		"fetch_failures":       s.FetchFailures,
		"error_rate":           s.ErrorRate(),
		"links_pushed":         s.LinksPushed,
		"queue_depth":          s.QueueDepth,
		"visited":              s.VisitedCount,
		"persistent":           s.Persistent,
		"pages_per_second":     s.PagesPerSecond,
		"avg_response_time_ms": s.AverageResponseTime.Milliseconds(),
	}
}
