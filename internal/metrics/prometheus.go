package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace is the namespace of all exported metrics.
	Namespace = "sitecrawl"

	// Subsystem is the subsystem of all exported metrics.
	Subsystem = "crawler"
)

// promCollector exports a Collector's counters on every scrape.
type promCollector struct {
	c *Collector

	pagesCrawled  *prometheus.Desc
	fetchFailures *prometheus.Desc
	statusCodes   *prometheus.Desc
	links         *prometheus.Desc
	screenshots   *prometheus.Desc
	flushes       *prometheus.Desc
	cacheErrors   *prometheus.Desc
	queueDepth    *prometheus.Desc
	visited       *prometheus.Desc
	persistent    *prometheus.Desc
	responseTime  *prometheus.Desc
}

func desc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(Namespace, Subsystem, name), help, labels, nil)
}

// Register registers the collector with reg, or the default registerer
// when reg is nil.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(c.prometheus())
}

func (c *Collector) prometheus() *promCollector {
	return &promCollector{
		c:             c,
		pagesCrawled:  desc("pages_crawled_total", "Pages fetched successfully"),
		fetchFailures: desc("fetch_failures_total", "Failed page fetches"),
		statusCodes:   desc("responses_total", "Fetches by status code, 0 for transport errors", "code"),
		links:         desc("links_total", "Links seen on fetched pages by class", "class"),
		screenshots:   desc("screenshots_total", "Screenshots captured"),
		flushes:       desc("flushes_total", "Batch buffer flushes by result", "result"),
		cacheErrors:   desc("cache_errors_total", "Failed cache-only writes"),
		queueDepth:    desc("queue_depth", "URLs waiting in the frontier"),
		visited:       desc("visited_urls", "URLs marked visited"),
		persistent:    desc("persistent_mode", "1 once crawl state lives in the store"),
		responseTime:  desc("response_time_seconds", "Page fetch duration"),
	}
}

// Describe implements prometheus.Collector.
func (p *promCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.pagesCrawled
	ch <- p.fetchFailures
	ch <- p.statusCodes
	ch <- p.links
	ch <- p.screenshots
	ch <- p.flushes
	ch <- p.cacheErrors
	ch <- p.queueDepth
	ch <- p.visited
	ch <- p.persistent
	ch <- p.responseTime
}

// Collect implements prometheus.Collector.
func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.c.Snapshot()

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(p.pagesCrawled, s.PagesCrawled)
	counter(p.fetchFailures, s.FetchFailures)
	for _, code := range s.SortedStatusCodes() {
		counter(p.statusCodes, s.StatusCodes[code], strconv.Itoa(code))
	}
	counter(p.links, s.LinksRelative, "relative")
	counter(p.links, s.LinksAbsolute, "absolute")
	counter(p.links, s.LinksBlacklisted, "blacklisted")
	counter(p.links, s.LinksOffSite, "off_site")
	counter(p.screenshots, s.Screenshots)
	counter(p.flushes, s.Flushes-s.FlushFailures, "ok")
	counter(p.flushes, s.FlushFailures, "error")
	counter(p.cacheErrors, s.CacheErrors)

	gauge(p.queueDepth, float64(s.QueueDepth))
	gauge(p.visited, float64(s.VisitedCount))
	persistent := 0.0
	if s.Persistent {
		persistent = 1
	}
	gauge(p.persistent, persistent)

	buckets := make(map[float64]uint64, len(bucketBounds))
	var cumulative uint64
	for i, bound := range bucketBounds {
		cumulative += uint64(s.ResponseTimeHist[i])
		buckets[float64(bound)/1000] = cumulative
	}
	count := cumulative + uint64(s.ResponseTimeHist[len(bucketBounds)])
	sum := float64(p.c.responseTimesSum.Load()) / 1000
	ch <- prometheus.MustNewConstHistogram(p.responseTime, count, sum, buckets)
}
