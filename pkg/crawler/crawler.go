package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/batch"
	crawlerrors "github.com/PentesterFlow/sitecrawl/internal/errors"
	"github.com/PentesterFlow/sitecrawl/internal/fetch"
	"github.com/PentesterFlow/sitecrawl/internal/lockfile"
	"github.com/PentesterFlow/sitecrawl/internal/logger"
	"github.com/PentesterFlow/sitecrawl/internal/metrics"
	"github.com/PentesterFlow/sitecrawl/internal/output"
	"github.com/PentesterFlow/sitecrawl/internal/parser"
	"github.com/PentesterFlow/sitecrawl/internal/scope"
	"github.com/PentesterFlow/sitecrawl/internal/screenshot"
	"github.com/PentesterFlow/sitecrawl/internal/state"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// drainPageSize bounds the keys held in memory while clearing the cache.
const drainPageSize = 500

// Crawler is the crawl session controller.
type Crawler struct {
	config      *Config
	classifier  *scope.Classifier
	guard       *lockfile.Guard
	store       store.Store
	ownsStore   bool
	buffer      *batch.Buffer
	controller  *state.Controller
	fetcher     Fetcher
	screenshots Screenshotter
	extract     ExtractFunc
	output      output.Writer
	ownsOutput  bool
	logger      *logger.Logger
	metrics     *metrics.Collector
	now         func() time.Time

	mu      sync.RWMutex
	status  Status
	running atomic.Bool

	// per-run tallies, owned by the loop
	runID       string
	seed        string
	startTime   time.Time
	pages       int
	failures    int
	shots       int
	statusCodes map[int]int
	links       output.LinkStats
	flushErrors int
}

// New creates a new crawler with the given options. Configuration errors
// are returned before any state is touched.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config:     DefaultConfig(),
		ownsStore:  true,
		ownsOutput: true,
		status:     Idle,
		now:        time.Now,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	if err := c.config.Resolve(); err != nil {
		return nil, err
	}

	seed, err := scope.NormalizeURL(c.config.Target)
	if err != nil {
		return nil, crawlerrors.NewConfigError("invalid target", err)
	}
	c.seed = seed

	c.classifier, err = scope.NewClassifier(seed, c.config.Blacklist)
	if err != nil {
		return nil, crawlerrors.NewConfigError("invalid target", err)
	}

	if c.logger == nil {
		c.logger = newLogger(c.config)
	}
	c.logger = c.logger.WithComponent("crawler")

	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	c.guard = lockfile.New(c.config.ProjectDir)

	if c.fetcher == nil {
		c.fetcher = fetch.New(c.config.Fetch)
	}

	if c.screenshots == nil && c.config.Screenshot.Enabled {
		capturer, err := screenshot.New(c.config.Screenshot)
		if err != nil {
			return nil, crawlerrors.NewConfigError("screenshot setup failed", err)
		}
		c.screenshots = capturer
	}

	if c.output == nil {
		w, err := output.Open(c.config.Output)
		if err != nil {
			return nil, crawlerrors.NewConfigError("output setup failed", err)
		}
		c.output = w
	}

	if c.extract == nil {
		c.extract = c.writePage
	}

	return c, nil
}

func newLogger(cfg *Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:  logger.LevelFor(cfg.LogLevel, cfg.Verbose, cfg.Debug),
		Pretty: true,
	})
}

func parseLevel(s string) (logger.Level, error) {
	return logger.ParseLevel(s)
}

// Config returns the resolved configuration.
func (c *Crawler) Config() *Config {
	return c.config
}

// Status returns the session state.
func (c *Crawler) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Crawler) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Metrics returns the metrics collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// Guard returns the run-exclusivity guard of the project directory.
func (c *Crawler) Guard() *lockfile.Guard {
	return c.guard
}

// Run crawls the site. A run that finds another crawl's lock marker ends
// immediately with reason AlreadyCrawling and no error. Fetch failures are
// tallied and never end the run. A persistence error during a mode switch
// or a persistent-mode write aborts the run and leaves the lock marker in
// place.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("crawler is already running")
	}
	defer c.running.Store(false)

	locked, err := c.guard.HasLockFile()
	if err != nil {
		return nil, err
	}
	if locked {
		return c.alreadyCrawling(), nil
	}

	marker, err := c.guard.CreateLockFile(c.seed)
	if errors.Is(err, lockfile.ErrLocked) {
		return c.alreadyCrawling(), nil
	}
	if err != nil {
		return nil, err
	}

	c.runID = marker.RunID
	log := c.logger.WithRun(c.runID)

	if err := c.open(); err != nil {
		c.guard.RemoveLockFile()
		return nil, err
	}

	if err := c.start(ctx); err != nil {
		c.setStatus(Idle)
		log.WithError(err).Error("Crawl start failed")
		return nil, err
	}

	log.Infof("Crawling %s", c.seed)

	reason, err := c.loop(ctx, log)
	if err != nil {
		c.setStatus(Idle)
		c.output.Flush()
		log.WithError(err).Errorf("Crawl aborted, lock marker left at %s", c.guard.Path())
		return nil, err
	}

	return c.finish(ctx, reason, log)
}

func (c *Crawler) alreadyCrawling() *Result {
	c.logger.Infof("Lock marker %s exists, skipping run", c.guard.Path())
	c.setStatus(AlreadyCrawling)
	return &Result{Reason: AlreadyCrawling}
}

// open builds the store-backed components for one run.
func (c *Crawler) open() error {
	if c.store == nil {
		s, err := store.Open(c.config.Store)
		if err != nil {
			return crawlerrors.NewPersistenceError("open", c.config.Store.Backend, err)
		}
		c.store = s
		c.ownsStore = true
	}

	c.buffer = batch.NewBuffer(c.config.FlushInterval, c.logger)
	c.buffer.SetClock(c.now)
	if err := c.buffer.RegisterDefaults(c.store); err != nil {
		return err
	}

	c.controller = state.NewController(c.store, c.buffer, c.config.State, c.logger)
	c.controller.SetClock(c.now)

	c.pages, c.failures, c.shots, c.flushErrors = 0, 0, 0, 0
	c.statusCodes = make(map[int]int)
	c.links = output.LinkStats{}
	return nil
}

// start clears the previous run's cache, seeds the frontier and records
// the start time.
func (c *Crawler) start(ctx context.Context) error {
	for _, coll := range []string{store.CollectionFoundURLs, store.CollectionVisitedURLs} {
		if _, err := store.Drain(ctx, c.store, coll, drainPageSize); err != nil {
			return crawlerrors.NewPersistenceError("clear_cache", coll, err)
		}
	}

	if _, err := c.controller.Push(ctx, c.seed); err != nil {
		return err
	}
	if err := c.controller.Start(ctx); err != nil {
		return err
	}

	c.startTime = c.now()
	c.setStatus(Running)
	return nil
}

// loop runs until the frontier is empty, the page limit is reached or ctx
// is cancelled. A returned error is fatal.
func (c *Crawler) loop(ctx context.Context, log *logger.Logger) (Status, error) {
	abort := func(err error) (Status, error) {
		if ctx.Err() != nil {
			return Cancelled, nil
		}
		return "", err
	}

	for {
		if ctx.Err() != nil {
			return Cancelled, nil
		}

		url, ok, err := c.controller.Pop(ctx)
		if err != nil {
			return abort(err)
		}
		if !ok {
			return FrontierExhausted, nil
		}

		visited, err := c.controller.IsVisited(ctx, url)
		if err != nil {
			return abort(err)
		}
		if visited {
			continue
		}

		if c.config.MaxPages > 0 && c.pages >= c.config.MaxPages {
			return PageLimitReached, nil
		}

		if err := c.controller.MarkVisited(ctx, url); err != nil {
			return abort(err)
		}

		if err := c.visit(ctx, url, log); err != nil {
			return abort(err)
		}

		c.maybeFlush(ctx, log)
	}
}

// visit fetches one page and processes it. Fetch failures are tallied and
// return nil. Any other fetcher error, such as a store or configuration
// failure, is returned and ends the run.
func (c *Crawler) visit(ctx context.Context, url string, log *logger.Logger) error {
	c.pages++

	page, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !crawlerrors.GetErrorType(err).IsFetchFailure() {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		c.recordFailure(url, page, err, log)
		return nil
	}

	c.statusCodes[page.StatusCode]++
	c.metrics.RecordPage(page.StatusCode, page.Duration)
	log.PageEvent(url, page.StatusCode, page.Duration)

	p := &Page{Page: page}
	if c.screenshots != nil {
		p.Screenshot = c.capture(ctx, url, log)
	}

	c.extract(ctx, p)

	if !page.IsHTML() {
		return nil
	}
	return c.follow(ctx, page, log)
}

func (c *Crawler) recordFailure(url string, page *fetch.Page, err error, log *logger.Logger) {
	status := crawlerrors.GetStatusCode(err)
	if status == 0 && page != nil {
		status = page.StatusCode
	}

	c.failures++
	c.statusCodes[status]++
	c.metrics.RecordFailure(status)
	log.WithURL(url).WithError(err).Debugf("Fetch failed with status %d", status)

	if werr := c.output.WriteError(&output.ErrorRecord{
		URL:        url,
		StatusCode: status,
		Type:       crawlerrors.GetErrorType(err).String(),
		Error:      err.Error(),
		Timestamp:  c.now(),
	}); werr != nil {
		log.WithError(werr).Warn("Failed to write error record")
	}
}

func (c *Crawler) capture(ctx context.Context, url string, log *logger.Logger) string {
	path, err := c.screenshots.Capture(ctx, url)
	if err != nil {
		log.WithURL(url).WithError(err).Warn("Screenshot failed")
		return ""
	}

	if err := c.buffer.Enqueue(batch.Screenshot{URL: url, Path: path, TakenAt: c.now()}); err != nil {
		log.WithError(err).Warn("Failed to queue screenshot record")
	}
	c.shots++
	c.metrics.RecordScreenshot()
	return path
}

// follow classifies the page's anchors and queues the site's links.
func (c *Crawler) follow(ctx context.Context, page *fetch.Page, log *logger.Logger) error {
	var counts scope.Counts
	offSite, pushed := 0, 0

	for _, href := range parser.Anchors(page.Doc, parser.DefaultPatterns...) {
		link := c.classifier.Classify(href)
		counts.Add(link.Class)
		if link.Class == scope.OffSite {
			offSite++
		}
		if !link.Class.Enqueueable() {
			continue
		}

		added, err := c.controller.Push(ctx, link.URL)
		if err != nil {
			return err
		}
		if added {
			pushed++
		}
	}

	c.links.Relative += counts.Relative
	c.links.Absolute += counts.Absolute
	c.links.Blacklisted += counts.Blacklisted
	c.links.OffSite += offSite
	c.links.Pushed += pushed
	c.metrics.RecordLinks(counts.Relative, counts.Absolute, counts.Blacklisted, offSite, pushed)

	log.WithURL(page.URL).Debugf("Links: %d relative, %d absolute, %d blacklisted, %d queued",
		counts.Relative, counts.Absolute, counts.Blacklisted, pushed)
	return nil
}

// maybeFlush writes the cache when the flush interval has elapsed. Cache
// write failures are logged and the crawl continues.
func (c *Crawler) maybeFlush(ctx context.Context, log *logger.Logger) {
	if !c.buffer.Due() {
		return
	}

	err := c.buffer.FlushAll(ctx)
	c.metrics.RecordFlush(err)
	if err != nil {
		c.flushErrors++
		c.metrics.RecordCacheError()
		log.WithError(err).Warn("Cache flush failed")
	}
	c.updateGauges(ctx)
}

func (c *Crawler) updateGauges(ctx context.Context) {
	st := c.controller.State()
	c.metrics.SetVisited(int64(st.VisitedCount))
	c.metrics.SetPersistent(st.Mode == state.Persistent)
	if n, err := c.controller.Pending(ctx); err == nil {
		c.metrics.SetQueueDepth(int64(n))
	}
}

// finish flushes the cache, clears it, writes the summary and releases the
// lock marker, in that order. Cancellation of ctx does not stop it.
func (c *Crawler) finish(ctx context.Context, reason Status, log *logger.Logger) (*Result, error) {
	c.setStatus(Ending)
	ctx = context.WithoutCancel(ctx)

	err := c.buffer.FlushAll(ctx)
	c.metrics.RecordFlush(err)
	if err != nil {
		c.flushErrors++
		log.WithError(err).Warn("Final cache flush failed")
	}

	c.updateGauges(ctx)
	pending, _ := c.controller.Pending(ctx)

	for _, coll := range []string{store.CollectionFoundURLs, store.CollectionVisitedURLs} {
		n, err := store.Drain(ctx, c.store, coll, drainPageSize)
		if err != nil {
			log.WithError(err).Warnf("Failed to clear %s", coll)
			continue
		}
		log.Debugf("Cleared %d %s records", n, coll)
	}

	summary := c.summary(reason, pending)
	if err := c.output.WriteSummary(summary); err != nil {
		log.WithError(err).Warn("Failed to write summary")
	}
	if err := c.output.Flush(); err != nil {
		log.WithError(err).Warn("Failed to flush output")
	}
	log.StatsEvent(c.metrics.Snapshot().Summary())

	c.setStatus(Idle)
	log.Infof("Crawl finished: %s, %d pages", reason, summary.PagesCrawled)

	if err := c.guard.RemoveLockFile(); err != nil {
		return &Result{Reason: reason, Summary: summary}, err
	}
	return &Result{Reason: reason, Summary: summary}, nil
}

func (c *Crawler) summary(reason Status, pending int) *output.Summary {
	completed := c.now()
	st := c.controller.State()
	bs := c.buffer.Stats()

	s := &output.Summary{
		RunID:        c.runID,
		Target:       c.seed,
		Reason:       string(reason),
		StartedAt:    c.startTime,
		CompletedAt:  completed,
		Duration:     completed.Sub(c.startTime),
		PagesCrawled: c.pages - c.failures,
		Failures:     c.failures,
		StatusCodes:  c.statusCodes,
		Links:        c.links,
		Visited:      st.VisitedCount,
		Pending:      pending,
		Screenshots:  c.shots,
		CacheErrors:  c.controller.CacheErrors() + c.flushErrors,
		Mode: output.ModeInfo{
			Mode:         st.Mode.String(),
			SwitchReason: string(st.SwitchReason),
			SwitchedAt:   st.SwitchedAt,
		},
		Buffer: output.BufferStats{
			Flushes:  bs.Flushes,
			Failures: bs.Failures,
			Written:  bs.Written,
			Dropped:  bs.Dropped,
		},
	}
	return s
}

// writePage is the default extraction callback.
func (c *Crawler) writePage(ctx context.Context, page *Page) {
	info := parser.Summarize(page.Doc)
	rec := &output.PageRecord{
		URL:         page.URL,
		StatusCode:  page.StatusCode,
		ContentType: page.ContentType,
		Title:       info.Title,
		Description: info.Description,
		Canonical:   info.Canonical,
		Anchors:     info.Anchors,
		Screenshot:  page.Screenshot,
		Duration:    page.Duration,
		FetchedAt:   c.now(),
	}
	if err := c.output.WritePage(rec); err != nil {
		c.logger.WithURL(page.URL).WithError(err).Warn("Failed to write page record")
	}
}

// Close releases the HTTP client and the browser, plus the store and
// output unless they were injected.
func (c *Crawler) Close() error {
	var errs []error

	if closer, ok := c.fetcher.(interface{ Close() }); ok {
		closer.Close()
	}
	if closer, ok := c.screenshots.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.output != nil && c.ownsOutput {
		if err := c.output.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.store != nil && c.ownsStore {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
		c.store = nil
	}

	return errors.Join(errs...)
}
