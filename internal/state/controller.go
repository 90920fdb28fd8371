package state

import (
	"context"
	"fmt"
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/batch"
	crawlerrors "github.com/PentesterFlow/sitecrawl/internal/errors"
	"github.com/PentesterFlow/sitecrawl/internal/logger"
	"github.com/PentesterFlow/sitecrawl/internal/queue"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// Config holds the mode controller thresholds.
type Config struct {
	// HardCutoverPages forces the switch once this many pages are visited.
	HardCutoverPages int `yaml:"hard_cutover_pages" json:"hard_cutover_pages"`
	// LatencyRatio switches when a found-record delete costs more than
	// LatencyRatio times the baseline existence check.
	LatencyRatio float64 `yaml:"latency_ratio" json:"latency_ratio"`
	// ProbeInterval is the time between baseline probes.
	ProbeInterval time.Duration `yaml:"probe_interval" json:"probe_interval"`
	// StartPersistent skips the in-memory phase.
	StartPersistent bool `yaml:"start_persistent" json:"start_persistent"`
	// EstimatedURLs sizes the Bloom filter.
	EstimatedURLs int `yaml:"estimated_urls" json:"estimated_urls"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		HardCutoverPages: 1000,
		LatencyRatio:     20,
		ProbeInterval:    time.Minute,
		EstimatedURLs:    100000,
	}
}

// Controller owns the frontier, the visited set and the ModeState, and
// performs the one-way cutover from memory to the store.
type Controller struct {
	cfg      Config
	store    store.Store
	buffer   *batch.Buffer
	frontier *queue.Frontier
	visited  *VisitedSet
	state    ModeState
	now      func() time.Time
	log      *logger.Logger

	cacheErrors int
}

// NewController creates a controller in InMemory mode.
func NewController(s store.Store, buf *batch.Buffer, cfg Config, log *logger.Logger) *Controller {
	def := DefaultConfig()
	if cfg.HardCutoverPages <= 0 {
		cfg.HardCutoverPages = def.HardCutoverPages
	}
	if cfg.LatencyRatio <= 0 {
		cfg.LatencyRatio = def.LatencyRatio
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Controller{
		cfg:      cfg,
		store:    s,
		buffer:   buf,
		frontier: queue.NewFrontier(queue.NewStoreStack(s)),
		visited:  NewVisitedSet(s, cfg.EstimatedURLs),
		now:      time.Now,
		log:      log.WithComponent("state"),
	}
	c.state.SwitchDeadline = c.now()
	return c
}

// SetClock replaces the controller's clock. The next pop probes.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
	c.state.SwitchDeadline = now()
}

// State returns a copy of the ModeState.
func (c *Controller) State() ModeState {
	return c.state
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	return c.state.Mode
}

// CacheErrors returns the number of failed cache-only writes.
func (c *Controller) CacheErrors() int {
	return c.cacheErrors
}

// Pending returns the number of URLs in the frontier.
func (c *Controller) Pending(ctx context.Context) (int, error) {
	return c.frontier.Len(ctx)
}

// Start applies StartPersistent.
func (c *Controller) Start(ctx context.Context) error {
	if c.cfg.StartPersistent {
		return c.Cutover(ctx, ReasonConfigured)
	}
	return nil
}

// IsVisited reports whether url has been marked visited.
func (c *Controller) IsVisited(ctx context.Context, url string) (bool, error) {
	visited, err := c.visited.Has(ctx, url)
	if err != nil {
		return false, crawlerrors.NewPersistenceError("is_visited", store.CollectionVisitedURLs, err)
	}
	return visited, nil
}

// Push adds url to the frontier unless it is visited or already pending.
// It reports whether url was added. Errors are persistence failures.
func (c *Controller) Push(ctx context.Context, url string) (bool, error) {
	visited, err := c.IsVisited(ctx, url)
	if err != nil || visited {
		return false, err
	}

	added, err := c.frontier.Push(ctx, url)
	if err != nil {
		return false, crawlerrors.NewPersistenceError("push", store.CollectionFoundURLs, err)
	}

	if added && c.state.Mode == InMemory {
		if err := c.buffer.Enqueue(batch.FoundURL{URL: url, FoundAt: c.now()}); err != nil {
			return added, err
		}
	}
	return added, nil
}

// Pop removes the next URL from the frontier. In memory mode it also
// deletes the URL's cached found record, timing the delete against the
// baseline; a slow delete switches the mode on this same pop.
func (c *Controller) Pop(ctx context.Context) (string, bool, error) {
	url, ok, err := c.frontier.Pop(ctx)
	if err != nil {
		return "", false, crawlerrors.NewPersistenceError("pop", store.CollectionFoundURLs, err)
	}
	if !ok || c.state.Mode == Persistent {
		return url, ok, nil
	}

	c.probe(ctx, url)

	start := c.now()
	err = c.store.Delete(ctx, store.CollectionFoundURLs, url)
	cost := c.now().Sub(start)
	c.state.LastDeleteLatency = cost

	if err != nil {
		c.cacheErrors++
		c.log.WithError(err).WithURL(url).Warn("Failed to delete cached found record")
		return url, true, nil
	}

	baseline := c.state.BaselineFoundURLLatency
	if baseline > 0 && float64(cost) > c.cfg.LatencyRatio*float64(baseline) {
		if err := c.Cutover(ctx, ReasonLatency); err != nil {
			return url, true, err
		}
	}

	return url, true, nil
}

// probe measures the persistent existence check when the deadline has passed.
func (c *Controller) probe(ctx context.Context, url string) {
	if c.now().Before(c.state.SwitchDeadline) {
		return
	}

	start := c.now()
	_, err := c.store.FindOne(ctx, store.CollectionFoundURLs, url)
	cost := c.now().Sub(start)

	if err != nil && !isNotFound(err) {
		c.cacheErrors++
		c.log.WithError(err).Warn("Baseline probe failed")
	} else {
		c.state.BaselineFoundURLLatency = cost
	}
	c.state.SwitchDeadline = c.now().Add(c.cfg.ProbeInterval)
}

// MarkVisited records url as visited and applies the page threshold.
func (c *Controller) MarkVisited(ctx context.Context, url string) error {
	if err := c.visited.Mark(ctx, url); err != nil {
		return crawlerrors.NewPersistenceError("mark_visited", store.CollectionVisitedURLs, err)
	}
	c.state.VisitedCount++

	if c.state.Mode == Persistent {
		return nil
	}

	if err := c.buffer.Enqueue(batch.VisitedURL{URL: url, VisitedAt: c.now()}); err != nil {
		return err
	}

	if c.state.VisitedCount >= c.cfg.HardCutoverPages {
		return c.Cutover(ctx, ReasonPageThreshold)
	}
	return nil
}

// Cutover moves the crawl state to the store: the batch buffer is flushed,
// visited URLs are written, the found collection is rebuilt from the
// frontier bottom to top, and only
// then does the mode flip. Any error leaves the mode InMemory and must be
// treated as fatal by the caller.
func (c *Controller) Cutover(ctx context.Context, reason SwitchReason) error {
	if c.state.Mode == Persistent {
		return nil
	}

	start := c.now()

	if err := c.buffer.FlushAll(ctx); err != nil {
		return fmt.Errorf("cutover flush: %w", err)
	}
	if err := c.visited.Sync(ctx); err != nil {
		return fmt.Errorf("cutover visited sync: %w", err)
	}
	// Flushed found records may include URLs popped since the last flush.
	// The in-memory stack is authoritative, so the collection is rebuilt.
	if _, err := store.Drain(ctx, c.store, store.CollectionFoundURLs, 0); err != nil {
		return fmt.Errorf("cutover found reset: %w", err)
	}
	if err := c.frontier.Migrate(ctx); err != nil {
		return fmt.Errorf("cutover found sync: %w", err)
	}
	c.visited.Activate()

	c.state.Mode = Persistent
	c.state.SwitchedAt = c.now()
	c.state.SwitchReason = reason

	c.log.ModeEvent(InMemory.String(), Persistent.String(), string(reason), c.state.VisitedCount)
	c.log.Debugf("Cutover took %s", c.now().Sub(start))
	return nil
}
