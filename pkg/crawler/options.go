package crawler

import (
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/logger"
	"github.com/PentesterFlow/sitecrawl/internal/metrics"
	"github.com/PentesterFlow/sitecrawl/internal/output"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// Option is a functional option for configuring the Crawler.
type Option func(*Crawler) error

// WithConfig sets the entire configuration.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		c.config = config
		return nil
	}
}

// WithTarget sets the seed URL.
func WithTarget(url string) Option {
	return func(c *Crawler) error {
		c.config.Target = url
		return nil
	}
}

// WithMaxPages sets the page limit. 0 disables the limit.
func WithMaxPages(n int) Option {
	return func(c *Crawler) error {
		c.config.MaxPages = n
		return nil
	}
}

// WithBlacklist replaces the link blacklist.
func WithBlacklist(keywords ...string) Option {
	return func(c *Crawler) error {
		c.config.Blacklist = append([]string(nil), keywords...)
		return nil
	}
}

// WithProjectDir sets the directory holding the lock marker and store.
func WithProjectDir(dir string) Option {
	return func(c *Crawler) error {
		c.config.ProjectDir = dir
		return nil
	}
}

// WithStoreConfig selects the persistent store backend.
func WithStoreConfig(cfg store.Config) Option {
	return func(c *Crawler) error {
		c.config.Store = cfg
		return nil
	}
}

// WithStore injects an open store. The crawler does not close it.
func WithStore(s store.Store) Option {
	return func(c *Crawler) error {
		c.store = s
		c.ownsStore = false
		return nil
	}
}

// WithHardCutover sets the visited-page count that forces persistent mode.
func WithHardCutover(pages int) Option {
	return func(c *Crawler) error {
		c.config.State.HardCutoverPages = pages
		return nil
	}
}

// WithLatencyRatio sets the delete/probe latency ratio that switches modes.
func WithLatencyRatio(ratio float64) Option {
	return func(c *Crawler) error {
		c.config.State.LatencyRatio = ratio
		return nil
	}
}

// WithStartPersistent starts the crawl in persistent mode.
func WithStartPersistent(enabled bool) Option {
	return func(c *Crawler) error {
		c.config.State.StartPersistent = enabled
		return nil
	}
}

// WithFlushInterval sets the time between cache flushes.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Crawler) error {
		c.config.FlushInterval = d
		return nil
	}
}

// WithRateLimit sets the request rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Crawler) error {
		c.config.Fetch.RequestsPerSecond = rps
		c.config.Fetch.Burst = burst
		return nil
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Crawler) error {
		c.config.Fetch.Timeout = timeout
		return nil
	}
}

// WithUserAgent sets the user agent string.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) error {
		c.config.Fetch.UserAgent = ua
		c.config.Screenshot.UserAgent = ua
		return nil
	}
}

// WithCustomHeaders sets custom headers for all requests.
func WithCustomHeaders(headers map[string]string) Option {
	return func(c *Crawler) error {
		if c.config.Fetch.Headers == nil {
			c.config.Fetch.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.config.Fetch.Headers[k] = v
		}
		c.config.Screenshot.Headers = c.config.Fetch.Headers
		return nil
	}
}

// WithScreenshots enables screenshot capture into dir. An empty dir uses
// the project directory.
func WithScreenshots(dir string) Option {
	return func(c *Crawler) error {
		c.config.Screenshot.Enabled = true
		c.config.Screenshot.Dir = dir
		return nil
	}
}

// WithFetcher replaces the HTTP client.
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) error {
		c.fetcher = f
		return nil
	}
}

// WithScreenshotter replaces the screenshot capturer.
func WithScreenshotter(s Screenshotter) Option {
	return func(c *Crawler) error {
		c.screenshots = s
		return nil
	}
}

// WithExtractor sets the per-page extraction callback. By default every
// page is written to the output.
func WithExtractor(fn ExtractFunc) Option {
	return func(c *Crawler) error {
		c.extract = fn
		return nil
	}
}

// WithOutput sets the output writer. The crawler does not close it.
func WithOutput(w output.Writer) Option {
	return func(c *Crawler) error {
		c.output = w
		c.ownsOutput = false
		return nil
	}
}

// WithOutputFile sets the output file path.
func WithOutputFile(path string) Option {
	return func(c *Crawler) error {
		c.config.Output.FilePath = path
		return nil
	}
}

// WithPrettyOutput enables/disables pretty JSON output.
func WithPrettyOutput(pretty bool) Option {
	return func(c *Crawler) error {
		c.config.Output.Pretty = pretty
		return nil
	}
}

// WithVerbose enables/disables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(c *Crawler) error {
		c.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables/disables debug mode.
func WithDebug(debug bool) Option {
	return func(c *Crawler) error {
		c.config.Debug = debug
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}

// WithClock replaces the clock used for cache timestamps and mode probes.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) error {
		c.now = now
		return nil
	}
}
