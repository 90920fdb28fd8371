package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/PentesterFlow/sitecrawl/internal/logger"
	"github.com/PentesterFlow/sitecrawl/internal/output"
	"github.com/PentesterFlow/sitecrawl/internal/progress"
	"github.com/PentesterFlow/sitecrawl/internal/shutdown"
	"github.com/PentesterFlow/sitecrawl/internal/store"
	"github.com/PentesterFlow/sitecrawl/pkg/crawler"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool
	projectDir string

	// Store flags
	storeBackend  string
	storePath     string
	redisAddr     string
	redisPassword string
	redisDB       int

	// Crawl flags
	maxPages      int
	timeout       int
	rateLimit     float64
	userAgent     string
	headers       []string
	blacklist     []string
	outputFile    string
	prettyOutput  bool
	flushInterval time.Duration
	breakerLimit  int

	// Mode flags
	hardCutover     int
	latencyRatio    float64
	probeInterval   time.Duration
	startPersistent bool

	// Screenshot flags
	screenshots      bool
	screenshotDir    string
	screenshotFormat string

	// Display flags
	showProgress bool
	noSummary    bool
	metricsAddr  string

	// Admin flags
	force bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Defining the flags resets the flag
// variables to their defaults.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sitecrawl",
		Short: "sitecrawl - same-site web crawler",
		Long: `sitecrawl - A recursive crawler that discovers every page of one site.

Links are classified against the seed host and followed depth-first. Crawl
state starts in memory and moves to a persistent store once the crawl grows.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Crawl command
	crawlCmd := &cobra.Command{
		Use:   "crawl [target]",
		Short: "Crawl a target URL",
		Long:  "Crawl every same-site page reachable from the target URL.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCrawl,
	}

	// Unlock command
	unlockCmd := &cobra.Command{
		Use:   "unlock [target]",
		Short: "Remove a stale crawl lock",
		Long:  "Remove the lock marker left behind by a crashed or killed crawl.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUnlock,
	}

	// Clear cache command
	clearCmd := &cobra.Command{
		Use:   "clear-cache [target]",
		Short: "Empty the stored crawl state",
		Long:  "Delete the stored frontier and visited set of a target.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runClearCache,
	}

	// Status command
	statusCmd := &cobra.Command{
		Use:   "status [target]",
		Short: "Show crawl status",
		Long:  "Show the lock marker and stored state of a target.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "Project directory (default: $XDG_DATA_HOME/sitecrawl/<host>)")

	// Store flags
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "bolt", "State store (bolt, sqlite, redis, memory)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Database file for bolt and sqlite")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "Redis address for the redis store")
	rootCmd.PersistentFlags().StringVar(&redisPassword, "redis-password", "", "Redis password")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "Redis database number")

	// Crawl flags
	crawlCmd.Flags().IntVarP(&maxPages, "max-pages", "m", 0, "Maximum pages to fetch (0 for no limit)")
	crawlCmd.Flags().IntVarP(&timeout, "timeout", "t", 30, "Request timeout in seconds")
	crawlCmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 10, "Requests per second (0 for no limit)")
	crawlCmd.Flags().StringVar(&userAgent, "user-agent", "", "User agent string")
	crawlCmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra request header (Name: value)")
	crawlCmd.Flags().StringSliceVar(&blacklist, "blacklist", nil, "Substrings that exclude a link (replaces the default list)")
	crawlCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	crawlCmd.Flags().BoolVar(&prettyOutput, "pretty", false, "Indent JSON output")
	crawlCmd.Flags().DurationVar(&flushInterval, "flush-interval", time.Minute, "Time between cache flushes")
	crawlCmd.Flags().IntVar(&breakerLimit, "breaker", 0, "Pause fetching after this many consecutive connection failures (0 disables)")

	// Mode flags
	crawlCmd.Flags().IntVar(&hardCutover, "hard-cutover", 0, "Visited pages that force persistent mode")
	crawlCmd.Flags().Float64Var(&latencyRatio, "latency-ratio", 0, "Store latency ratio that forces persistent mode")
	crawlCmd.Flags().DurationVar(&probeInterval, "probe-interval", 0, "Time between store latency probes")
	crawlCmd.Flags().BoolVar(&startPersistent, "start-persistent", false, "Keep crawl state in the store from the start")

	// Screenshot flags
	crawlCmd.Flags().BoolVar(&screenshots, "screenshots", false, "Capture a screenshot of every page")
	crawlCmd.Flags().StringVar(&screenshotDir, "screenshot-dir", "", "Screenshot directory (default: <project-dir>/screenshots)")
	crawlCmd.Flags().StringVar(&screenshotFormat, "screenshot-format", "png", "Screenshot format (png, jpeg)")

	// Display flags
	crawlCmd.Flags().BoolVar(&showProgress, "progress", true, "Show a status line while crawling")
	crawlCmd.Flags().BoolVar(&noSummary, "no-summary", false, "Do not print the summary table")
	crawlCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	// Admin flags
	clearCmd.Flags().BoolVarP(&force, "force", "f", false, "Clear even when a crawl holds the lock")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statusCmd)

	return rootCmd
}

// loadConfig reads the config file, if any, and applies the global flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*crawler.Config, error) {
	var config *crawler.Config
	if configFile != "" {
		var err error
		config, err = crawler.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = crawler.DefaultConfig()
	}

	if len(args) > 0 {
		config.Target = args[0]
	}
	if config.Target == "" {
		return nil, fmt.Errorf("a target URL is required")
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		config.Verbose = verbose
	}
	if flags.Changed("debug") {
		config.Debug = debug
	}
	if flags.Changed("project-dir") {
		config.ProjectDir = projectDir
	}
	if flags.Changed("store") {
		config.Store.Backend = storeBackend
	}
	if flags.Changed("store-path") {
		config.Store.Path = storePath
	}
	if flags.Changed("redis-addr") {
		config.Store.Redis.Address = redisAddr
		if !flags.Changed("store") {
			config.Store.Backend = store.BackendRedis
		}
	}
	if flags.Changed("redis-password") {
		config.Store.Redis.Password = redisPassword
	}
	if flags.Changed("redis-db") {
		config.Store.Redis.DB = redisDB
	}

	return config, nil
}

// resolveConfig loads, validates and resolves the configuration for the
// admin commands.
func resolveConfig(cmd *cobra.Command, args []string) (*crawler.Config, error) {
	config, err := loadConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := config.Resolve(); err != nil {
		return nil, err
	}
	return config, nil
}

func newLogger(config *crawler.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:  logger.LevelFor(config.LogLevel, config.Verbose, config.Debug),
		Pretty: true,
		Output: os.Stderr,
	})
}

func runCrawl(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("max-pages") {
		config.MaxPages = maxPages
	}
	if flags.Changed("timeout") {
		config.Fetch.Timeout = time.Duration(timeout) * time.Second
	}
	if flags.Changed("rate-limit") {
		config.Fetch.RequestsPerSecond = rateLimit
	}
	if flags.Changed("user-agent") {
		config.Fetch.UserAgent = userAgent
		config.Screenshot.UserAgent = userAgent
	}
	if flags.Changed("header") {
		parsed, err := parseHeaders(headers)
		if err != nil {
			return err
		}
		if config.Fetch.Headers == nil {
			config.Fetch.Headers = make(map[string]string)
		}
		for k, v := range parsed {
			config.Fetch.Headers[k] = v
		}
		config.Screenshot.Headers = config.Fetch.Headers
	}
	if flags.Changed("blacklist") {
		config.Blacklist = blacklist
	}
	if flags.Changed("output") {
		config.Output.FilePath = outputFile
	}
	if flags.Changed("pretty") {
		config.Output.Pretty = prettyOutput
	}
	if flags.Changed("flush-interval") {
		config.FlushInterval = flushInterval
	}
	if flags.Changed("breaker") {
		config.Fetch.Breaker.FailureThreshold = breakerLimit
	}
	if flags.Changed("hard-cutover") {
		config.State.HardCutoverPages = hardCutover
	}
	if flags.Changed("latency-ratio") {
		config.State.LatencyRatio = latencyRatio
	}
	if flags.Changed("probe-interval") {
		config.State.ProbeInterval = probeInterval
	}
	if flags.Changed("start-persistent") {
		config.State.StartPersistent = startPersistent
	}
	if flags.Changed("screenshots") {
		config.Screenshot.Enabled = screenshots
	}
	if flags.Changed("screenshot-dir") {
		config.Screenshot.Dir = screenshotDir
	}
	if flags.Changed("screenshot-format") {
		config.Screenshot.Format = screenshotFormat
	}

	log := newLogger(config)

	c, err := crawler.New(
		crawler.WithConfig(config),
		crawler.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	h := shutdown.New(context.Background(), shutdown.Config{Log: log})
	h.RegisterCloser("crawler", c)

	if metricsAddr != "" {
		server, err := serveMetrics(c, log)
		if err != nil {
			h.Shutdown()
			return err
		}
		h.Register("metrics", server.Shutdown)
	}

	// The status line and verbose logs share stderr.
	var display *progress.Display
	if showProgress && !config.Verbose && !config.Debug {
		display = progress.New(os.Stderr)
		display.Start(config.Target)
		stop := watchProgress(h.Context(), c, display)
		h.Register("progress", func(ctx context.Context) error {
			stop()
			return nil
		})
	}

	printBanner(config)

	result, err := c.Run(h.Context())
	if display != nil {
		display.Stop()
	}

	res := h.Shutdown()
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	if result.Reason == crawler.AlreadyCrawling {
		fmt.Fprintf(os.Stderr, "A crawl of %s is already running (lock: %s).\n", config.Target, c.Guard().Path())
		fmt.Fprintln(os.Stderr, "Run 'sitecrawl unlock' if that crawl is no longer alive.")
		return nil
	}

	if !noSummary && result.Summary != nil {
		output.RenderSummary(os.Stderr, result.Summary)
	}
	if h.Signalled() {
		fmt.Fprintln(os.Stderr, "Crawl interrupted.")
	}
	if res.HasErrors() {
		return errors.Join(res.Errors...)
	}
	return nil
}

// watchProgress samples the crawl metrics until ctx is done. The returned
// func stops sampling.
func watchProgress(ctx context.Context, c *crawler.Crawler, display *progress.Display) func() {
	ctx, cancel := context.WithCancel(ctx)
	maxPages := c.Config().MaxPages

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := c.Metrics().Snapshot()
				display.Update(progress.Stats{
					Pages:      snap.PagesCrawled,
					Failures:   snap.FetchFailures,
					Queue:      snap.QueueDepth,
					Visited:    snap.VisitedCount,
					Persistent: snap.Persistent,
					MaxPages:   maxPages,
				})
			}
		}
	}()

	return cancel
}

func serveMetrics(c *crawler.Crawler, log *logger.Logger) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := c.Metrics().Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	log.Infof("serving metrics on %s/metrics", metricsAddr)
	return server, nil
}

func parseHeaders(values []string) (map[string]string, error) {
	parsed := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", v)
		}
		parsed[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return parsed, nil
}

func printBanner(config *crawler.Config) {
	fmt.Fprintf(os.Stderr, "sitecrawl v%s\n", version)
	fmt.Fprintf(os.Stderr, "  Target:  %s\n", config.Target)
	if config.MaxPages > 0 {
		fmt.Fprintf(os.Stderr, "  Limit:   %d pages\n", config.MaxPages)
	}
	fmt.Fprintf(os.Stderr, "  Store:   %s\n", config.Store.Backend)
	fmt.Fprintf(os.Stderr, "  Project: %s\n", config.ProjectDir)
	fmt.Fprintln(os.Stderr)
}
