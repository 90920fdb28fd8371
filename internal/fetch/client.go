// Package fetch retrieves pages over HTTP and parses them into queryable
// documents.
package fetch

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/PentesterFlow/sitecrawl/internal/errors"
	"github.com/PentesterFlow/sitecrawl/internal/ratelimit"
)

// DefaultUserAgent identifies the crawler.
const DefaultUserAgent = "Mozilla/5.0 (compatible; sitecrawl/1.0)"

// Config holds client configuration.
type Config struct {
	Timeout           time.Duration     `yaml:"timeout" json:"timeout"`
	UserAgent         string            `yaml:"user_agent" json:"user_agent"`
	Headers           map[string]string `yaml:"headers" json:"headers"`
	SkipTLSVerify     bool              `yaml:"skip_tls_verify" json:"skip_tls_verify"`
	MaxBodyBytes      int64             `yaml:"max_body_bytes" json:"max_body_bytes"`
	MaxRedirects      int               `yaml:"max_redirects" json:"max_redirects"`
	RequestsPerSecond float64           `yaml:"requests_per_second" json:"requests_per_second"`
	MinRate           float64           `yaml:"min_rate" json:"min_rate"`
	Burst             int               `yaml:"burst" json:"burst"`
	Delay             time.Duration     `yaml:"delay" json:"delay"`
	MaxRetries        int               `yaml:"max_retries" json:"max_retries"`

	// Breaker stops fetching for a cooldown after consecutive transport
	// failures. A zero threshold disables it.
	Breaker errors.BreakerConfig `yaml:"breaker" json:"breaker"`
}

// DefaultConfig returns client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           15 * time.Second,
		UserAgent:         DefaultUserAgent,
		MaxBodyBytes:      5 * 1024 * 1024,
		MaxRedirects:      10,
		RequestsPerSecond: 10,
		MinRate:           1,
		Burst:             5,
		MaxRetries:        2,
	}
}

// Page is a fetched document.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Doc         *goquery.Document // nil for non-HTML responses
	Duration    time.Duration
}

// IsHTML reports whether the page was parsed.
func (p *Page) IsHTML() bool {
	return p != nil && p.Doc != nil
}

// Client fetches pages with pacing and retries for transient failures.
type Client struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	maxBody   int64
	limiter   *ratelimit.AdaptiveLimiter
	retrier   *errors.Retrier
	breaker   *errors.CircuitBreaker
}

// New creates a client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.MinRate <= 0 || cfg.MinRate > cfg.RequestsPerSecond {
		cfg.MinRate = cfg.RequestsPerSecond
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
	}

	retry := errors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}

	limiter := ratelimit.NewAdaptiveLimiter(cfg.MinRate, cfg.RequestsPerSecond, cfg.Burst)
	limiter.SetDelay(cfg.Delay)

	maxRedirects := cfg.MaxRedirects
	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		headers:   cfg.Headers,
		maxBody:   cfg.MaxBodyBytes,
		limiter:   limiter,
		retrier:   errors.NewRetrier(retry),
		breaker:   errors.NewCircuitBreaker(cfg.Breaker),
	}
}

// SetRetryConfig replaces the retry policy.
func (c *Client) SetRetryConfig(config errors.RetryConfig) {
	c.retrier = errors.NewRetrier(config)
}

// Breaker returns the circuit breaker, nil when disabled.
func (c *Client) Breaker() *errors.CircuitBreaker {
	return c.breaker
}

// Fetch retrieves url. A non-2xx response yields both the page, carrying
// its status code, and a CrawlError with that status. While the breaker is
// open Fetch fails without a request.
func (c *Client) Fetch(ctx context.Context, url string) (*Page, error) {
	if !c.breaker.Allow() {
		return nil, errors.NewNetworkError(url, "circuit_open", &errors.CircuitOpenError{State: c.breaker.State()})
	}

	var page *Page

	result := c.retrier.Do(ctx, "fetch", url, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Categorize(err, url)
		}

		var err error
		page, err = c.get(ctx, url)
		c.record(err)
		return err
	})

	if !result.Success {
		switch errors.GetErrorType(result.LastError) {
		case errors.Network, errors.Timeout:
			c.breaker.RecordFailure()
		case errors.Cancelled:
		default:
			c.breaker.RecordSuccess()
		}
		return page, result.LastError
	}
	c.breaker.RecordSuccess()
	return page, nil
}

func (c *Client) record(err error) {
	switch errors.GetErrorType(err) {
	case errors.RateLimit, errors.ServerError, errors.Timeout:
		c.limiter.RecordError()
	default:
		c.limiter.RecordSuccess()
	}
}

func (c *Client) get(ctx context.Context, url string) (*Page, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewCrawlError(errors.Parse, url, "request_creation", "failed to create request", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Categorize(err, url)
	}
	defer resp.Body.Close()

	page := &Page{
		URL:         url,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if httpErr := errors.CategorizeHTTPStatus(resp.StatusCode, url); httpErr != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
		page.Duration = time.Since(start)
		return page, httpErr
	}

	if !isHTML(page.ContentType) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
		page.Duration = time.Since(start)
		return page, nil
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, c.maxBody), page.ContentType)
	if err != nil {
		return page, errors.NewParseError(url, "charset", err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		if ctx.Err() != nil || errors.IsRetryable(err) {
			return page, errors.NewNetworkError(url, "body_read", err)
		}
		return page, errors.NewParseError(url, "html", err)
	}
	page.Doc = doc
	page.Duration = time.Since(start)
	return page, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
