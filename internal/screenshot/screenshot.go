// Package screenshot captures page images with headless Chrome via Rod.
package screenshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Image formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Config defines screenshot capture configuration.
type Config struct {
	Enabled        bool              `yaml:"enabled" json:"enabled"`
	Dir            string            `yaml:"dir" json:"dir"`
	Format         string            `yaml:"format" json:"format"`
	Quality        int               `yaml:"quality" json:"quality"`
	FullPage       bool              `yaml:"full_page" json:"full_page"`
	Headless       bool              `yaml:"headless" json:"headless"`
	Timeout        time.Duration     `yaml:"timeout" json:"timeout"`
	UserAgent      string            `yaml:"user_agent" json:"user_agent"`
	Headers        map[string]string `yaml:"headers" json:"headers"`
	ViewportWidth  int               `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int               `yaml:"viewport_height" json:"viewport_height"`
	RecycleAfter   int               `yaml:"recycle_after" json:"recycle_after"`
	BrowserBin     string            `yaml:"browser_bin" json:"browser_bin"`
}

// DefaultConfig returns default capture configuration.
func DefaultConfig() Config {
	return Config{
		Format:         FormatPNG,
		Quality:        80,
		Headless:       true,
		Timeout:        30 * time.Second,
		ViewportWidth:  1366,
		ViewportHeight: 768,
		RecycleAfter:   200,
	}
}

// Capturer saves screenshots of pages into a directory. The browser is
// launched on first use and restarted every RecycleAfter captures.
type Capturer struct {
	config    Config
	mu        sync.Mutex
	browser   *rod.Browser
	pageCount int
}

// New creates a capturer writing into cfg.Dir.
func New(cfg Config) (*Capturer, error) {
	def := DefaultConfig()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("screenshot directory is required")
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.Format != FormatPNG && cfg.Format != FormatJPEG {
		return nil, fmt.Errorf("unsupported screenshot format %q", cfg.Format)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create screenshot directory: %w", err)
	}
	return &Capturer{config: cfg}, nil
}

// Capture renders url and writes its image. It returns the image path.
func (c *Capturer) Capture(ctx context.Context, pageURL string) (string, error) {
	browser, err := c.acquire()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(c.config.Timeout)

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  c.config.ViewportWidth,
		Height: c.config.ViewportHeight,
	})

	if c.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: c.config.UserAgent,
		}.Call(page)
	}

	if len(c.config.Headers) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range c.config.Headers {
			networkHeaders[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
	}

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for %s: %w", pageURL, err)
	}

	img, err := page.Screenshot(c.config.FullPage, c.request())
	if err != nil {
		return "", fmt.Errorf("capture %s: %w", pageURL, err)
	}

	path := filepath.Join(c.config.Dir, FileName(pageURL, c.config.Format))
	if err := os.WriteFile(path, img, 0644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

func (c *Capturer) request() *proto.PageCaptureScreenshot {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if c.config.Format == FormatJPEG {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		if c.config.Quality > 0 {
			req.Quality = gson.Int(c.config.Quality)
		}
	}
	return req
}

// acquire returns the running browser, launching or recycling it as needed.
func (c *Capturer) acquire() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil && c.config.RecycleAfter > 0 && c.pageCount >= c.config.RecycleAfter {
		_ = c.browser.Close()
		c.browser = nil
		c.pageCount = 0
	}

	if c.browser == nil {
		b, err := c.launch()
		if err != nil {
			return nil, err
		}
		c.browser = b
	}

	c.pageCount++
	return c.browser, nil
}

func (c *Capturer) launch() (*rod.Browser, error) {
	l := launcher.New().Headless(c.config.Headless).Set("ignore-certificate-errors", "true")
	if c.config.BrowserBin != "" {
		l = l.Bin(c.config.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	return browser, nil
}

// PageCount returns the number of captures since the last browser launch.
func (c *Capturer) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageCount
}

// Close shuts the browser down.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser = nil
	return err
}

// FileName derives a stable image file name from a page URL: a readable
// slug of the host and path followed by a short hash of the full URL.
func FileName(pageURL, format string) string {
	if format == "" {
		format = FormatPNG
	}

	sum := sha256.Sum256([]byte(pageURL))
	hash := hex.EncodeToString(sum[:])[:12]

	slug := "page"
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		slug = slugify(u.Host + u.Path)
	}
	if len(slug) > 80 {
		slug = slug[:80]
	}
	return slug + "-" + hash + "." + format
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
