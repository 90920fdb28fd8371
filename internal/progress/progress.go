// Package progress renders a one-line crawl status on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Stats is one progress sample.
type Stats struct {
	Pages      int64
	Failures   int64
	Queue      int64
	Visited    int64
	Persistent bool
	MaxPages   int
}

// Display redraws a status line in place.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	startTime time.Time
	target    string
	lastLine  string
	last      Stats
	now       func() time.Time
}

// New creates a display writing to out. A nil out writes to stderr.
func New(out io.Writer) *Display {
	if out == nil {
		out = os.Stderr
	}
	return &Display{out: out, now: time.Now}
}

// Start begins the display.
func (d *Display) Start(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true
	d.startTime = d.now()
	d.target = target
}

// Update redraws the line with s.
func (d *Display) Update(s Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = s
	if !d.started || d.stopped {
		return
	}

	line := "\r" + d.render(s)
	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

func (d *Display) render(s Stats) string {
	elapsed := d.now().Sub(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(s.Pages) / elapsed.Seconds()
	}

	mode := "memory"
	if s.Persistent {
		mode = "persistent"
	}

	pages := fmt.Sprintf("%d", s.Pages)
	if s.MaxPages > 0 {
		pages = fmt.Sprintf("%d/%d", s.Pages+s.Failures, s.MaxPages)
		pages = bar(int(s.Pages+s.Failures), s.MaxPages) + " " + pages
	}

	return fmt.Sprintf("Pages: %s | Failed: %d | Queue: %d | Visited: %d | %s | %.1f p/s | %s",
		pages, s.Failures, s.Queue, s.Visited, mode, speed, formatDuration(elapsed))
}

// bar draws done out of total as a fixed-width bar.
func bar(done, total int) string {
	const width = 20
	if done > total {
		done = total
	}
	filled := done * width / total
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// Stop ends the display and moves past the status line.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}
	d.stopped = true
	fmt.Fprintln(d.out)
}

// Last returns the most recent sample.
func (d *Display) Last() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
