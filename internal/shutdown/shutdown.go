// Package shutdown ties OS signals to crawl cancellation and runs the
// crawl's cleanup steps once, newest first.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/logger"
)

// Callback releases one resource during shutdown.
type Callback func(ctx context.Context) error

type step struct {
	name string
	fn   Callback
}

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	Log     *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler cancels the crawl context on the first signal and runs the
// registered cleanup steps when Shutdown is called.
type Handler struct {
	mu    sync.Mutex
	steps []step

	timeout  time.Duration
	log      *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	sigChan  chan os.Signal
	stopOnce sync.Once
	stopped  chan struct{}

	signalled atomic.Bool
	closing   atomic.Bool
	done      chan struct{}
	result    Result
}

// Result reports what happened during shutdown.
type Result struct {
	Elapsed time.Duration
	Errors  []error
}

// HasErrors returns whether any step failed.
func (r Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// New creates a handler whose context derives from parent and starts
// listening for the configured signals.
func New(parent context.Context, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		timeout: cfg.Timeout,
		log:     cfg.Log.WithComponent("shutdown"),
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}

	signal.Notify(h.sigChan, cfg.Signals...)
	go h.listen()

	return h
}

func (h *Handler) listen() {
	select {
	case sig := <-h.sigChan:
		h.signalled.Store(true)
		h.log.Warnf("received %s, stopping crawl", sig)
		h.cancel()
	case <-h.stopped:
	}
}

// Context returns the crawl context. It is cancelled by the first signal
// or by Shutdown.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Signalled reports whether a signal cancelled the context.
func (h *Handler) Signalled() bool {
	return h.signalled.Load()
}

// Register adds a cleanup step. Steps run in reverse registration order.
func (h *Handler) Register(name string, fn Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, step{name: name, fn: fn})
}

// RegisterCloser adds a step that calls Close.
func (h *Handler) RegisterCloser(name string, c interface{ Close() error }) {
	h.Register(name, func(ctx context.Context) error {
		return c.Close()
	})
}

// Trigger delivers a synthetic SIGTERM.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
	}
}

// Done is closed once Shutdown has finished.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Shutdown stops listening, cancels the context and runs every step within
// the configured timeout. Later calls wait for the first and return its result.
func (h *Handler) Shutdown() Result {
	if !h.closing.CompareAndSwap(false, true) {
		<-h.done
		return h.result
	}

	start := time.Now()
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.stopped)
	})
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	steps := make([]step, len(h.steps))
	copy(steps, h.steps)
	h.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := run(ctx, steps[i]); err != nil {
			h.log.WithError(err).Warnf("shutdown step %s failed", steps[i].name)
			errs = append(errs, err)
		}
	}

	h.result = Result{Elapsed: time.Since(start), Errors: errs}
	close(h.done)
	return h.result
}

func run(ctx context.Context, s step) error {
	done := make(chan error, 1)
	go func() {
		done <- s.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{Step: s.name}
	}
}

// TimeoutError is returned when a step outlives the shutdown timeout.
type TimeoutError struct {
	Step string
}

func (e *TimeoutError) Error() string {
	return "shutdown step timed out: " + e.Step
}
