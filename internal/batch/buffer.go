package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/logger"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// DefaultInterval is the wall-clock time between opportunistic flushes.
const DefaultInterval = time.Minute

// KindConfig registers a record kind with the buffer.
type KindConfig struct {
	Priority   int // lower flushes first
	Kind       Kind
	Collection string
	KeyField   string
	Flush      FlushFunc
}

type kindQueue struct {
	cfg     KindConfig
	pending []Record
}

// Stats holds buffer counters.
type Stats struct {
	Flushes  int64 `json:"flushes"`
	Failures int64 `json:"failures"`
	Written  int64 `json:"written"`
	Dropped  int64 `json:"dropped"`
}

// Buffer queues records per kind and writes them in priority order.
// Only one flush runs at a time; a flush requested while another is in
// progress is a no-op.
type Buffer struct {
	mu        sync.Mutex
	kinds     []*kindQueue
	byKind    map[Kind]*kindQueue
	interval  time.Duration
	lastFlush time.Time
	now       func() time.Time
	saving    atomic.Bool
	log       *logger.Logger

	flushes  atomic.Int64
	failures atomic.Int64
	written  atomic.Int64
	dropped  atomic.Int64
}

// NewBuffer creates a buffer that becomes due every interval.
func NewBuffer(interval time.Duration, log *logger.Logger) *Buffer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Nop()
	}

	b := &Buffer{
		byKind:   make(map[Kind]*kindQueue),
		interval: interval,
		now:      time.Now,
		log:      log.WithComponent("batch"),
	}
	b.lastFlush = b.now()
	return b
}

// SetClock replaces the buffer's clock and restarts the interval.
func (b *Buffer) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	b.lastFlush = now()
}

// AddType registers a record kind.
func (b *Buffer) AddType(cfg KindConfig) error {
	if cfg.Flush == nil {
		return fmt.Errorf("kind %s has no flush function", cfg.Kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byKind[cfg.Kind]; exists {
		return fmt.Errorf("kind %s already registered", cfg.Kind)
	}

	kq := &kindQueue{cfg: cfg}
	b.byKind[cfg.Kind] = kq
	b.kinds = append(b.kinds, kq)
	sort.SliceStable(b.kinds, func(i, j int) bool {
		return b.kinds[i].cfg.Priority < b.kinds[j].cfg.Priority
	})
	return nil
}

// RegisterDefaults registers the found, visited and screenshot kinds with
// upsert flushes into their store collections.
func (b *Buffer) RegisterDefaults(s store.Store) error {
	kinds := []KindConfig{
		{Priority: 1, Kind: KindFoundURL, Collection: store.CollectionFoundURLs, KeyField: "url"},
		{Priority: 2, Kind: KindVisitedURL, Collection: store.CollectionVisitedURLs, KeyField: "url"},
		{Priority: 3, Kind: KindScreenshot, Collection: store.CollectionScreenshots, KeyField: "url"},
	}
	for _, cfg := range kinds {
		cfg.Flush = UpsertFlush(s, cfg.Collection, cfg.KeyField)
		if err := b.AddType(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Enqueue queues a record for the next flush.
func (b *Buffer) Enqueue(rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	kq, ok := b.byKind[rec.Kind()]
	if !ok {
		return fmt.Errorf("kind %s not registered", rec.Kind())
	}
	kq.pending = append(kq.pending, rec)
	return nil
}

// Pending returns the number of queued records of a kind.
func (b *Buffer) Pending(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kq, ok := b.byKind[kind]; ok {
		return len(kq.pending)
	}
	return 0
}

// Len returns the total number of queued records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, kq := range b.kinds {
		n += len(kq.pending)
	}
	return n
}

// Due reports whether the flush interval has elapsed.
func (b *Buffer) Due() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Sub(b.lastFlush) >= b.interval
}

// Saving reports whether a flush is in progress.
func (b *Buffer) Saving() bool {
	return b.saving.Load()
}

// MaybeFlush flushes if the interval has elapsed.
func (b *Buffer) MaybeFlush(ctx context.Context) error {
	if !b.Due() {
		return nil
	}
	return b.FlushAll(ctx)
}

// FlushAll writes every queued record, kind by kind in priority order.
// Each kind's queue is swapped out before writing, so records enqueued
// during the flush land in the next batch. The first write error aborts the
// flush; records already written stay written and the rest of the failing
// batch is dropped.
func (b *Buffer) FlushAll(ctx context.Context) error {
	if !b.saving.CompareAndSwap(false, true) {
		return nil
	}
	defer b.saving.Store(false)

	b.mu.Lock()
	b.lastFlush = b.now()
	kinds := make([]*kindQueue, len(b.kinds))
	copy(kinds, b.kinds)
	b.mu.Unlock()

	b.flushes.Add(1)

	for _, kq := range kinds {
		b.mu.Lock()
		batch := kq.pending
		kq.pending = nil
		b.mu.Unlock()

		if len(batch) == 0 {
			continue
		}

		start := time.Now()
		for i, rec := range batch {
			if err := kq.cfg.Flush(ctx, rec); err != nil {
				b.failures.Add(1)
				b.dropped.Add(int64(len(batch) - i))
				return fmt.Errorf("flush %s (%d of %d written): %w", kq.cfg.Kind, i, len(batch), err)
			}
			b.written.Add(1)
		}
		b.log.FlushEvent(string(kq.cfg.Kind), len(batch), time.Since(start))
	}

	return nil
}

// Stats returns the buffer counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Flushes:  b.flushes.Load(),
		Failures: b.failures.Load(),
		Written:  b.written.Load(),
		Dropped:  b.dropped.Load(),
	}
}
