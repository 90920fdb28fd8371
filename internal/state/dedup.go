package state

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator handles URL deduplication using a Bloom filter backed by an
// exact set. After ReleaseExact only the Bloom filter remains, serving as a
// negative cache: a miss is definite, a hit must be confirmed elsewhere.
type Deduplicator struct {
	mu       sync.RWMutex
	filter   *bloom.BloomFilter
	exact    map[string]struct{} // nil once released
	count    int
	released bool
}

// falsePositiveRate sizes the Bloom filter.
const falsePositiveRate = 0.001

// NewDeduplicator creates a new deduplicator.
func NewDeduplicator(estimatedItems int) *Deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(estimatedItems), falsePositiveRate),
		exact:  make(map[string]struct{}),
	}
}

// Add adds a URL to the deduplicator.
func (d *Deduplicator) Add(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		d.filter.AddString(url)
		d.count++
		return
	}

	// Only increment count if URL is new
	if _, exists := d.exact[url]; !exists {
		d.filter.AddString(url)
		d.exact[url] = struct{}{}
		d.count++
	}
}

// HasSeen checks the exact set. It always reports false after ReleaseExact.
func (d *Deduplicator) HasSeen(url string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Fast check with Bloom filter
	if !d.filter.TestString(url) {
		return false
	}

	// Exact check for potential false positives
	_, exists := d.exact[url]
	return exists
}

// MightContain checks the Bloom filter only. False means url was never added.
func (d *Deduplicator) MightContain(url string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter.TestString(url)
}

// ReleaseExact drops the exact set, keeping the Bloom filter.
func (d *Deduplicator) ReleaseExact() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.exact = nil
	d.released = true
}

// Released reports whether the exact set has been dropped.
func (d *Deduplicator) Released() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.released
}

// Count returns the number of URLs added. After ReleaseExact it counts adds.
func (d *Deduplicator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

// Reset resets the deduplicator.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filter.ClearAll()
	d.exact = make(map[string]struct{})
	d.count = 0
	d.released = false
}

// GetAll returns all URLs in the exact set.
func (d *Deduplicator) GetAll() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	urls := make([]string, 0, len(d.exact))
	for url := range d.exact {
		urls = append(urls, url)
	}
	return urls
}
