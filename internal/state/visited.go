package state

import (
	"context"
	"errors"
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/batch"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// VisitedSet tracks fetched URLs. In memory it is the Deduplicator's exact
// set; once persistent, membership is answered by the visited_urls
// collection with the Bloom filter as a negative pre-check.
type VisitedSet struct {
	dedup      *Deduplicator
	store      store.Store
	persistent bool
	now        func() time.Time
}

// NewVisitedSet creates an in-memory visited set that can migrate to s.
func NewVisitedSet(s store.Store, estimatedURLs int) *VisitedSet {
	return &VisitedSet{
		dedup: NewDeduplicator(estimatedURLs),
		store: s,
		now:   time.Now,
	}
}

// Has reports whether url has been marked.
func (v *VisitedSet) Has(ctx context.Context, url string) (bool, error) {
	if !v.persistent {
		return v.dedup.HasSeen(url), nil
	}

	if !v.dedup.MightContain(url) {
		return false, nil
	}

	_, err := v.store.FindOne(ctx, store.CollectionVisitedURLs, url)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mark records url as visited. In persistent mode the record is written to
// the store directly.
func (v *VisitedSet) Mark(ctx context.Context, url string) error {
	if v.persistent {
		doc, err := batch.VisitedURL{URL: url, VisitedAt: v.now()}.Document()
		if err != nil {
			return err
		}
		if err := v.store.Upsert(ctx, store.CollectionVisitedURLs, doc); err != nil {
			return err
		}
	}

	v.dedup.Add(url)
	return nil
}

// Len returns the number of marked URLs.
func (v *VisitedSet) Len() int {
	return v.dedup.Count()
}

// Persistent reports whether the set is backed by the store.
func (v *VisitedSet) Persistent() bool {
	return v.persistent
}

// Sync writes every in-memory visited URL to the store without changing
// the backing.
func (v *VisitedSet) Sync(ctx context.Context) error {
	if v.persistent {
		return nil
	}

	for _, url := range v.dedup.GetAll() {
		doc, err := batch.VisitedURL{URL: url, VisitedAt: v.now()}.Document()
		if err != nil {
			return err
		}
		if err := v.store.Upsert(ctx, store.CollectionVisitedURLs, doc); err != nil {
			return err
		}
	}
	return nil
}

// Activate switches the set to the store and releases the exact set. Call
// it only after a successful Sync.
func (v *VisitedSet) Activate() {
	if v.persistent {
		return
	}
	v.persistent = true
	v.dedup.ReleaseExact()
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
