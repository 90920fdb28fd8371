package queue

import (
	"context"
	"errors"
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/batch"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// StoreStack is a LIFO stack over the found_urls collection. The top is
// the most recently inserted document.
type StoreStack struct {
	store      store.Store
	collection string
	now        func() time.Time
}

// NewStoreStack creates a stack over s.
func NewStoreStack(s store.Store) *StoreStack {
	return &StoreStack{
		store:      s,
		collection: store.CollectionFoundURLs,
		now:        time.Now,
	}
}

// Push inserts url unless a found record for it already exists.
func (ss *StoreStack) Push(ctx context.Context, url string) (bool, error) {
	exists, err := ss.Contains(ctx, url)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := ss.insert(ctx, url); err != nil {
		return false, err
	}
	return true, nil
}

func (ss *StoreStack) insert(ctx context.Context, url string) error {
	doc, err := batch.FoundURL{URL: url, FoundAt: ss.now()}.Document()
	if err != nil {
		return err
	}
	return ss.store.Upsert(ctx, ss.collection, doc)
}

// Pop removes and returns the most recently inserted URL.
func (ss *StoreStack) Pop(ctx context.Context) (string, bool, error) {
	doc, err := ss.store.Last(ctx, ss.collection)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if err := ss.store.Delete(ctx, ss.collection, doc.Key); err != nil {
		return "", false, err
	}
	return doc.Key, true, nil
}

// Contains reports whether a found record exists for url.
func (ss *StoreStack) Contains(ctx context.Context, url string) (bool, error) {
	_, err := ss.store.FindOne(ctx, ss.collection, url)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Len returns the number of pending URLs.
func (ss *StoreStack) Len(ctx context.Context) (int, error) {
	return ss.store.Count(ctx, ss.collection)
}

// Sync writes urls, given bottom to top, so that the last one becomes the
// top of the stack. Existing records are re-inserted to take their new
// position.
func (ss *StoreStack) Sync(ctx context.Context, urls []string) error {
	for _, url := range urls {
		if err := ss.store.Delete(ctx, ss.collection, url); err != nil {
			return err
		}
		if err := ss.insert(ctx, url); err != nil {
			return err
		}
	}
	return nil
}
