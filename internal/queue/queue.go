// Package queue provides the crawl frontier: a last-in-first-out stack of
// pending URLs, held in memory or in the persistent store.
package queue

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by operations on a closed stack.
var ErrQueueClosed = errors.New("queue is closed")

// Frontier holds pending URLs. It starts in memory and moves to the store
// on Migrate; the move is one-way.
type Frontier struct {
	mem        *Stack
	persisted  *StoreStack
	persistent bool
}

// NewFrontier creates an in-memory frontier that can migrate to persisted.
func NewFrontier(persisted *StoreStack) *Frontier {
	return &Frontier{
		mem:       NewStack(),
		persisted: persisted,
	}
}

// Persistent reports whether the frontier is backed by the store.
func (f *Frontier) Persistent() bool {
	return f.persistent
}

// Push adds url unless it is already pending. It reports whether url was added.
func (f *Frontier) Push(ctx context.Context, url string) (bool, error) {
	if f.persistent {
		return f.persisted.Push(ctx, url)
	}
	return f.mem.Push(url)
}

// Pop removes and returns the most recently pushed URL. ok is false when
// the frontier is empty.
func (f *Frontier) Pop(ctx context.Context) (url string, ok bool, err error) {
	if f.persistent {
		return f.persisted.Pop(ctx)
	}
	url, ok = f.mem.Pop()
	return url, ok, nil
}

// Contains reports whether url is pending.
func (f *Frontier) Contains(ctx context.Context, url string) (bool, error) {
	if f.persistent {
		return f.persisted.Contains(ctx, url)
	}
	return f.mem.Contains(url), nil
}

// Len returns the number of pending URLs.
func (f *Frontier) Len(ctx context.Context) (int, error) {
	if f.persistent {
		return f.persisted.Len(ctx)
	}
	return f.mem.Len(), nil
}

// Migrate copies every pending in-memory URL into the store, bottom to top
// so the stack order survives, then serves all further operations from the
// store. On error the frontier stays in memory.
func (f *Frontier) Migrate(ctx context.Context) error {
	if f.persistent {
		return nil
	}

	if err := f.persisted.Sync(ctx, f.mem.Items()); err != nil {
		return err
	}

	f.persistent = true
	return f.mem.Close()
}
