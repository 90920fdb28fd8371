package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// =============================================================================
// Stack Tests
// =============================================================================

func TestStack_LIFO(t *testing.T) {
	s := NewStack()

	for _, u := range []string{"a", "b", "c"} {
		if added, err := s.Push(u); !added || err != nil {
			t.Fatalf("Push(%q) = %v, %v", u, added, err)
		}
	}

	for _, want := range []string{"c", "b", "a"} {
		got, ok := s.Pop()
		if !ok || got != want {
			t.Errorf("Pop() = %q, %v; want %q", got, ok, want)
		}
	}

	if _, ok := s.Pop(); ok {
		t.Error("Pop() on empty stack should report false")
	}
}

func TestStack_Duplicates(t *testing.T) {
	s := NewStack()

	_, _ = s.Push("a")
	added, err := s.Push("a")
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if added {
		t.Error("duplicate Push() should not add")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	// Once popped, the URL is no longer pending and may be pushed again.
	s.Pop()
	if s.Contains("a") {
		t.Error("Contains() should be false after Pop()")
	}
	if added, _ := s.Push("a"); !added {
		t.Error("Push() after Pop() should add")
	}
}

func TestStack_PeekItemsClear(t *testing.T) {
	s := NewStack()
	_, _ = s.Push("a")
	_, _ = s.Push("b")

	if top, ok := s.Peek(); !ok || top != "b" {
		t.Errorf("Peek() = %q, %v; want b", top, ok)
	}

	items := s.Items()
	if len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Errorf("Items() = %v, want [a b]", items)
	}

	s.Clear()
	if s.Len() != 0 || s.Contains("a") {
		t.Error("Clear() should empty the stack")
	}
}

func TestStack_Close(t *testing.T) {
	s := NewStack()
	_, _ = s.Push("a")
	_ = s.Close()

	if _, err := s.Push("b"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Push() after Close() error = %v, want ErrQueueClosed", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after Close() = %d, want 0", s.Len())
	}
}

func TestStack_Concurrent(t *testing.T) {
	s := NewStack()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = s.Push(fmt.Sprintf("https://example.com/%d/%d", id, j%50))
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 500 {
		t.Errorf("Len() = %d, want 500", s.Len())
	}
}

// =============================================================================
// StoreStack Tests
// =============================================================================

func TestStoreStack_LIFO(t *testing.T) {
	ctx := context.Background()
	ss := NewStoreStack(store.NewMemoryStore())

	for _, u := range []string{"a", "b", "c"} {
		if added, err := ss.Push(ctx, u); !added || err != nil {
			t.Fatalf("Push(%q) = %v, %v", u, added, err)
		}
	}
	if added, _ := ss.Push(ctx, "b"); added {
		t.Error("Push() of a persisted URL should be rejected")
	}

	for _, want := range []string{"c", "b", "a"} {
		got, ok, err := ss.Pop(ctx)
		if err != nil || !ok || got != want {
			t.Errorf("Pop() = %q, %v, %v; want %q", got, ok, err, want)
		}
	}

	if _, ok, err := ss.Pop(ctx); ok || err != nil {
		t.Errorf("Pop() on empty = %v, %v", ok, err)
	}
}

func TestStoreStack_Sync(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ss := NewStoreStack(st)

	// "b" was already flushed by the batch buffer, deep in the stack.
	_, _ = ss.Push(ctx, "b")
	_, _ = ss.Push(ctx, "z")

	if err := ss.Sync(ctx, []string{"a", "b", "c"}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	var got []string
	for {
		u, ok, err := ss.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if !ok {
			break
		}
		got = append(got, u)
	}

	want := []string{"c", "b", "a", "z"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("pop order = %v, want %v", got, want)
	}
}

// =============================================================================
// Frontier Tests
// =============================================================================

func TestFrontier_MigratePreservesOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	f := NewFrontier(NewStoreStack(st))

	for _, u := range []string{"a", "b", "c"} {
		_, _ = f.Push(ctx, u)
	}

	if err := f.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !f.Persistent() {
		t.Fatal("Persistent() should be true after Migrate()")
	}

	// Every pending URL is in the found collection.
	for _, u := range []string{"a", "b", "c"} {
		if _, err := st.FindOne(ctx, store.CollectionFoundURLs, u); err != nil {
			t.Errorf("FindOne(%q) after Migrate() error = %v", u, err)
		}
	}

	if n, _ := f.Len(ctx); n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}
	if ok, _ := f.Contains(ctx, "b"); !ok {
		t.Error("Contains(b) should be true")
	}

	_, _ = f.Push(ctx, "d")
	for _, want := range []string{"d", "c", "b", "a"} {
		got, ok, err := f.Pop(ctx)
		if err != nil || !ok || got != want {
			t.Errorf("Pop() = %q, %v, %v; want %q", got, ok, err, want)
		}
	}

	// Migrate is one-way and idempotent.
	if err := f.Migrate(ctx); err != nil || !f.Persistent() {
		t.Errorf("second Migrate() = %v, persistent = %v", err, f.Persistent())
	}
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Upsert(ctx context.Context, collection string, doc store.Document) error {
	return errors.New("write failed")
}

func TestFrontier_MigrateFailureStaysInMemory(t *testing.T) {
	ctx := context.Background()
	f := NewFrontier(NewStoreStack(failingStore{store.NewMemoryStore()}))
	_, _ = f.Push(ctx, "a")

	if err := f.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail")
	}
	if f.Persistent() {
		t.Error("frontier should stay in memory after a failed Migrate()")
	}
	if u, ok, _ := f.Pop(ctx); !ok || u != "a" {
		t.Errorf("Pop() = %q, %v; want a", u, ok)
	}
}
