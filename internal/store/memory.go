package store

import (
	"context"
	"sort"
	"sync"
)

type memoryEntry struct {
	seq uint64
	doc Document
}

// MemoryStore implements Store using in-memory storage.
type MemoryStore struct {
	mu          sync.RWMutex
	seq         uint64
	collections map[string]map[string]memoryEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]memoryEntry),
	}
}

// Upsert inserts or replaces a document.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]memoryEntry)
		s.collections[collection] = c
	}

	doc.Body = append([]byte(nil), doc.Body...)
	if existing, ok := c[doc.Key]; ok {
		c[doc.Key] = memoryEntry{seq: existing.seq, doc: doc}
		return nil
	}

	s.seq++
	c[doc.Key] = memoryEntry{seq: s.seq, doc: doc}
	return nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], key)
	return nil
}

// FindOne returns the document with key.
func (s *MemoryStore) FindOne(ctx context.Context, collection, key string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	doc := e.doc
	return &doc, nil
}

// Last returns the most recently inserted document.
func (s *MemoryStore) Last(ctx context.Context, collection string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *memoryEntry
	for _, e := range s.collections[collection] {
		if last == nil || e.seq > last.seq {
			e := e
			last = &e
		}
	}
	if last == nil {
		return nil, ErrNotFound
	}
	doc := last.doc
	return &doc, nil
}

// Keys returns up to limit keys in insertion order.
func (s *MemoryStore) Keys(ctx context.Context, collection string, limit int) ([]string, error) {
	s.mu.RLock()
	entries := make([]memoryEntry, 0, len(s.collections[collection]))
	for _, e := range s.collections[collection] {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	var keys []string
	for _, e := range entries {
		if limit > 0 && len(keys) >= limit {
			break
		}
		keys = append(keys, e.doc.Key)
	}
	return keys, nil
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection]), nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
