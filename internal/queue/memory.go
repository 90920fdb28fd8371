package queue

import (
	"sync"
)

// Stack is a thread-safe in-memory LIFO stack with a membership set, so a
// URL is never pending twice.
type Stack struct {
	mu      sync.RWMutex
	items   []string
	members map[string]struct{}
	closed  bool
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{
		members: make(map[string]struct{}),
	}
}

// Push adds url on top. Duplicates are silently ignored and reported as
// not added.
func (s *Stack) Push(url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrQueueClosed
	}

	if _, exists := s.members[url]; exists {
		return false, nil
	}

	s.members[url] = struct{}{}
	s.items = append(s.items, url)
	return true, nil
}

// Pop removes and returns the top URL.
func (s *Stack) Pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return "", false
	}

	n := len(s.items) - 1
	url := s.items[n]
	s.items[n] = ""
	s.items = s.items[:n]
	delete(s.members, url)
	return url, true
}

// Peek returns the top URL without removing it.
func (s *Stack) Peek() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.items) == 0 {
		return "", false
	}
	return s.items[len(s.items)-1], true
}

// Len returns the number of items in the stack.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Contains checks if a URL is in the stack.
func (s *Stack) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.members[url]
	return exists
}

// Items returns the pending URLs from bottom to top.
func (s *Stack) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// Clear removes all items from the stack.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.members = make(map[string]struct{})
}

// Close clears the stack and rejects further pushes.
func (s *Stack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.items = nil
	s.members = make(map[string]struct{})
	return nil
}
