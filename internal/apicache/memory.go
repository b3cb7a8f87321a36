package apicache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	tags    map[string]map[string]struct{}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), tags: make(map[string]map[string]struct{})}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrMiss
	}
	return entry, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[key]; ok {
		s.untag(key, old.Tags)
	}
	s.entries[key] = entry
	for _, tag := range entry.Tags {
		keys, ok := s.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			s.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.remove(key)
	}
	return nil
}

func (s *MemoryStore) InvalidateTag(_ context.Context, tag string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.tags[tag]
	n := 0
	for key := range keys {
		if _, ok := s.entries[key]; ok {
			n++
		}
		s.remove(key)
	}
	delete(s.tags, tag)
	return n, nil
}

func (s *MemoryStore) InvalidatePattern(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.entries {
		if matchGlob(pattern, key) {
			s.remove(key)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored entries, fresh or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup drops entries whose TTL has elapsed at now.
func (s *MemoryStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		if !entry.Fresh(now) {
			s.remove(key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case now := <-ticker.C:
				s.Cleanup(now)
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

func (s *MemoryStore) remove(key string) {
	entry, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	s.untag(key, entry.Tags)
}

func (s *MemoryStore) untag(key string, tags []string) {
	for _, tag := range tags {
		keys := s.tags[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.tags, tag)
		}
	}
}

// matchGlob matches redis-style globs: '*' spans any run of characters
// (separators included) and '?' matches one character.
func matchGlob(pattern, s string) bool {
	p, i := 0, 0
	star, mark := -1, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = i
			p++
		case star >= 0:
			p = star + 1
			mark++
			i = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
