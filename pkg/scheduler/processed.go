package scheduler

import (
	"container/list"
	"sync"
	"time"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

// DefaultRetention is how long a processed key is remembered.
const DefaultRetention = 24 * time.Hour

type processedEntry struct {
	key        string
	recordedAt time.Time
}

// ProcessedSet remembers which event occurrences were already handled, in
// insertion order, with the time each was recorded. It is not persisted.
// All methods are safe for concurrent use.
type ProcessedSet struct {
	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

// NewProcessedSet returns an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Add records key at time at. Re-adding an existing key keeps its original time.
func (s *ProcessedSet) Add(key meeting.EventKey, at time.Time) {
	k := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[k]; ok {
		return
	}
	s.entries[k] = s.order.PushBack(processedEntry{key: k, recordedAt: at})
}

// Contains reports whether key has been recorded.
func (s *ProcessedSet) Contains(key meeting.EventKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key.String()]
	return ok
}

// Purge drops entries recorded more than olderThan before now and returns
// how many were removed.
func (s *ProcessedSet) Purge(olderThan time.Duration, now time.Time) int {
	cutoff := now.Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(processedEntry)
		if entry.recordedAt.Before(cutoff) {
			s.order.Remove(e)
			delete(s.entries, entry.key)
			removed++
		}
		e = next
	}
	return removed
}

// Len returns the number of remembered keys.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns the keys in insertion order.
func (s *ProcessedSet) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for e := s.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(processedEntry).key)
	}
	return keys
}
