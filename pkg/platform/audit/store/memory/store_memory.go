package memory

import (
	"context"
	"sort"
	"sync"

	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
)

// InMemoryStore keeps entries in insertion order. Used by tests and by the
// memory storage driver.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	seq     int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	entry.Seq = s.seq
	stored := *entry
	if entry.NotificationID != nil {
		id := *entry.NotificationID
		stored.NotificationID = &id
	}
	s.entries = append(s.entries, stored)
	return nil
}

// List returns every entry ordered by timestamp, then insertion order.
func (s *InMemoryStore) List(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]audit.Entry{}, s.entries...)
	sortEntries(out)
	return out, nil
}

func (s *InMemoryStore) ListByNotification(_ context.Context, id domain.NotificationID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.NotificationID != nil && *e.NotificationID == id {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

// Kinds returns the kinds of all entries in order. Convenient in assertions.
func (s *InMemoryStore) Kinds() []audit.ActionKind {
	entries, _ := s.List(context.Background())
	kinds := make([]audit.ActionKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func sortEntries(entries []audit.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Seq < entries[j].Seq
	})
}
