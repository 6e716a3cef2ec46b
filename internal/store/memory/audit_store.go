package memory

import (
	"context"
	"sync"
	"time"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// AuditStore collects audit entries in memory.
type AuditStore struct {
	mu      sync.Mutex
	nextID  uint64
	entries []domain.AuditEntry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:     s.nextID,
		Event:  event,
		Detail: detail,
		At:     time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// ListBefore returns entries logged strictly before the cutoff.
func (s *AuditStore) ListBefore(_ context.Context, before time.Time) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.At.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a snapshot of everything logged so far.
func (s *AuditStore) Entries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
