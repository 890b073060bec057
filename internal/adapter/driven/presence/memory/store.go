// Package memory is an in-process presence store for tests and
// single-process development setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

// Store keeps presence records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[domain.ParticipantID]domain.Presence
}

var _ port.PresenceStore = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[domain.ParticipantID]domain.Presence)}
}

func (s *Store) SetStatus(ctx context.Context, p domain.Presence) error {
	s.mu.Lock()
	s.records[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.ParticipantID) (domain.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[id]
	if !ok {
		return domain.Presence{}, fmt.Errorf("participant %s: %w", id, domain.ErrTargetUnavailable)
	}
	return p, nil
}

// ListAvailable returns every participant that is not offline, sorted by
// name for a stable roster.
func (s *Store) ListAvailable(ctx context.Context) ([]domain.Presence, error) {
	s.mu.RLock()
	out := make([]domain.Presence, 0, len(s.records))
	for _, p := range s.records {
		if p.Status != domain.StatusOffline {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
