// Package storage provides the session registry.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Compile-time interface check.
var _ domain.SessionStore = (*MemoryStore)(nil)

// MemoryStore keeps the latest snapshot of each session. Safe for
// concurrent access. Nothing survives the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionState
	log      *logger.Logger
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.SessionState),
		log:      log,
	}
}

// Save records a snapshot. Overwrites if it already exists.
func (s *MemoryStore) Save(ctx context.Context, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("saving session %s (recipe=%s, phase=%s, cursor=%d)", state.ID, state.RecipeID, state.Phase, state.Cursor)
	s.sessions[state.ID] = state
	return nil
}

// Load retrieves a snapshot by ID.
func (s *MemoryStore) Load(ctx context.Context, id string) (domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[id]
	if !ok {
		s.log.Debug("session not found: %s", id)
		return domain.SessionState{}, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	return st, nil
}

// Delete removes a snapshot by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	delete(s.sessions, id)
	s.log.Debug("deleted session %s", id)
	return nil
}

// ListActive returns every session that has not stopped, oldest first.
func (s *MemoryStore) ListActive(ctx context.Context) ([]domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SessionState
	for _, st := range s.sessions {
		if st.Phase != domain.PhaseStopped {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
