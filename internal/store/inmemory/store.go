// Package inmemory provides a map-backed store.Store with the same
// first-writer-wins and insert-if-absent semantics as the Postgres store.
package inmemory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
)

// Store is an in-memory store.Store
type Store struct {
	mu          sync.RWMutex
	users       map[string]store.User
	checkpoints map[string]store.Checkpoint
	now         func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		users:       make(map[string]store.User),
		checkpoints: make(map[string]store.Checkpoint),
		now:         time.Now,
	}
}

// Ping implements store.Store
func (*Store) Ping(context.Context) error {
	return nil
}

// GetCheckpoint implements store.CheckpointStore
func (s *Store) GetCheckpoint(_ context.Context, key string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &cp, nil
}

// SetCheckpoint implements store.CheckpointStore
func (s *Store) SetCheckpoint(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[key] = store.Checkpoint{Key: key, Value: value, UpdatedAt: s.now()}
	return nil
}

// UpsertUsers implements store.UserWriter
func (s *Store) UpsertUsers(_ context.Context, users []store.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted int64
	for _, u := range users {
		if _, exists := s.users[u.UserID]; exists {
			continue
		}
		if u.IngestedAt.IsZero() {
			u.IngestedAt = s.now()
		}
		s.users[u.UserID] = u
		inserted++
	}
	return inserted, nil
}

// SelectNeedingEnrichment implements store.EnrichmentStore, ordered by user id
func (s *Store) SelectNeedingEnrichment(_ context.Context, limit, offset int) ([]store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id, u := range s.users {
		if u.IPAddress != nil && !u.Complete() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	if offset >= len(ids) {
		return []store.User{}, nil
	}
	ids = ids[offset:]
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]store.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.users[id])
	}
	return out, nil
}

// GetEnrichment implements store.EnrichmentStore
func (s *Store) GetEnrichment(_ context.Context, userID string) (store.Enrichment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return store.Enrichment{}, store.ErrNotFound
	}
	return u.Enrichment, nil
}

// UpdateEnrichment implements store.EnrichmentStore
func (s *Store) UpdateEnrichment(_ context.Context, userID string, e store.Enrichment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}

	fill := u.FillMissing(e)
	if fill.Empty() {
		return false, nil
	}
	set := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	set(&u.CountryNameOfficial, fill.CountryNameOfficial)
	set(&u.State, fill.State)
	set(&u.City, fill.City)
	set(&u.District, fill.District)
	set(&u.CountryCode, fill.CountryCode)
	s.users[userID] = u
	return true, nil
}

// User returns a stored user, for assertions
func (s *Store) User(userID string) (store.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	return u, ok
}

// Len returns the number of stored users
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.users)
}
