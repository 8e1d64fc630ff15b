// Package memory provides an in-process task store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/example/task-tracker-api/domain/task"
)

// Store keeps tasks in a map guarded by a RWMutex, with a per-owner index.
type Store struct {
	tasks   map[string]*domain.Task
	byOwner map[string]map[string]struct{}
	mu      sync.RWMutex
}

var _ domain.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tasks:   make(map[string]*domain.Task),
		byOwner: make(map[string]map[string]struct{}),
	}
}

// Put inserts or replaces a task.
func (s *Store) Put(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, found := s.tasks[t.ID]; found {
		s.unindex(old)
	}
	s.save(t)
	return nil
}

// Insert stores a new task unless the id is taken.
func (s *Store) Insert(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.tasks[t.ID]; found {
		return fmt.Errorf("task %s already exists: %w", t.ID, domain.ErrConflict)
	}
	s.save(t)
	return nil
}

// Get finds a task by ID.
func (s *Store) Get(_ context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, found := s.tasks[id]
	if !found {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

// Update applies patch if the task exists and belongs to owner.
func (s *Store) Update(_ context.Context, id, owner string, patch domain.Patch) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookupOwned(id, owner)
	if err != nil {
		return nil, err
	}
	patch.Apply(t)
	return t.Clone(), nil
}

// Delete removes the task if it exists and belongs to owner.
func (s *Store) Delete(_ context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookupOwned(id, owner)
	if err != nil {
		return err
	}
	s.unindex(t)
	delete(s.tasks, id)
	return nil
}

// ScanByOwner returns all tasks of one owner.
func (s *Store) ScanByOwner(_ context.Context, owner string) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[owner]
	result := make([]*domain.Task, 0, len(ids))
	for id := range ids {
		result = append(result, s.tasks[id].Clone())
	}
	return result, nil
}

// Len returns the number of stored tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op; the data lives as long as the process.
func (s *Store) Close() error {
	return nil
}

// lookupOwned must be called with the write lock held.
func (s *Store) lookupOwned(id, owner string) (*domain.Task, error) {
	t, found := s.tasks[id]
	if !found {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if t.UserID != owner {
		return nil, fmt.Errorf("task %s owner precondition failed: %w", id, domain.ErrConflict)
	}
	return t, nil
}

func (s *Store) save(t *domain.Task) {
	s.tasks[t.ID] = t.Clone()
	ids, ok := s.byOwner[t.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byOwner[t.UserID] = ids
	}
	ids[t.ID] = struct{}{}
}

func (s *Store) unindex(t *domain.Task) {
	ids := s.byOwner[t.UserID]
	delete(ids, t.ID)
	if len(ids) == 0 {
		delete(s.byOwner, t.UserID)
	}
}
