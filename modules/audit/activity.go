package audit

import (
	"sync"
	"time"
)

// Activity counts the task events seen for one owner.
type Activity struct {
	UserID      string     `json:"user_id"`
	Created     int64      `json:"created"`
	Updated     int64      `json:"updated"`
	Deleted     int64      `json:"deleted"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
}

// ActivityStore provides thread-safe per-owner activity counters.
type ActivityStore struct {
	mu     sync.RWMutex
	owners map[string]*Activity
}

// NewActivityStore creates an empty activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		owners: make(map[string]*Activity),
	}
}

func (s *ActivityStore) record(userID string, at time.Time, bump func(*Activity)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, exists := s.owners[userID]
	if !exists {
		activity = &Activity{UserID: userID}
		s.owners[userID] = activity
	}
	bump(activity)
	if activity.LastEventAt == nil || at.After(*activity.LastEventAt) {
		utc := at.UTC()
		activity.LastEventAt = &utc
	}
}

// RecordCreated counts a task creation.
func (s *ActivityStore) RecordCreated(userID string, at time.Time) {
	s.record(userID, at, func(a *Activity) { a.Created++ })
}

// RecordUpdated counts a task update.
func (s *ActivityStore) RecordUpdated(userID string, at time.Time) {
	s.record(userID, at, func(a *Activity) { a.Updated++ })
}

// RecordDeleted counts a task deletion.
func (s *ActivityStore) RecordDeleted(userID string, at time.Time) {
	s.record(userID, at, func(a *Activity) { a.Deleted++ })
}

// Get returns a copy of the owner's activity. Unknown owners have zero counts.
func (s *ActivityStore) Get(userID string) Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activity, exists := s.owners[userID]
	if !exists {
		return Activity{UserID: userID}
	}

	result := *activity
	if activity.LastEventAt != nil {
		at := *activity.LastEventAt
		result.LastEventAt = &at
	}
	return result
}
