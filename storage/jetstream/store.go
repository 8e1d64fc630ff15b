// Package jetstream implements the task store on a NATS JetStream key-value bucket.
//
// Records live under "task.<id>". The owner index is one key per task under
// "owner.<base64url(owner)>.<id>", listed with a filtered watch.
package jetstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// maxCASAttempts bounds the optimistic revision loop of Update and Delete.
const maxCASAttempts = 5

// Store persists tasks in a JetStream KV bucket.
type Store struct {
	conn *nats.Conn
	kv   jetstream.KeyValue
}

var _ domain.Store = (*Store)(nil)

// Open connects to NATS and opens (or creates) the bucket.
func Open(ctx context.Context, natsURL, bucket string) (*Store, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := getOrCreateBucket(ctx, js, bucket, "Task records and owner index")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create %s bucket: %w", bucket, err)
	}

	return &Store{conn: conn, kv: kv}, nil
}

// NewStore wraps an existing bucket. Close is then a no-op.
func NewStore(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name, description string) (jetstream.KeyValue, error) {
	bucket, err := js.KeyValue(ctx, name)
	if err == nil {
		return bucket, nil
	}

	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: description,
	})
}

func taskKey(id string) string {
	return "task." + id
}

func ownerPrefix(owner string) string {
	return "owner." + base64.RawURLEncoding.EncodeToString([]byte(owner)) + "."
}

func indexKey(owner, id string) string {
	return ownerPrefix(owner) + id
}

// Put inserts or replaces a task. The new owner index key is written before
// the record; a stale key left for a previous owner is filtered out by
// ScanByOwner.
func (s *Store) Put(ctx context.Context, t *domain.Task) error {
	previous, err := s.Get(ctx, t.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := s.putIndex(ctx, t); err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, taskKey(t.ID), data); err != nil {
		return fmt.Errorf("failed to store task: %w", err)
	}

	if previous != nil && previous.UserID != t.UserID {
		s.dropIndex(ctx, previous.UserID, t.ID)
	}
	return nil
}

// Insert stores a new task unless the id is taken. The index key goes first
// so a stored record is always listable.
func (s *Store) Insert(ctx context.Context, t *domain.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := s.putIndex(ctx, t); err != nil {
		return err
	}
	if _, err := s.kv.Create(ctx, taskKey(t.ID), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("task %s already exists: %w", t.ID, domain.ErrConflict)
		}
		s.dropIndex(ctx, t.UserID, t.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *Store) putIndex(ctx context.Context, t *domain.Task) error {
	if _, err := s.kv.Put(ctx, indexKey(t.UserID, t.ID), []byte(t.ID)); err != nil {
		return fmt.Errorf("failed to index task: %w", err)
	}
	return nil
}

// dropIndex removes an owner index key. Failures leave a dangling key, which
// ScanByOwner skips.
func (s *Store) dropIndex(ctx context.Context, owner, id string) {
	_ = s.kv.Delete(ctx, indexKey(owner, id))
}

// Get retrieves a task by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	t, _, err := s.getWithRevision(ctx, id)
	return t, err
}

func (s *Store) getWithRevision(ctx context.Context, id string) (*domain.Task, uint64, error) {
	// No task can be stored under an id that is not a valid key.
	if !validID(id) {
		return nil, 0, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}

	entry, err := s.kv.Get(ctx, taskKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrInvalidKey) {
			return nil, 0, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to get task: %w", err)
	}

	var t domain.Task
	if err := json.Unmarshal(entry.Value(), &t); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &t, entry.Revision(), nil
}

// Update applies patch with a revision-checked write. A concurrent writer
// forces a re-read; the owner is checked again on every attempt.
func (s *Store) Update(ctx context.Context, id, owner string, patch domain.Patch) (*domain.Task, error) {
	var lastErr error
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		t, revision, err := s.getWithRevision(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.UserID != owner {
			return nil, fmt.Errorf("task %s owner precondition failed: %w", id, domain.ErrConflict)
		}

		patch.Apply(t)
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal task: %w", err)
		}

		_, err = s.kv.Update(ctx, taskKey(id), data, revision)
		if err == nil {
			return t, nil
		}
		if !isWrongRevision(err) {
			return nil, fmt.Errorf("failed to update task: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("task %s changed during %d update attempts: %w: %w", id, maxCASAttempts, domain.ErrConflict, lastErr)
}

// Delete removes a task with a revision-checked delete, then its index key.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	var lastErr error
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		t, revision, err := s.getWithRevision(ctx, id)
		if err != nil {
			return err
		}
		if t.UserID != owner {
			return fmt.Errorf("task %s owner precondition failed: %w", id, domain.ErrConflict)
		}

		err = s.kv.Delete(ctx, taskKey(id), jetstream.LastRevision(revision))
		if err == nil {
			s.dropIndex(ctx, owner, id)
			return nil
		}
		if !isWrongRevision(err) {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("task %s changed during %d delete attempts: %w: %w", id, maxCASAttempts, domain.ErrConflict, lastErr)
}

// ScanByOwner lists the owner's index keys and loads each record. Index keys
// whose record is gone or now belongs to someone else are skipped.
func (s *Store) ScanByOwner(ctx context.Context, owner string) ([]*domain.Task, error) {
	ids, err := s.ownerTaskIDs(ctx, owner)
	if err != nil {
		return nil, err
	}

	tasks := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if err != nil {
			// Index keys can briefly outlive their record; skip them.
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if t.UserID != owner {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *Store) ownerTaskIDs(ctx context.Context, owner string) ([]string, error) {
	prefix := ownerPrefix(owner)
	watcher, err := s.kv.Watch(ctx, prefix+"*", jetstream.IgnoreDeletes(), jetstream.MetaOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to watch owner index: %w", err)
	}
	defer watcher.Stop()

	var ids []string
	for {
		select {
		case entry := <-watcher.Updates():
			// A nil entry marks the end of the initial values.
			if entry == nil {
				return ids, nil
			}
			ids = append(ids, strings.TrimPrefix(entry.Key(), prefix))
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to list owner index: %w", ctx.Err())
		}
	}
}

// Ping checks the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.kv.Status(ctx); err != nil {
		return fmt.Errorf("failed to get bucket status: %w", err)
	}
	return nil
}

// Close closes the NATS connection when the store owns it.
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// validID reports whether id fits the KV key charset without producing an
// empty token in "task.<id>".
func validID(id string) bool {
	if id == "" || id[0] == '.' || id[len(id)-1] == '.' || strings.Contains(id, "..") {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-/_=.", r):
		default:
			return false
		}
	}
	return true
}

func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
