// Package redis implements the task store on Redis hashes with Lua scripts
// for the conditional writes.
package redis

import (
	"context"
	"fmt"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/redis/go-redis/v9"
)

// Script replies for failed preconditions.
const (
	replyMissing  = -1
	replyNotOwner = -2
)

// insertScript creates the task hash only if it does not exist.
// KEYS: task, owner index. ARGV: task fields in column order.
var insertScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1],
		'task_id', ARGV[1], 'user_id', ARGV[2], 'task_name', ARGV[3],
		'description', ARGV[4], 'status', ARGV[5], 'created_at', ARGV[6])
	redis.call('SADD', KEYS[2], ARGV[1])
	return 1
`)

// putScript replaces the task hash and moves it between owner indexes.
// KEYS: task, owner index. ARGV: task fields, owner index prefix.
var putScript = redis.NewScript(`
	local previous = redis.call('HGET', KEYS[1], 'user_id')
	if previous and previous ~= ARGV[2] then
		redis.call('SREM', ARGV[7] .. previous, ARGV[1])
	end
	redis.call('DEL', KEYS[1])
	redis.call('HSET', KEYS[1],
		'task_id', ARGV[1], 'user_id', ARGV[2], 'task_name', ARGV[3],
		'description', ARGV[4], 'status', ARGV[5], 'created_at', ARGV[6])
	redis.call('SADD', KEYS[2], ARGV[1])
	return 1
`)

// updateScript sets the given fields if the owner matches.
// KEYS: task. ARGV: owner, then field/value pairs.
var updateScript = redis.NewScript(`
	local owner = redis.call('HGET', KEYS[1], 'user_id')
	if not owner then
		return -1
	end
	if owner ~= ARGV[1] then
		return -2
	end
	for i = 2, #ARGV, 2 do
		redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
	end
	return redis.call('HGETALL', KEYS[1])
`)

// deleteScript removes the task if the owner matches.
// KEYS: task, owner index. ARGV: owner, task id.
var deleteScript = redis.NewScript(`
	local owner = redis.call('HGET', KEYS[1], 'user_id')
	if not owner then
		return -1
	end
	if owner ~= ARGV[1] then
		return -2
	end
	redis.call('DEL', KEYS[1])
	redis.call('SREM', KEYS[2], ARGV[2])
	return 1
`)

// Store persists tasks as Redis hashes with one set per owner as the index.
type Store struct {
	client *redis.Client
	prefix string
}

var _ domain.Store = (*Store)(nil)

// Open connects to the Redis server at url ("redis://host:port/db").
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return NewStore(client, prefix), nil
}

// NewStore wraps an existing client. All keys start with prefix.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) taskKey(id string) string {
	return s.prefix + "task:" + id
}

func (s *Store) ownerPrefix() string {
	return s.prefix + "owner:"
}

func (s *Store) ownerKey(owner string) string {
	return s.ownerPrefix() + owner
}

// Put inserts or replaces a task.
func (s *Store) Put(ctx context.Context, t *domain.Task) error {
	err := putScript.Run(ctx, s.client,
		[]string{s.taskKey(t.ID), s.ownerKey(t.UserID)},
		t.ID, t.UserID, t.Name, t.Description, t.Status, t.CreatedAt, s.ownerPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to put task: %w", err)
	}
	return nil
}

// Insert stores a new task unless the id is taken.
func (s *Store) Insert(ctx context.Context, t *domain.Task) error {
	created, err := insertScript.Run(ctx, s.client,
		[]string{s.taskKey(t.ID), s.ownerKey(t.UserID)},
		t.ID, t.UserID, t.Name, t.Description, t.Status, t.CreatedAt,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("task %s already exists: %w", t.ID, domain.ErrConflict)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	fields, err := s.client.HGetAll(ctx, s.taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return fromHash(fields), nil
}

// Update applies patch atomically, conditional on id and owner.
func (s *Store) Update(ctx context.Context, id, owner string, patch domain.Patch) (*domain.Task, error) {
	args := []any{owner}
	for column, value := range patch.Fields() {
		args = append(args, column, value)
	}

	reply, err := updateScript.Run(ctx, s.client, []string{s.taskKey(id)}, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	switch v := reply.(type) {
	case int64:
		return nil, preconditionError(id, v)
	case []any:
		fields, err := pairsToHash(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode updated task: %w", err)
		}
		return fromHash(fields), nil
	default:
		return nil, fmt.Errorf("unexpected reply type for update: %T", reply)
	}
}

// Delete removes a task atomically, conditional on id and owner.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	reply, err := deleteScript.Run(ctx, s.client,
		[]string{s.taskKey(id), s.ownerKey(owner)},
		owner, id,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if reply < 0 {
		return preconditionError(id, reply)
	}
	return nil
}

// ScanByOwner reads the owner's index set and fetches the hashes in one pipeline.
func (s *Store) ScanByOwner(ctx context.Context, owner string) ([]*domain.Task, error) {
	ids, err := s.client.SMembers(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read owner index: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Task{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.taskKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		// Index entries can briefly outlive their hash; skip them.
		if len(fields) == 0 {
			continue
		}
		tasks = append(tasks, fromHash(fields))
	}
	return tasks, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func preconditionError(id string, reply int64) error {
	switch reply {
	case replyMissing:
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	case replyNotOwner:
		return fmt.Errorf("task %s owner precondition failed: %w", id, domain.ErrConflict)
	default:
		return fmt.Errorf("unexpected script reply %d for task %s", reply, id)
	}
}

func pairsToHash(pairs []any) (map[string]string, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("odd number of hash elements: %d", len(pairs))
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected type for field name: %T", pairs[i])
		}
		value, ok := pairs[i+1].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected type for field %s: %T", key, pairs[i+1])
		}
		fields[key] = value
	}
	return fields, nil
}

func fromHash(fields map[string]string) *domain.Task {
	return &domain.Task{
		ID:          fields["task_id"],
		UserID:      fields["user_id"],
		Name:        fields["task_name"],
		Description: fields["description"],
		Status:      fields["status"],
		CreatedAt:   fields["created_at"],
	}
}
