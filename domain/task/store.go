package task

import "context"

// Store is the durable key-value storage for tasks.
//
// Store performs no authorization of its own. Update and Delete are conditional
// on the task existing and being owned by owner: they return ErrNotFound when the
// id is absent and ErrConflict when the owner precondition fails, atomically.
type Store interface {
	// Put inserts or replaces the task unconditionally.
	Put(ctx context.Context, t *Task) error
	// Insert stores a new task and fails with ErrConflict if the id exists.
	Insert(ctx context.Context, t *Task) error
	// Get returns the task or ErrNotFound.
	Get(ctx context.Context, id string) (*Task, error)
	// Update applies patch and returns the post-update record.
	Update(ctx context.Context, id, owner string, patch Patch) (*Task, error)
	// Delete removes the task permanently.
	Delete(ctx context.Context, id, owner string) error
	// ScanByOwner returns every task owned by owner, in no particular order.
	ScanByOwner(ctx context.Context, owner string) ([]*Task, error)
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
