package task

import (
	"context"
	"errors"
	"sort"
	"time"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/example/task-tracker-api/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Client-facing messages.
const (
	msgNameRequired     = "task_name is required"
	msgNotFound         = "Task not found"
	msgNoFieldsToUpdate = "No valid fields to update"
	msgForbiddenGet     = "Not authorized to access this task"
	msgForbiddenUpdate  = "Not authorized to update this task"
	msgForbiddenDelete  = "Not authorized to delete this task"
	msgAlreadyExists    = "Task already exists"
	msgConcurrentChange = "Task was modified by another request"
)

const defaultScanTimeout = 30 * time.Second

// Publisher receives task lifecycle events.
type Publisher interface {
	PublishCreated(event events.TaskCreatedEvent) error
	PublishUpdated(event events.TaskUpdatedEvent) error
	PublishDeleted(event events.TaskDeletedEvent) error
}

// ListFilter narrows a List call. Zero value lists everything the caller owns.
type ListFilter struct {
	Status string
}

// Service implements the task operations on top of a Store. Every operation
// acts on behalf of an already authenticated caller.
type Service struct {
	store     domain.Store
	publisher Publisher
	logger    types.Logger
	now       func() time.Time
	newID     func() string
	expected  map[string]struct{}
	sfGroup   singleflight.Group // Coalesces identical concurrent List calls

	scanTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator sets the task id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithScanTimeout bounds a shared List scan, which outlives the caller that
// started it.
func WithScanTimeout(d time.Duration) Option {
	return func(s *Service) { s.scanTimeout = d }
}

// WithPublisher sets where lifecycle events go.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithExpectedStatuses lists the statuses clients normally use.
// Others are still accepted.
func WithExpectedStatuses(statuses []string) Option {
	return func(s *Service) {
		s.expected = make(map[string]struct{}, len(statuses))
		for _, status := range statuses {
			s.expected[status] = struct{}{}
		}
	}
}

// NewService creates a Service backed by store.
func NewService(store domain.Store, logger types.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,

		scanTimeout: defaultScanTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new Pending task owned by callerID.
func (s *Service) Create(ctx context.Context, callerID, name, description string) (*domain.Task, error) {
	if name == "" {
		return nil, domain.NewValidationError(msgNameRequired)
	}

	t := &domain.Task{
		ID:          s.newID(),
		UserID:      callerID,
		Name:        name,
		Description: description,
		Status:      domain.StatusPending,
		CreatedAt:   domain.FormatTimestamp(s.now()),
	}

	if err := s.store.Insert(ctx, t); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.NewConflictError(msgAlreadyExists, err)
		}
		return nil, s.storeError("create", err)
	}

	s.logger.Info("Task created", "task_id", t.ID, "user_id", callerID)
	if s.publisher != nil {
		event := events.TaskCreatedEvent{
			TaskID:    t.ID,
			UserID:    t.UserID,
			TaskName:  t.Name,
			Status:    t.Status,
			CreatedAt: t.CreatedAt,
		}
		if err := s.publisher.PublishCreated(event); err != nil {
			s.logger.Warn("Failed to publish TaskCreated event", "task_id", t.ID, "error", err)
		}
	}

	return t, nil
}

// Get returns one of the caller's tasks.
func (s *Service) Get(ctx context.Context, callerID, taskID string) (*domain.Task, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !t.OwnedBy(callerID) {
		return nil, domain.NewForbiddenError(msgForbiddenGet)
	}
	return t, nil
}

// List returns the caller's tasks, newest first. Concurrent identical calls
// share one store scan, detached from any single caller's context; each
// caller still stops waiting when its own context ends, and gets its own copies.
func (s *Service) List(ctx context.Context, callerID string, filter ListFilter) ([]*domain.Task, error) {
	key := callerID + "\x00" + filter.Status
	ch := s.sfGroup.DoChan(key, func() (any, error) {
		scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.scanTimeout)
		defer cancel()
		return s.list(scanCtx, callerID, filter)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, s.storeError("list", ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}

	shared := res.Val.([]*domain.Task)
	tasks := make([]*domain.Task, len(shared))
	for i, t := range shared {
		tasks[i] = t.Clone()
	}
	return tasks, nil
}

func (s *Service) list(ctx context.Context, callerID string, filter ListFilter) ([]*domain.Task, error) {
	scanned, err := s.store.ScanByOwner(ctx, callerID)
	if err != nil {
		return nil, s.storeError("list", err)
	}

	tasks := make([]*domain.Task, 0, len(scanned))
	for _, t := range scanned {
		if !t.OwnedBy(callerID) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		tasks = append(tasks, t)
	}

	SortNewestFirst(tasks)
	return tasks, nil
}

// SortNewestFirst orders tasks by created_at descending. Tasks without a
// timestamp go last; ties are broken by id for a stable result.
func SortNewestFirst(tasks []*domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt > tasks[j].CreatedAt
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// Update applies patch to one of the caller's tasks and returns the result.
// An empty patch is rejected before the store is touched.
func (s *Service) Update(ctx context.Context, callerID, taskID string, patch domain.Patch) (*domain.Task, error) {
	if patch.IsEmpty() {
		return nil, domain.NewValidationError(msgNoFieldsToUpdate)
	}

	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !current.OwnedBy(callerID) {
		return nil, domain.NewForbiddenError(msgForbiddenUpdate)
	}

	if patch.Status != nil {
		s.noteStatus(taskID, *patch.Status)
	}

	updated, err := s.store.Update(ctx, taskID, callerID, patch)
	if err != nil {
		return nil, s.conditionalWriteError("update", taskID, err)
	}

	s.logger.Info("Task updated", "task_id", taskID, "user_id", callerID, "fields", patch.String())
	if s.publisher != nil {
		event := events.TaskUpdatedEvent{
			TaskID: updated.ID,
			UserID: updated.UserID,
			Fields: patch.Names(),
			Status: updated.Status,
		}
		if err := s.publisher.PublishUpdated(event); err != nil {
			s.logger.Warn("Failed to publish TaskUpdated event", "task_id", taskID, "error", err)
		}
	}

	return updated, nil
}

// Delete permanently removes one of the caller's tasks and returns its id.
func (s *Service) Delete(ctx context.Context, callerID, taskID string) (string, error) {
	current, err := s.load(ctx, taskID)
	if err != nil {
		return "", err
	}
	if !current.OwnedBy(callerID) {
		return "", domain.NewForbiddenError(msgForbiddenDelete)
	}

	if err := s.store.Delete(ctx, taskID, callerID); err != nil {
		return "", s.conditionalWriteError("delete", taskID, err)
	}

	s.logger.Info("Task deleted", "task_id", taskID, "user_id", callerID)
	if s.publisher != nil {
		event := events.TaskDeletedEvent{TaskID: taskID, UserID: callerID}
		if err := s.publisher.PublishDeleted(event); err != nil {
			s.logger.Warn("Failed to publish TaskDeleted event", "task_id", taskID, "error", err)
		}
	}

	return taskID, nil
}

// load reads a task, mapping absence to a NotFound error.
func (s *Service) load(ctx context.Context, taskID string) (*domain.Task, error) {
	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewNotFoundError(msgNotFound)
		}
		return nil, s.storeError("get", err)
	}
	return t, nil
}

// conditionalWriteError maps a failed owner-conditional write. The task was
// seen and owned moments before, so absence or owner mismatch means a lost race.
func (s *Service) conditionalWriteError(op, taskID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		s.logger.Warn("Conditional write lost a race", "operation", op, "task_id", taskID, "error", err)
		return domain.NewConflictError(msgConcurrentChange, err)
	}
	return s.storeError(op, err)
}

func (s *Service) storeError(op string, err error) error {
	s.logger.Error("Store operation failed", "operation", op, "error", err)
	return domain.NewStoreError(err)
}

func (s *Service) noteStatus(taskID, status string) {
	if s.expected == nil {
		return
	}
	if _, ok := s.expected[status]; !ok {
		s.logger.Debug("Status outside the expected set", "task_id", taskID, "status", status)
	}
}
