package task

import (
	"context"

	domain "github.com/example/task-tracker-api/domain/task"
)

// Service names.
const (
	ServiceCreateTask = "create-task"
	ServiceGetTask    = "get-task"
	ServiceListTasks  = "list-tasks"
	ServiceUpdateTask = "update-task"
	ServiceDeleteTask = "delete-task"
)

// ErrorInfo carries a typed task error across the service boundary.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CreateTaskRequest is the request for creating a task.
type CreateTaskRequest struct {
	UserID      string `json:"user_id"`
	TaskName    string `json:"task_name"`
	Description string `json:"description"`
}

// GetTaskRequest is the request for getting a task.
type GetTaskRequest struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
}

// ListTasksRequest is the request for listing the caller's tasks.
type ListTasksRequest struct {
	UserID string `json:"user_id"`
	Status string `json:"status,omitempty"`
}

// UpdateTaskRequest is the request for a partial update.
type UpdateTaskRequest struct {
	UserID string       `json:"user_id"`
	TaskID string       `json:"task_id"`
	Patch  domain.Patch `json:"patch"`
}

// DeleteTaskRequest is the request for deleting a task.
type DeleteTaskRequest struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
}

// TaskResponse is the response for a single task.
type TaskResponse struct {
	Task  *domain.Task `json:"task,omitempty"`
	Error *ErrorInfo   `json:"error,omitempty"`
}

// ListTasksResponse is the response for listing tasks.
type ListTasksResponse struct {
	Tasks []*domain.Task `json:"tasks"`
	Count int            `json:"count"`
	Error *ErrorInfo     `json:"error,omitempty"`
}

// DeleteTaskResponse is the response for deleting a task.
type DeleteTaskResponse struct {
	TaskID string     `json:"task_id,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// TaskPort defines the task operations other modules use.
// Errors are *domain.Error values, so errors.Is works against the domain kinds.
type TaskPort interface {
	CreateTask(ctx context.Context, req *CreateTaskRequest) (*domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error)
	ListTasks(ctx context.Context, req *ListTasksRequest) ([]*domain.Task, error)
	UpdateTask(ctx context.Context, req *UpdateTaskRequest) (*domain.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) (string, error)
}

// toErrorInfo converts a service error for transport.
func toErrorInfo(err error) *ErrorInfo {
	return &ErrorInfo{
		Kind:    domain.KindName(domain.KindOf(err)),
		Message: domain.MessageOf(err),
	}
}

// Err rebuilds the typed error.
func (e *ErrorInfo) Err() error {
	return &domain.Error{Kind: domain.KindFromName(e.Kind), Message: e.Message}
}
