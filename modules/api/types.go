package api

import (
	domain "github.com/example/task-tracker-api/domain/task"
)

// Response messages.
const (
	msgUnauthorized    = "Unauthorized"
	msgInvalidBody     = "Invalid request body"
	msgTooManyRequests = "Too many requests"
	msgInternalError   = "Internal server error"
	msgTaskCreated     = "Task created successfully"
	msgTaskUpdated     = "Task updated successfully"
	msgTaskDeleted     = "Task deleted successfully"
)

// CreateTaskBody is the body of POST /api/v1/tasks.
type CreateTaskBody struct {
	TaskName    string `json:"task_name"`
	Description string `json:"description"`
}

// MessageResponse carries a message only. Every error body has this shape.
type MessageResponse struct {
	Message string `json:"message"`
}

// TaskEnvelope wraps a single task.
type TaskEnvelope struct {
	Message string       `json:"message,omitempty"`
	Task    *domain.Task `json:"task"`
}

// TaskListResponse is the body of GET /api/v1/tasks.
type TaskListResponse struct {
	Tasks []*domain.Task `json:"tasks"`
	Count int            `json:"count"`
}

// DeleteTaskResponse is the body of DELETE /api/v1/tasks/:id.
type DeleteTaskResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}
