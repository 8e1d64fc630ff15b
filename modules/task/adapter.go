package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// taskAdapter wraps ServiceContainer for type-safe cross-module communication.
type taskAdapter struct {
	container mono.ServiceContainer
}

// NewTaskAdapter creates a TaskPort over the task module's ServiceContainer.
func NewTaskAdapter(container mono.ServiceContainer) TaskPort {
	if container == nil {
		panic("task adapter requires non-nil ServiceContainer")
	}
	return &taskAdapter{container: container}
}

// call invokes a request-reply service and decodes its reply into resp.
// Transport failures surface as store errors.
func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return domain.NewStoreError(fmt.Errorf("%s service call failed: %w", service, err))
	}
	return nil
}

// CreateTask creates a task via the create-task service.
func (a *taskAdapter) CreateTask(ctx context.Context, req *CreateTaskRequest) (*domain.Task, error) {
	var resp TaskResponse
	if err := call(ctx, a.container, ServiceCreateTask, req, &resp); err != nil {
		return nil, err
	}
	return taskResult(resp)
}

// GetTask retrieves a task via the get-task service.
func (a *taskAdapter) GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	req := GetTaskRequest{UserID: userID, TaskID: taskID}
	var resp TaskResponse
	if err := call(ctx, a.container, ServiceGetTask, &req, &resp); err != nil {
		return nil, err
	}
	return taskResult(resp)
}

// ListTasks lists the caller's tasks via the list-tasks service.
func (a *taskAdapter) ListTasks(ctx context.Context, req *ListTasksRequest) ([]*domain.Task, error) {
	var resp ListTasksResponse
	if err := call(ctx, a.container, ServiceListTasks, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	if resp.Tasks == nil {
		resp.Tasks = []*domain.Task{}
	}
	return resp.Tasks, nil
}

// UpdateTask applies a partial update via the update-task service.
func (a *taskAdapter) UpdateTask(ctx context.Context, req *UpdateTaskRequest) (*domain.Task, error) {
	var resp TaskResponse
	if err := call(ctx, a.container, ServiceUpdateTask, req, &resp); err != nil {
		return nil, err
	}
	return taskResult(resp)
}

// DeleteTask deletes a task via the delete-task service.
func (a *taskAdapter) DeleteTask(ctx context.Context, userID, taskID string) (string, error) {
	req := DeleteTaskRequest{UserID: userID, TaskID: taskID}
	var resp DeleteTaskResponse
	if err := call(ctx, a.container, ServiceDeleteTask, &req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", resp.Error.Err()
	}
	return resp.TaskID, nil
}

func taskResult(resp TaskResponse) (*domain.Task, error) {
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	if resp.Task == nil {
		return nil, domain.NewStoreError(errors.New("empty task response"))
	}
	return resp.Task, nil
}
