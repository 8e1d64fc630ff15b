package task

import (
	"context"

	"github.com/go-monolith/mono"
)

// Service errors travel inside the response so the kind survives the hop;
// the handlers themselves only fail on transport problems.

func (m *TaskModule) createTask(ctx context.Context, req CreateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.Create(ctx, req.UserID, req.TaskName, req.Description)
	if err != nil {
		return TaskResponse{Error: toErrorInfo(err)}, nil
	}
	return TaskResponse{Task: t}, nil
}

func (m *TaskModule) getTask(ctx context.Context, req GetTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.Get(ctx, req.UserID, req.TaskID)
	if err != nil {
		return TaskResponse{Error: toErrorInfo(err)}, nil
	}
	return TaskResponse{Task: t}, nil
}

func (m *TaskModule) listTasks(ctx context.Context, req ListTasksRequest, _ *mono.Msg) (ListTasksResponse, error) {
	tasks, err := m.service.List(ctx, req.UserID, ListFilter{Status: req.Status})
	if err != nil {
		return ListTasksResponse{Error: toErrorInfo(err)}, nil
	}
	return ListTasksResponse{Tasks: tasks, Count: len(tasks)}, nil
}

func (m *TaskModule) updateTask(ctx context.Context, req UpdateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.Update(ctx, req.UserID, req.TaskID, req.Patch)
	if err != nil {
		return TaskResponse{Error: toErrorInfo(err)}, nil
	}
	return TaskResponse{Task: t}, nil
}

func (m *TaskModule) deleteTask(ctx context.Context, req DeleteTaskRequest, _ *mono.Msg) (DeleteTaskResponse, error) {
	id, err := m.service.Delete(ctx, req.UserID, req.TaskID)
	if err != nil {
		return DeleteTaskResponse{Error: toErrorInfo(err)}, nil
	}
	return DeleteTaskResponse{TaskID: id}, nil
}
