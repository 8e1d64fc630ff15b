package task

import (
	"context"
	"errors"
	"testing"

	"github.com/example/task-tracker-api/config"
	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/example/task-tracker-api/storage"
	"github.com/go-monolith/mono"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.StoreConfig {
	return config.StoreConfig{Driver: config.DriverMemory}
}

func startedModule(t *testing.T) *TaskModule {
	t.Helper()
	m := NewModule(memoryConfig(), config.TaskConfig{ExpectedStatuses: []string{"Pending", "Completed"}}, &mockLogger{})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func TestModule_Name(t *testing.T) {
	m := NewModule(memoryConfig(), config.TaskConfig{}, &mockLogger{})
	assert.Equal(t, "task", m.Name())
}

func TestModule_EmitEvents(t *testing.T) {
	m := NewModule(memoryConfig(), config.TaskConfig{}, &mockLogger{})
	assert.Len(t, m.EmitEvents(), 3)
}

func TestModule_Health(t *testing.T) {
	m := NewModule(memoryConfig(), config.TaskConfig{}, &mockLogger{})

	status := m.Health(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "store not initialized", status.Message)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(context.Background())

	status = m.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, config.DriverMemory, status.Details["driver"])
}

func TestModule_StartFailsWhenStoreCannotOpen(t *testing.T) {
	m := NewModule(config.StoreConfig{Driver: config.DriverPostgres}, config.TaskConfig{}, &mockLogger{})
	m.open = func(context.Context, config.StoreConfig) (storage.Backend, error) {
		return nil, errors.New("connection refused")
	}

	err := m.Start(context.Background())
	assert.ErrorContains(t, err, "failed to open postgres store")
}

func TestModule_Handlers(t *testing.T) {
	m := startedModule(t)
	ctx := context.Background()

	created, err := m.createTask(ctx, CreateTaskRequest{UserID: "user-a", TaskName: "A", Description: "B"}, nil)
	require.NoError(t, err)
	require.Nil(t, created.Error)
	require.NotNil(t, created.Task)
	assert.Equal(t, domain.StatusPending, created.Task.Status)

	invalid, err := m.createTask(ctx, CreateTaskRequest{UserID: "user-a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, &ErrorInfo{Kind: "validation_error", Message: "task_name is required"}, invalid.Error)

	listed, err := m.listTasks(ctx, ListTasksRequest{UserID: "user-a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, listed.Count)

	forbidden, err := m.getTask(ctx, GetTaskRequest{UserID: "user-b", TaskID: created.Task.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, "forbidden", forbidden.Error.Kind)

	empty, err := m.updateTask(ctx, UpdateTaskRequest{UserID: "user-a", TaskID: created.Task.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, &ErrorInfo{Kind: "validation_error", Message: "No valid fields to update"}, empty.Error)

	status := "Completed"
	updated, err := m.updateTask(ctx, UpdateTaskRequest{
		UserID: "user-a",
		TaskID: created.Task.ID,
		Patch:  domain.Patch{Status: &status},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Completed", updated.Task.Status)

	deleted, err := m.deleteTask(ctx, DeleteTaskRequest{UserID: "user-a", TaskID: created.Task.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, created.Task.ID, deleted.TaskID)

	gone, err := m.deleteTask(ctx, DeleteTaskRequest{UserID: "user-a", TaskID: created.Task.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, &ErrorInfo{Kind: "not_found", Message: "Task not found"}, gone.Error)
}

func TestErrorInfo_RoundTrip(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{domain.NewValidationError("task_name is required"), domain.ErrValidation},
		{domain.NewNotFoundError("Task not found"), domain.ErrNotFound},
		{domain.NewForbiddenError("Not authorized to update this task"), domain.ErrForbidden},
		{domain.NewConflictError("raced", domain.ErrNotFound), domain.ErrConflict},
		{domain.NewStoreError(errors.New("secret dsn")), domain.ErrStore},
	}

	for _, tt := range tests {
		rebuilt := toErrorInfo(tt.err).Err()
		assert.True(t, errors.Is(rebuilt, tt.kind), "errors.Is(%v, %v)", rebuilt, tt.kind)
		assert.Equal(t, domain.MessageOf(tt.err), domain.MessageOf(rebuilt))
		assert.NotContains(t, rebuilt.Error(), "secret dsn")
	}
}

// clientModule depends on the task module and exposes its adapter.
type clientModule struct {
	port      TaskPort
	container mono.ServiceContainer
}

func (p *clientModule) Name() string                  { return "client" }
func (p *clientModule) Start(_ context.Context) error { return nil }
func (p *clientModule) Stop(_ context.Context) error  { return nil }
func (p *clientModule) Dependencies() []string        { return []string{"task"} }

func (p *clientModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "task" {
		p.port = NewTaskAdapter(container)
		p.container = container
	}
}

func TestTaskAdapter_ThroughServiceContainer(t *testing.T) {
	app, err := mono.NewMonoApplication(
		mono.WithLogLevel(mono.LogLevelError),
		mono.WithLogFormat(mono.LogFormatText),
	)
	require.NoError(t, err)

	client := &clientModule{}
	require.NoError(t, app.Register(NewModule(memoryConfig(), config.TaskConfig{}, app.Logger())))
	require.NoError(t, app.Register(client))

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	t.Cleanup(func() { _ = app.Stop(context.Background()) })
	require.NotNil(t, client.port)

	created, err := client.port.CreateTask(ctx, &CreateTaskRequest{UserID: "user-a", TaskName: "via bus"})
	require.NoError(t, err)
	assert.Equal(t, "via bus", created.Name)

	_, err = client.port.CreateTask(ctx, &CreateTaskRequest{UserID: "user-a"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	tasks, err := client.port.ListTasks(ctx, &ListTasksRequest{UserID: "user-b"})
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)

	_, err = client.port.GetTask(ctx, "user-b", created.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	name := "renamed"
	updated, err := client.port.UpdateTask(ctx, &UpdateTaskRequest{
		UserID: "user-a",
		TaskID: created.ID,
		Patch:  domain.Patch{Name: &name},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	deletedID, err := client.port.DeleteTask(ctx, "user-a", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deletedID)

	_, err = client.port.GetTask(ctx, "user-a", created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "Task not found", domain.MessageOf(err))
}

func TestCall_UnknownServiceIsStoreError(t *testing.T) {
	app, err := mono.NewMonoApplication(
		mono.WithLogLevel(mono.LogLevelError),
		mono.WithLogFormat(mono.LogFormatText),
	)
	require.NoError(t, err)

	client := &clientModule{}
	require.NoError(t, app.Register(NewModule(memoryConfig(), config.TaskConfig{}, app.Logger())))
	require.NoError(t, app.Register(client))

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	t.Cleanup(func() { _ = app.Stop(context.Background()) })
	require.NotNil(t, client.container)

	var resp TaskResponse
	err = call(ctx, client.container, "no-such-task-service", GetTaskRequest{UserID: "user-a", TaskID: "t1"}, &resp)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorContains(t, err, "no-such-task-service service call failed")

	err = call(ctx, client.container, ServiceGetTask, &GetTaskRequest{UserID: "user-a", TaskID: "t1"}, &resp)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.ErrorIs(t, resp.Error.Err(), domain.ErrNotFound)
}
