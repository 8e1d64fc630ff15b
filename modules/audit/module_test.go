package audit

import (
	"context"
	"testing"
	"time"

	"github.com/example/task-tracker-api/config"
	"github.com/example/task-tracker-api/events"
	"github.com/example/task-tracker-api/modules/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

func TestModule_Name(t *testing.T) {
	assert.Equal(t, "audit", NewModule(&mockLogger{}).Name())
}

func TestModule_EventHandlers(t *testing.T) {
	m := NewModule(&mockLogger{})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, m.handleTaskCreated(ctx, events.TaskCreatedEvent{
		TaskID:    "t1",
		UserID:    "user-a",
		CreatedAt: "2026-03-01T11:00:00.000000Z",
	}, nil))
	require.NoError(t, m.handleTaskUpdated(ctx, events.TaskUpdatedEvent{TaskID: "t1", UserID: "user-a"}, nil))
	require.NoError(t, m.handleTaskDeleted(ctx, events.TaskDeletedEvent{TaskID: "t1", UserID: "user-a"}, nil))

	activity, err := m.getTaskActivity(ctx, GetTaskActivityRequest{UserID: "user-a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), activity.Created)
	assert.Equal(t, int64(1), activity.Updated)
	assert.Equal(t, int64(1), activity.Deleted)
	require.NotNil(t, activity.LastEventAt)
	assert.True(t, fixed.Equal(*activity.LastEventAt))
}

func TestModule_CreatedEventWithBadTimestamp(t *testing.T) {
	m := NewModule(&mockLogger{})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	require.NoError(t, m.handleTaskCreated(context.Background(), events.TaskCreatedEvent{
		TaskID:    "t1",
		UserID:    "user-a",
		CreatedAt: "yesterday",
	}, nil))

	activity := m.Store().Get("user-a")
	assert.Equal(t, int64(1), activity.Created)
	assert.True(t, fixed.Equal(*activity.LastEventAt))
}

func TestModule_CreatedEventUsesTaskTimestampLayout(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		createdAt string
		want      time.Time
	}{
		{"task layout", "2026-03-01T11:00:00.250000Z", time.Date(2026, 3, 1, 11, 0, 0, 250000000, time.UTC)},
		{"offset instead of Z", "2026-03-01T11:00:00+02:00", fixed},
		{"no fraction", "2026-03-01T11:00:00Z", fixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModule(&mockLogger{})
			m.now = func() time.Time { return fixed }

			require.NoError(t, m.handleTaskCreated(context.Background(), events.TaskCreatedEvent{
				TaskID:    "t1",
				UserID:    "user-a",
				CreatedAt: tt.createdAt,
			}, nil))

			activity := m.Store().Get("user-a")
			require.NotNil(t, activity.LastEventAt)
			assert.True(t, tt.want.Equal(*activity.LastEventAt), "got %v", *activity.LastEventAt)
		})
	}
}

func TestModule_GetTaskActivityRequiresUser(t *testing.T) {
	m := NewModule(&mockLogger{})
	_, err := m.getTaskActivity(context.Background(), GetTaskActivityRequest{}, nil)
	assert.ErrorContains(t, err, "user_id is required")
}

// clientModule depends on the task and audit modules and exposes their adapters.
type clientModule struct {
	tasks    task.TaskPort
	activity ActivityPort
}

func (p *clientModule) Name() string                  { return "client" }
func (p *clientModule) Start(_ context.Context) error { return nil }
func (p *clientModule) Stop(_ context.Context) error  { return nil }
func (p *clientModule) Dependencies() []string        { return []string{"task", "audit"} }

func (p *clientModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "task":
		p.tasks = task.NewTaskAdapter(container)
	case "audit":
		p.activity = NewActivityAdapter(container)
	}
}

func TestAuditModule_ConsumesTaskEvents(t *testing.T) {
	app, err := mono.NewMonoApplication(
		mono.WithLogLevel(mono.LogLevelError),
		mono.WithLogFormat(mono.LogFormatText),
	)
	require.NoError(t, err)

	client := &clientModule{}
	taskModule := task.NewModule(config.StoreConfig{Driver: config.DriverMemory}, config.TaskConfig{}, app.Logger())
	require.NoError(t, app.Register(taskModule))
	require.NoError(t, app.Register(NewModule(app.Logger())))
	require.NoError(t, app.Register(client))

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	t.Cleanup(func() { _ = app.Stop(context.Background()) })

	created, err := client.tasks.CreateTask(ctx, &task.CreateTaskRequest{UserID: "user-a", TaskName: "audited"})
	require.NoError(t, err)
	_, err = client.tasks.DeleteTask(ctx, "user-a", created.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		activity, err := client.activity.GetTaskActivity(ctx, "user-a")
		return err == nil && activity.Created == 1 && activity.Deleted == 1
	}, 5*time.Second, 50*time.Millisecond)

	other, err := client.activity.GetTaskActivity(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.Created)
}
