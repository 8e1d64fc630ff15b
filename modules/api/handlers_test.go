package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/task-tracker-api/config"
	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/example/task-tracker-api/modules/audit"
	"github.com/example/task-tracker-api/modules/identity"
	"github.com/example/task-tracker-api/modules/task"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTaskPort implements task.TaskPort for testing
type mockTaskPort struct {
	createFunc func(ctx context.Context, req *task.CreateTaskRequest) (*domain.Task, error)
	getFunc    func(ctx context.Context, userID, taskID string) (*domain.Task, error)
	listFunc   func(ctx context.Context, req *task.ListTasksRequest) ([]*domain.Task, error)
	updateFunc func(ctx context.Context, req *task.UpdateTaskRequest) (*domain.Task, error)
	deleteFunc func(ctx context.Context, userID, taskID string) (string, error)
}

func (m *mockTaskPort) CreateTask(ctx context.Context, req *task.CreateTaskRequest) (*domain.Task, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTaskPort) GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, userID, taskID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTaskPort) ListTasks(ctx context.Context, req *task.ListTasksRequest) ([]*domain.Task, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTaskPort) UpdateTask(ctx context.Context, req *task.UpdateTaskRequest) (*domain.Task, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTaskPort) DeleteTask(ctx context.Context, userID, taskID string) (string, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, userID, taskID)
	}
	return "", errors.New("not implemented")
}

// mockActivityPort implements audit.ActivityPort for testing
type mockActivityPort struct {
	getFunc func(ctx context.Context, userID string) (*audit.Activity, error)
}

func (m *mockActivityPort) GetTaskActivity(ctx context.Context, userID string) (*audit.Activity, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

// tokenIdentity accepts "token-a" and "token-b".
func tokenIdentity() *mockIdentityPort {
	return &mockIdentityPort{
		validateTokenFunc: func(_ context.Context, token string) (string, error) {
			switch token {
			case "token-a":
				return "user-a", nil
			case "token-b":
				return "user-b", nil
			}
			return "", fmt.Errorf("token validation failed: %w", identity.ErrInvalidToken)
		},
	}
}

func newTestModule(tasks *mockTaskPort, activity *mockActivityPort, rateLimit config.RateLimitConfig) *APIModule {
	m := NewModule("127.0.0.1:0", rateLimit, &mockLogger{})
	m.identity = tokenIdentity()
	m.tasks = tasks
	m.activity = activity
	return m
}

func newTestApp(t *testing.T, tasks *mockTaskPort) *fiber.App {
	t.Helper()
	app, err := newTestModule(tasks, &mockActivityPort{}, config.RateLimitConfig{}).newApp()
	require.NoError(t, err)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func sampleTask(id, owner string) *domain.Task {
	return &domain.Task{
		ID:          id,
		UserID:      owner,
		Name:        "Buy milk",
		Description: "2L",
		Status:      domain.StatusPending,
		CreatedAt:   "2026-03-01T12:00:00.000000Z",
	}
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp(t, &mockTaskPort{})

	resp, body := doRequest(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"status":"healthy","module":"api"}`, string(body))
}

func TestCORS_EveryResponse(t *testing.T) {
	app := newTestApp(t, &mockTaskPort{})

	t.Run("unauthorized", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodGet, "/api/v1/tasks", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.JSONEq(t, `{"message":"Unauthorized"}`, string(body))
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, _ := doRequest(t, app, http.MethodGet, "/nope", "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks/t1", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPut)
	})
}

func TestCreateTask(t *testing.T) {
	var got *task.CreateTaskRequest
	app := newTestApp(t, &mockTaskPort{
		createFunc: func(_ context.Context, req *task.CreateTaskRequest) (*domain.Task, error) {
			got = req
			if req.TaskName == "" {
				return nil, domain.NewValidationError("task_name is required")
			}
			return sampleTask("t1", req.UserID), nil
		},
	})

	t.Run("created", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPost, "/api/v1/tasks", "token-a",
			`{"task_name":"Buy milk","description":"2L"}`)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		require.NotNil(t, got)
		assert.Equal(t, task.CreateTaskRequest{UserID: "user-a", TaskName: "Buy milk", Description: "2L"}, *got)

		var envelope TaskEnvelope
		require.NoError(t, json.Unmarshal(body, &envelope))
		assert.Equal(t, "Task created successfully", envelope.Message)
		assert.Equal(t, sampleTask("t1", "user-a"), envelope.Task)
	})

	t.Run("missing task_name", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPost, "/api/v1/tasks", "token-a", `{"description":"x"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"message":"task_name is required"}`, string(body))
	})

	t.Run("empty body", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPost, "/api/v1/tasks", "token-a", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"message":"task_name is required"}`, string(body))
	})

	t.Run("malformed body", func(t *testing.T) {
		got = nil
		resp, body := doRequest(t, app, http.MethodPost, "/api/v1/tasks", "token-a", `{"task_name":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"message":"Invalid request body"}`, string(body))
		assert.Nil(t, got)
	})
}

func TestListTasks(t *testing.T) {
	var got *task.ListTasksRequest
	tasks := []*domain.Task{sampleTask("t2", "user-a"), sampleTask("t1", "user-a")}
	app := newTestApp(t, &mockTaskPort{
		listFunc: func(_ context.Context, req *task.ListTasksRequest) ([]*domain.Task, error) {
			got = req
			if req.UserID == "user-b" {
				return nil, nil
			}
			return tasks, nil
		},
	})

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/tasks?status=Completed", "token-a", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, &task.ListTasksRequest{UserID: "user-a", Status: "Completed"}, got)

	var list TaskListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, tasks, list.Tasks)

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/tasks", "token-b", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"tasks":[],"count":0}`, string(body))
}

func TestGetTask_ErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{"validation", domain.NewValidationError("bad id"), http.StatusBadRequest, `{"message":"bad id"}`},
		{"not found", domain.NewNotFoundError("Task not found"), http.StatusNotFound, `{"message":"Task not found"}`},
		{"forbidden", domain.NewForbiddenError("Not authorized to access this task"), http.StatusForbidden, `{"message":"Not authorized to access this task"}`},
		{"conflict", domain.NewConflictError("Task was modified by another request", domain.ErrNotFound), http.StatusConflict, `{"message":"Task was modified by another request"}`},
		{"store", domain.NewStoreError(errors.New("dial tcp db.internal:5432: refused")), http.StatusInternalServerError, `{"message":"Internal server error"}`},
		{"unclassified", errors.New("get-task service call failed: timeout"), http.StatusInternalServerError, `{"message":"Internal server error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, &mockTaskPort{
				getFunc: func(context.Context, string, string) (*domain.Task, error) {
					return nil, tt.err
				},
			})

			resp, body := doRequest(t, app, http.MethodGet, "/api/v1/tasks/t1", "token-a", "")
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
			assert.JSONEq(t, tt.expectedBody, string(body))
		})
	}
}

func TestGetTask(t *testing.T) {
	app := newTestApp(t, &mockTaskPort{
		getFunc: func(_ context.Context, userID, taskID string) (*domain.Task, error) {
			return sampleTask(taskID, userID), nil
		},
	})

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/tasks/t9", "token-a", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope TaskEnvelope
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Empty(t, envelope.Message)
	assert.Equal(t, sampleTask("t9", "user-a"), envelope.Task)
}

func TestUpdateTask(t *testing.T) {
	var got *task.UpdateTaskRequest
	app := newTestApp(t, &mockTaskPort{
		updateFunc: func(_ context.Context, req *task.UpdateTaskRequest) (*domain.Task, error) {
			got = req
			if req.Patch.IsEmpty() {
				return nil, domain.NewValidationError("No valid fields to update")
			}
			updated := sampleTask(req.TaskID, req.UserID)
			req.Patch.Apply(updated)
			return updated, nil
		},
	})

	t.Run("partial", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPut, "/api/v1/tasks/t1", "token-a", `{"status":"Completed"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotNil(t, got)
		assert.Equal(t, "t1", got.TaskID)
		assert.Equal(t, "user-a", got.UserID)
		assert.Nil(t, got.Patch.Name)
		assert.Nil(t, got.Patch.Description)
		require.NotNil(t, got.Patch.Status)
		assert.Equal(t, "Completed", *got.Patch.Status)

		var envelope TaskEnvelope
		require.NoError(t, json.Unmarshal(body, &envelope))
		assert.Equal(t, "Task updated successfully", envelope.Message)
		assert.Equal(t, "Completed", envelope.Task.Status)
		assert.Equal(t, "Buy milk", envelope.Task.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPut, "/api/v1/tasks/t1", "token-a", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"message":"No valid fields to update"}`, string(body))
	})

	t.Run("null and unknown fields are absent", func(t *testing.T) {
		resp, _ := doRequest(t, app, http.MethodPut, "/api/v1/tasks/t1", "token-a", `{"task_name":null,"user_id":"user-b"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.True(t, got.Patch.IsEmpty())
		assert.Equal(t, "user-a", got.UserID)
	})

	t.Run("wrong field type", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPut, "/api/v1/tasks/t1", "token-a", `{"status":5}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"message":"Invalid request body"}`, string(body))
	})
}

func TestDeleteTask(t *testing.T) {
	app := newTestApp(t, &mockTaskPort{
		deleteFunc: func(_ context.Context, userID, taskID string) (string, error) {
			if userID != "user-a" {
				return "", domain.NewForbiddenError("Not authorized to delete this task")
			}
			return taskID, nil
		},
	})

	resp, body := doRequest(t, app, http.MethodDelete, "/api/v1/tasks/t1", "token-a", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Task deleted successfully","task_id":"t1"}`, string(body))

	resp, body = doRequest(t, app, http.MethodDelete, "/api/v1/tasks/t1", "token-b", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Not authorized to delete this task"}`, string(body))
}

func TestGetActivity(t *testing.T) {
	m := newTestModule(&mockTaskPort{}, &mockActivityPort{
		getFunc: func(_ context.Context, userID string) (*audit.Activity, error) {
			if userID == "user-b" {
				return nil, errors.New("get-task-activity service call failed")
			}
			return &audit.Activity{UserID: userID, Created: 3, Deleted: 1}, nil
		},
	}, config.RateLimitConfig{})
	app, err := m.newApp()
	require.NoError(t, err)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/activity", "token-a", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"user_id":"user-a","created":3,"updated":0,"deleted":1}`, string(body))

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/activity", "token-b", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Internal server error"}`, string(body))
}

func TestPanicIsRecovered(t *testing.T) {
	app := newTestApp(t, &mockTaskPort{
		listFunc: func(context.Context, *task.ListTasksRequest) ([]*domain.Task, error) {
			panic("boom")
		},
	})

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/tasks", "token-a", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"message":"Internal server error"}`, string(body))
}

func TestRateLimit_PerCaller(t *testing.T) {
	m := newTestModule(&mockTaskPort{
		listFunc: func(context.Context, *task.ListTasksRequest) ([]*domain.Task, error) {
			return []*domain.Task{}, nil
		},
	}, &mockActivityPort{}, config.RateLimitConfig{Enabled: true, Max: 2, Window: time.Minute})
	app, err := m.newApp()
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/tasks", "token-a", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/tasks", "token-a", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"message":"Too many requests"}`, string(body))

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/tasks", "token-b", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewLimiterStorage_Unreachable(t *testing.T) {
	storage, err := newLimiterStorage("redis://127.0.0.1:1/0")
	assert.Nil(t, storage)
	assert.ErrorContains(t, err, "failed to connect rate limit storage")
}

func TestModule_RequiresDependencies(t *testing.T) {
	m := NewModule("127.0.0.1:0", config.RateLimitConfig{}, &mockLogger{})
	assert.Error(t, m.Start(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}

func TestModule_StartStop(t *testing.T) {
	m := newTestModule(&mockTaskPort{}, &mockActivityPort{}, config.RateLimitConfig{})

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Health(context.Background()).Healthy)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
}

func TestModule_StartFailsWhenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	m := newTestModule(&mockTaskPort{}, &mockActivityPort{}, config.RateLimitConfig{})
	m.addr = ln.Addr().String()

	err = m.Start(context.Background())
	assert.ErrorContains(t, err, "HTTP server failed to start")
	assert.False(t, m.Health(context.Background()).Healthy)
}
