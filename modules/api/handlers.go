package api

import (
	"bytes"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/example/task-tracker-api/modules/audit"
	"github.com/example/task-tracker-api/modules/task"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// Handlers contains HTTP handlers for the task API.
type Handlers struct {
	tasks    task.TaskPort
	activity audit.ActivityPort
	logger   types.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(tasks task.TaskPort, activity audit.ActivityPort, logger types.Logger) *Handlers {
	return &Handlers{
		tasks:    tasks,
		activity: activity,
		logger:   logger,
	}
}

// HealthCheck reports that the HTTP server is up.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"module": "api",
	})
}

// CreateTask handles POST /api/v1/tasks.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var body CreateTaskBody
	if err := decodeBody(c, &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(MessageResponse{Message: msgInvalidBody})
	}

	t, err := h.tasks.CreateTask(c.UserContext(), &task.CreateTaskRequest{
		UserID:      callerID(c),
		TaskName:    body.TaskName,
		Description: body.Description,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TaskEnvelope{
		Message: msgTaskCreated,
		Task:    t,
	})
}

// ListTasks handles GET /api/v1/tasks with an optional status filter.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	tasks, err := h.tasks.ListTasks(c.UserContext(), &task.ListTasksRequest{
		UserID: callerID(c),
		Status: c.Query("status"),
	})
	if err != nil {
		return h.respondError(c, err)
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}

	return c.JSON(TaskListResponse{
		Tasks: tasks,
		Count: len(tasks),
	})
}

// GetTask handles GET /api/v1/tasks/:id.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	t, err := h.tasks.GetTask(c.UserContext(), callerID(c), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(TaskEnvelope{Task: t})
}

// UpdateTask handles PUT /api/v1/tasks/:id. Fields absent from the body
// (or null) are left untouched.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	var patch domain.Patch
	if err := decodeBody(c, &patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(MessageResponse{Message: msgInvalidBody})
	}

	t, err := h.tasks.UpdateTask(c.UserContext(), &task.UpdateTaskRequest{
		UserID: callerID(c),
		TaskID: c.Params("id"),
		Patch:  patch,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(TaskEnvelope{
		Message: msgTaskUpdated,
		Task:    t,
	})
}

// DeleteTask handles DELETE /api/v1/tasks/:id.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	id, err := h.tasks.DeleteTask(c.UserContext(), callerID(c), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(DeleteTaskResponse{
		Message: msgTaskDeleted,
		TaskID:  id,
	})
}

// GetActivity handles GET /api/v1/activity.
func (h *Handlers) GetActivity(c *fiber.Ctx) error {
	activity, err := h.activity.GetTaskActivity(c.UserContext(), callerID(c))
	if err != nil {
		h.logger.Error("Activity lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(MessageResponse{Message: msgInternalError})
	}
	return c.JSON(activity)
}

// decodeBody decodes a JSON body regardless of Content-Type. An empty body
// decodes to the zero value.
func decodeBody(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return c.App().Config().JSONDecoder(body, v)
}
