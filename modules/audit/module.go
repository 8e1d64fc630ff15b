package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/example/task-tracker-api/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// AuditModule consumes task events, logs them and keeps per-owner counters.
type AuditModule struct {
	store  *ActivityStore
	now    func() time.Time
	logger types.Logger
}

var (
	_ mono.Module                = (*AuditModule)(nil)
	_ mono.EventConsumerModule   = (*AuditModule)(nil)
	_ mono.ServiceProviderModule = (*AuditModule)(nil)
)

// NewModule creates a new audit module.
func NewModule(logger types.Logger) *AuditModule {
	return &AuditModule{
		store:  NewActivityStore(),
		now:    time.Now,
		logger: logger.WithModule("audit"),
	}
}

func (m *AuditModule) Name() string {
	return "audit"
}

func (m *AuditModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCreatedV1, m.handleTaskCreated, m); err != nil {
		return fmt.Errorf("failed to register TaskCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskUpdatedV1, m.handleTaskUpdated, m); err != nil {
		return fmt.Errorf("failed to register TaskUpdated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskDeletedV1, m.handleTaskDeleted, m); err != nil {
		return fmt.Errorf("failed to register TaskDeleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"TaskCreated.v1", "TaskUpdated.v1", "TaskDeleted.v1"})
	return nil
}

func (m *AuditModule) handleTaskCreated(_ context.Context, event events.TaskCreatedEvent, _ *mono.Msg) error {
	at := m.now()
	if created, err := time.Parse(domain.TimestampLayout, event.CreatedAt); err == nil {
		at = created
	}
	m.store.RecordCreated(event.UserID, at)
	m.logger.Info("Task created",
		"taskID", event.TaskID,
		"userID", event.UserID,
		"status", event.Status)
	return nil
}

func (m *AuditModule) handleTaskUpdated(_ context.Context, event events.TaskUpdatedEvent, _ *mono.Msg) error {
	m.store.RecordUpdated(event.UserID, m.now())
	m.logger.Info("Task updated",
		"taskID", event.TaskID,
		"userID", event.UserID,
		"fields", event.Fields,
		"status", event.Status)
	return nil
}

func (m *AuditModule) handleTaskDeleted(_ context.Context, event events.TaskDeletedEvent, _ *mono.Msg) error {
	m.store.RecordDeleted(event.UserID, m.now())
	m.logger.Info("Task deleted",
		"taskID", event.TaskID,
		"userID", event.UserID)
	return nil
}

func (m *AuditModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetTaskActivity, json.Unmarshal, json.Marshal, m.getTaskActivity,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetTaskActivity, err)
	}

	m.logger.Info("Registered audit services", "services", []string{ServiceGetTaskActivity})
	return nil
}

func (m *AuditModule) getTaskActivity(_ context.Context, req GetTaskActivityRequest, _ *mono.Msg) (Activity, error) {
	if req.UserID == "" {
		return Activity{}, errors.New("user_id is required")
	}
	return m.store.Get(req.UserID), nil
}

// Store returns the activity store.
func (m *AuditModule) Store() *ActivityStore {
	return m.store
}

func (m *AuditModule) Start(_ context.Context) error {
	m.logger.Info("Audit module started")
	return nil
}

func (m *AuditModule) Stop(_ context.Context) error {
	m.logger.Info("Audit module stopped")
	return nil
}
