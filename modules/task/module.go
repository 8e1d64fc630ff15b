package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/task-tracker-api/config"
	"github.com/example/task-tracker-api/events"
	"github.com/example/task-tracker-api/storage"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Opener opens the store backend. storage.Open in production.
type Opener func(ctx context.Context, cfg config.StoreConfig) (storage.Backend, error)

// TaskModule owns the task store and serves the task operations.
type TaskModule struct {
	storeCfg config.StoreConfig
	taskCfg  config.TaskConfig
	open     Opener
	store    storage.Backend
	service  *Service
	eventBus mono.EventBus
	logger   types.Logger
}

var _ mono.Module = (*TaskModule)(nil)
var _ mono.ServiceProviderModule = (*TaskModule)(nil)
var _ mono.EventBusAwareModule = (*TaskModule)(nil)
var _ mono.EventEmitterModule = (*TaskModule)(nil)
var _ mono.HealthCheckableModule = (*TaskModule)(nil)

// NewModule creates a TaskModule for the configured backend.
func NewModule(storeCfg config.StoreConfig, taskCfg config.TaskConfig, logger types.Logger) *TaskModule {
	return &TaskModule{
		storeCfg: storeCfg,
		taskCfg:  taskCfg,
		open:     storage.Open,
		logger:   logger.WithModule("task"),
	}
}

func (m *TaskModule) Name() string {
	return "task"
}

func (m *TaskModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

func (m *TaskModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TaskCreatedV1.ToBase(),
		events.TaskUpdatedV1.ToBase(),
		events.TaskDeletedV1.ToBase(),
	}
}

func (m *TaskModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateTask, json.Unmarshal, json.Marshal, m.createTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateTask, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetTask, json.Unmarshal, json.Marshal, m.getTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetTask, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListTasks, json.Unmarshal, json.Marshal, m.listTasks,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListTasks, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUpdateTask, json.Unmarshal, json.Marshal, m.updateTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUpdateTask, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDeleteTask, json.Unmarshal, json.Marshal, m.deleteTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDeleteTask, err)
	}

	m.logger.Info("Registered task services",
		"services", []string{ServiceCreateTask, ServiceGetTask, ServiceListTasks, ServiceUpdateTask, ServiceDeleteTask})
	return nil
}

// Start opens the store and builds the service.
func (m *TaskModule) Start(ctx context.Context) error {
	store, err := m.open(ctx, m.storeCfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", m.storeCfg.Driver, err)
	}
	m.store = store

	opts := []Option{WithExpectedStatuses(m.taskCfg.ExpectedStatuses)}
	if m.taskCfg.ScanTimeout > 0 {
		opts = append(opts, WithScanTimeout(m.taskCfg.ScanTimeout))
	}
	if m.eventBus != nil {
		opts = append(opts, WithPublisher(busPublisher{bus: m.eventBus}))
	} else {
		m.logger.Warn("Event bus not set, task events will not be published")
	}
	m.service = NewService(store, m.logger, opts...)

	m.logger.Info("Task module started", "driver", m.storeCfg.Driver)
	return nil
}

// Stop closes the store.
func (m *TaskModule) Stop(_ context.Context) error {
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	m.logger.Info("Task module stopped")
	return nil
}

// Health pings the store backend.
func (m *TaskModule) Health(ctx context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "store not initialized",
		}
	}

	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store ping failed: %v", err),
			Details: map[string]any{"driver": m.storeCfg.Driver},
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"driver": m.storeCfg.Driver},
	}
}

// busPublisher publishes task events on the mono event bus.
type busPublisher struct {
	bus mono.EventBus
}

func (p busPublisher) PublishCreated(event events.TaskCreatedEvent) error {
	return events.TaskCreatedV1.Publish(p.bus, event, nil)
}

func (p busPublisher) PublishUpdated(event events.TaskUpdatedEvent) error {
	return events.TaskUpdatedV1.Publish(p.bus, event, nil)
}

func (p busPublisher) PublishDeleted(event events.TaskDeletedEvent) error {
	return events.TaskDeletedV1.Publish(p.bus, event, nil)
}
