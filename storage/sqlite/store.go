// Package sqlite implements the task store on SQLite through GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/task-tracker-api/domain/task"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// taskRecord is the GORM model for the tasks table.
type taskRecord struct {
	TaskID      string `gorm:"column:task_id;primaryKey"`
	UserID      string `gorm:"column:user_id;not null;index:idx_tasks_user_id"`
	TaskName    string `gorm:"column:task_name;not null"`
	Description string `gorm:"column:description"`
	Status      string `gorm:"column:status"`
	Created     string `gorm:"column:created_at"`
}

func (taskRecord) TableName() string { return "tasks" }

func toRecord(t *domain.Task) taskRecord {
	return taskRecord{
		TaskID:      t.ID,
		UserID:      t.UserID,
		TaskName:    t.Name,
		Description: t.Description,
		Status:      t.Status,
		Created:     t.CreatedAt,
	}
}

func (r taskRecord) toDomain() *domain.Task {
	return &domain.Task{
		ID:          r.TaskID,
		UserID:      r.UserID,
		Name:        r.TaskName,
		Description: r.Description,
		Status:      r.Status,
		CreatedAt:   r.Created,
	}
}

// Store persists tasks in a SQLite database.
type Store struct {
	db *gorm.DB
}

var _ domain.Store = (*Store)(nil)

// Open connects to the SQLite database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	// SQLite has a single writer, and every ":memory:" connection is a separate database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&taskRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return NewStore(db), nil
}

// NewStore wraps an already migrated database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Put inserts or replaces a task.
func (s *Store) Put(ctx context.Context, t *domain.Task) error {
	rec := toRecord(t)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to put task: %w", err)
	}
	return nil
}

// Insert stores a new task unless the id is taken.
func (s *Store) Insert(ctx context.Context, t *domain.Task) error {
	rec := toRecord(t)
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %s already exists: %w", t.ID, domain.ErrConflict)
	}
	return nil
}

// Get retrieves a task by its ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	var rec taskRecord
	if err := s.db.WithContext(ctx).First(&rec, "task_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return rec.toDomain(), nil
}

// Update applies patch in one transaction, conditional on id and owner.
func (s *Store) Update(ctx context.Context, id, owner string, patch domain.Patch) (*domain.Task, error) {
	updates := make(map[string]any, 3)
	for column, value := range patch.Fields() {
		updates[column] = value
	}

	var rec taskRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&taskRecord{}).
			Where("task_id = ? AND user_id = ?", id, owner).
			Updates(updates)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		if result.RowsAffected == 0 {
			return missingOrConflict(tx, id)
		}
		if err := tx.First(&rec, "task_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to reload task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Delete removes a task, conditional on id and owner.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("task_id = ? AND user_id = ?", id, owner).Delete(&taskRecord{})
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		if result.RowsAffected == 0 {
			return missingOrConflict(tx, id)
		}
		return nil
	})
}

// ScanByOwner uses idx_tasks_user_id to fetch one owner's tasks.
func (s *Store) ScanByOwner(ctx context.Context, owner string) ([]*domain.Task, error) {
	var recs []taskRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", owner).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}
	tasks := make([]*domain.Task, 0, len(recs))
	for _, rec := range recs {
		tasks = append(tasks, rec.toDomain())
	}
	return tasks, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// missingOrConflict explains why a conditional write matched no row.
func missingOrConflict(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&taskRecord{}).Where("task_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("task %s owner precondition failed: %w", id, domain.ErrConflict)
}
