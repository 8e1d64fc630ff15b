// Package storage opens the task store backend selected in configuration.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/example/task-tracker-api/config"
	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/example/task-tracker-api/storage/jetstream"
	"github.com/example/task-tracker-api/storage/memory"
	"github.com/example/task-tracker-api/storage/postgres"
	"github.com/example/task-tracker-api/storage/redis"
	"github.com/example/task-tracker-api/storage/sqlite"
)

// Backend is an opened store together with its lifecycle.
type Backend interface {
	domain.Store
	domain.Pinger
	io.Closer
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*redis.Store)(nil)
	_ Backend = (*jetstream.Store)(nil)
)

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverRedis:
		s, err := redis.Open(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverJetStream:
		s, err := jetstream.Open(ctx, cfg.NATSURL, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
