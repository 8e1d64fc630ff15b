package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/example/task-tracker-api/config"
	"github.com/example/task-tracker-api/modules/api"
	"github.com/example/task-tracker-api/modules/audit"
	"github.com/example/task-tracker-api/modules/identity"
	"github.com/example/task-tracker-api/modules/task"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("=== Task Tracker API ===")

	logLevel := mono.WithLogLevel(mono.LogLevelInfo)
	if cfg.Log.Level == "error" {
		logLevel = mono.WithLogLevel(mono.LogLevelError)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		logLevel,
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Register modules with the framework.
	// - identity: bearer token verification
	// - task: task service over the configured store, emits task events
	// - audit: event consumer, per-owner activity counters
	// - api: Fiber HTTP server, depends on identity, task and audit
	modules := []mono.Module{
		identity.NewModule(cfg.Auth, logger),
		task.NewModule(cfg.Store, cfg.Task, logger),
		audit.NewModule(logger),
		api.NewModule(cfg.Address(), cfg.RateLimit, logger),
	}
	for _, m := range modules {
		if err := app.Register(m); err != nil {
			log.Fatalf("Failed to register %s module: %v", m.Name(), err)
		}
	}

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	logger.Info("Application started",
		"addr", cfg.Address(),
		"store", cfg.Store.Driver,
		"rateLimit", cfg.RateLimit.Enabled)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				logger.Info("Graceful shutdown initiated")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// parseFlags reads the command line and loads the configuration it names.
func parseFlags(args []string) (*config.Config, error) {
	var configPath string
	var envFiles []string

	flagSet := pflag.NewFlagSet("task-tracker-api", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default: .env)")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: task-tracker-api [flags]\n\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	return config.Load(configPath, envFiles...)
}
