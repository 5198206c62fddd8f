package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/config"
	"github.com/t77yq/script-supervisor/internal/events"
	"github.com/t77yq/script-supervisor/internal/executor"
	"github.com/t77yq/script-supervisor/internal/logging"
	"github.com/t77yq/script-supervisor/internal/monitor"
	"github.com/t77yq/script-supervisor/internal/scheduler"
	"github.com/t77yq/script-supervisor/internal/storage"
)

const stopTimeout = 10 * time.Second

// app holds the wired components shared by every subcommand
type app struct {
	config    *config.Config
	logger    *zap.Logger
	records   *logging.Logger
	history   *storage.SQLiteRunHistory
	runner    *executor.Runner
	scheduler *scheduler.Scheduler
	closers   []func() error
}

// newLogger builds the diagnostic logger. It writes to stderr and is
// separate from the record log file.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.App.Env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// newApp opens the log sink and the optional history and event stores
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		config:    cfg,
		logger:    logger,
		scheduler: scheduler.New(logger),
	}

	records, err := logging.Open(logging.Config{
		Path:     cfg.Log.File,
		MinLevel: cfg.Log.Level,
		MaxSize:  cfg.Log.MaxSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.records = records
	a.closers = append(a.closers, records.Close)

	var opts []executor.Option

	if cfg.History.Path != "" {
		history, err := storage.NewSQLiteRunHistory(logger, cfg.History.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.history = history
		a.closers = append(a.closers, history.Close)
		opts = append(opts, executor.WithHistory(history))
	}

	if cfg.NATS.URL != "" {
		js, drain, err := events.Connect(cfg.NATS.URL, cfg.App.Name, logger)
		if err != nil {
			// Result events are optional; runs still get logged
			logger.Warn("Result events disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() error { drain(); return nil })
			opts = append(opts, executor.WithPublisher(events.NewPublisher(js, cfg.NATS.SubjectPrefix, logger)))
		}
	}

	a.runner = executor.NewRunner(executor.Config{
		Interpreter:     cfg.Runner.Interpreter,
		InterpreterArgs: cfg.Runner.InterpreterArgs,
		Timeout:         cfg.Runner.Timeout,
	}, records, monitor.NewProcessSampler(logger), logger, opts...)

	return a, nil
}

// scheduleCleanup registers history retention on the scheduler
func (a *app) scheduleCleanup() error {
	if a.history == nil || a.config.History.Retention <= 0 || a.config.History.CleanupSchedule == "" {
		return nil
	}

	_, err := a.scheduler.Add(a.config.History.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		cutoff := time.Now().Add(-a.config.History.Retention)
		if err := a.runner.CleanupOldHistory(ctx, cutoff); err != nil {
			a.logger.Error("Failed to cleanup old run history", zap.Error(err))
		}
	})
	return err
}

// Close stops the scheduler and releases stores in reverse order
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	a.scheduler.Stop(ctx)

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("failed to close: %w", errors.Join(errs...))
	}
	return nil
}
