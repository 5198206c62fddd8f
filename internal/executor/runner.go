package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/logging"
	"github.com/t77yq/script-supervisor/internal/model"
	"github.com/t77yq/script-supervisor/internal/monitor"
	"github.com/t77yq/script-supervisor/internal/storage"
)

// RecordSink is the append-only log the runner writes its record blocks to
type RecordSink interface {
	Record(level model.Level, message string) error
	RotateIfNeeded() (bool, error)
}

// ResultPublisher announces finished executions
type ResultPublisher interface {
	Publish(ctx context.Context, result *model.ExecutionResult) error
}

// Option configures optional runner collaborators
type Option func(*Runner)

// WithHistory stores a summary of every run
func WithHistory(history storage.RunHistoryStorage) Option {
	return func(r *Runner) { r.history = history }
}

// WithPublisher publishes every result after it is logged
func WithPublisher(publisher ResultPublisher) Option {
	return func(r *Runner) { r.publisher = publisher }
}

// Runner supervises one script execution at a time
type Runner struct {
	logger    *zap.Logger
	config    Config
	records   RecordSink
	sampler   monitor.Sampler
	history   storage.RunHistoryStorage
	publisher ResultPublisher
	mu        sync.Mutex
	now       func() time.Time
}

// NewRunner creates a runner
func NewRunner(config Config, records RecordSink, sampler monitor.Sampler, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:  logger.Named("runner"),
		config:  config,
		records: records,
		sampler: sampler,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the script at scriptPath and logs one record block:
// Starting, failure detail if any, CPU and memory usage, Finished.
//
// Script failures and launch faults are reported through the result, never
// as errors. The error is non-nil only when resource usage could not be
// measured (ErrSamplingUnavailable) or the log could not be written
// (logging.ErrWrite); the result is still returned in both cases.
// Concurrent calls are serialized.
func (r *Runner) Execute(ctx context.Context, scriptPath string) (*model.ExecutionResult, error) {
	if strings.TrimSpace(scriptPath) == "" {
		return nil, ErrNoScript
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rotated, err := r.records.RotateIfNeeded(); err != nil {
		r.logger.Error("Failed to rotate log file", zap.Error(err))
	} else if rotated {
		r.logger.Info("Log file rotated before run")
	}

	block := &recordBlock{sink: r.records}
	startedAt := r.now()
	block.add(model.LevelInfo, "Starting script: %s at %s", scriptPath, startedAt.Format(logging.TimeLayout))

	result := r.launch(ctx, scriptPath)
	result.RunID = uuid.New().String()
	result.ScriptPath = scriptPath
	result.StartedAt = startedAt

	switch result.Outcome {
	case model.OutcomeSucceeded:
		block.add(model.LevelInfo, "Script executed successfully: %s", result.Stdout)
	case model.OutcomeScriptFailure:
		block.add(model.LevelError, "Command that failed: %s", result.Command)
		block.add(model.LevelError, "Exit code: %d", result.ExitCode)
		block.add(model.LevelError, "Standard Output: %s", result.Stdout)
		block.add(model.LevelError, "Standard Error: %s", result.Stderr)
	case model.OutcomeLaunchFault:
		block.add(model.LevelError, "Failed to launch script %s: %s", scriptPath, result.FaultReason)
	}

	// The child has been reaped; sample even if the caller's ctx is done
	sample, sampleErr := r.sampler.Sample(context.WithoutCancel(ctx))
	if sampleErr != nil {
		if !errors.Is(sampleErr, ErrSamplingUnavailable) {
			sampleErr = fmt.Errorf("%w: %v", ErrSamplingUnavailable, sampleErr)
		}
		block.add(model.LevelError, "Resource usage unavailable: %v", sampleErr)
	} else {
		result.Resources = &sample
		block.add(model.LevelInfo, "CPU time: %.2f seconds", sample.CPUTimeSeconds)
		block.add(model.LevelInfo, "Memory usage: %.2f MB", sample.MemoryMegabytes)
	}

	result.CompletedAt = r.now()
	result.Duration = result.CompletedAt.Sub(startedAt)
	block.add(model.LevelInfo, "Finished script: %s at %s", scriptPath, result.CompletedAt.Format(logging.TimeLayout))

	r.logger.Info("Script run finished",
		zap.String("run_id", result.RunID),
		zap.String("script", scriptPath),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))

	r.afterRun(context.WithoutCancel(ctx), result)

	return result, errors.Join(block.err, sampleErr)
}

// History retrieves recent run summaries
func (r *Runner) History(ctx context.Context, offset, limit int) ([]*storage.RunHistory, error) {
	if r.history == nil {
		return nil, nil
	}
	return r.history.List(ctx, offset, limit)
}

// CleanupOldHistory deletes run summaries older than the specified time
func (r *Runner) CleanupOldHistory(ctx context.Context, before time.Time) error {
	if r.history == nil {
		return nil
	}
	_, err := r.history.DeleteBefore(ctx, before)
	return err
}

// afterRun stores and publishes the result. Failures only reach the
// diagnostic logger; the record block is already complete.
func (r *Runner) afterRun(ctx context.Context, result *model.ExecutionResult) {
	if r.history != nil {
		if err := r.history.Store(ctx, storage.FromResult(result)); err != nil {
			r.logger.Error("Failed to store run history",
				zap.String("run_id", result.RunID),
				zap.Error(err))
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, result); err != nil {
			r.logger.Error("Failed to publish run result",
				zap.String("run_id", result.RunID),
				zap.Error(err))
		}
	}
}

// recordBlock writes records in order and stops at the first write failure
type recordBlock struct {
	sink RecordSink
	err  error
}

func (b *recordBlock) add(level model.Level, format string, args ...interface{}) {
	if b.err != nil {
		return
	}
	b.err = b.sink.Record(level, fmt.Sprintf(format, args...))
}
