package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs recurring jobs for the presentation layer: viewer
// refreshes and history cleanup. It never drives script execution.
type Scheduler struct {
	logger *zap.Logger
	cron   *cron.Cron
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// New creates a scheduler. Jobs that panic are recovered and logged; a job
// still running when its next tick fires is skipped for that tick.
func New(logger *zap.Logger) *Scheduler {
	cl := &cronLogger{logger: logger.Named("cron")}

	return &Scheduler{
		logger: logger.Named("scheduler"),
		cron: cron.New(
			cron.WithLogger(cl),
			// Recover must sit inside SkipIfStillRunning, otherwise a panic
			// never releases the running slot and the job is skipped forever
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
	}
}

// Every registers fn to run at a fixed interval
func (s *Scheduler) Every(interval time.Duration, fn func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	return s.Add(fmt.Sprintf("@every %s", interval), fn)
}

// Add registers fn under a standard cron spec or descriptor
func (s *Scheduler) Add(spec string, fn func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s.logger.Info("Added job",
		zap.Int("entry_id", int(id)),
		zap.String("spec", spec))
	return id, nil
}

// Remove unregisters a job
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
	s.logger.Info("Removed job", zap.Int("entry_id", int(id)))
}

// Start starts running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs or ctx, whichever first
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Stop timed out with jobs still running")
	}
}
