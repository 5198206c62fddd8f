package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/config"
	"github.com/t77yq/script-supervisor/internal/model"
	"github.com/t77yq/script-supervisor/internal/monitor"
	"github.com/t77yq/script-supervisor/internal/scheduler"
	"github.com/t77yq/script-supervisor/internal/server"
	"github.com/t77yq/script-supervisor/internal/viewer"
)

// errScriptFailed marks a run whose script did not succeed
var errScriptFailed = errors.New("script did not succeed")

// setup loads config and wires the app for a subcommand
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return a, nil
}

func runScript(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.Close()

	result, err := a.runner.Execute(cmd.Context(), args[0])
	if result != nil {
		printResult(cmd, result)
	}
	if err != nil {
		return err
	}
	if !result.Succeeded {
		return fmt.Errorf("%w: %s", errScriptFailed, result.Outcome)
	}
	return nil
}

func printResult(cmd *cobra.Command, result *model.ExecutionResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run:      %s\n", result.RunID)
	fmt.Fprintf(out, "outcome:  %s\n", result.Outcome)
	if result.ExitCode != model.NoExitCode {
		fmt.Fprintf(out, "exit:     %d\n", result.ExitCode)
	}
	if result.FaultReason != "" {
		fmt.Fprintf(out, "fault:    %s\n", result.FaultReason)
	}
	if result.Resources != nil {
		fmt.Fprintf(out, "cpu:      %.2fs\n", result.Resources.CPUTimeSeconds)
		fmt.Fprintf(out, "memory:   %.2f MB\n", result.Resources.MemoryMegabytes)
	}
	fmt.Fprintf(out, "duration: %s\n", result.Duration.Round(time.Millisecond))
}

// runViewer only reads the log file: it opens neither the record sink
// nor the history store
func runViewer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(logger)
	poller, err := startViewer(cfg, sched, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer func() {
		poller.Stop()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	<-ctx.Done()
	return nil
}

// startViewer renders the log file to out on every viewer interval
func startViewer(cfg *config.Config, sched *scheduler.Scheduler, out io.Writer, logger *zap.Logger) (*viewer.Poller, error) {
	poller := viewer.NewPoller(
		viewer.New(cfg.Log.File),
		viewer.NewTerminalRenderer(out, true),
		sched,
		cfg.Viewer.Interval,
		logger,
	)
	if err := poller.Start(); err != nil {
		return nil, err
	}
	sched.Start()
	return poller, nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.scheduleCleanup(); err != nil {
		return err
	}
	a.scheduler.Start()

	srv := server.New(server.Config{
		Addr:            a.config.Server.Addr,
		RefreshInterval: a.config.Viewer.Interval,
		ShutdownTimeout: stopTimeout,
	}, a.runner, viewer.New(a.config.Log.File), monitor.NewHostCollector(200*time.Millisecond, a.logger), a.logger)

	return srv.Start(ctx)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.Close()

	if a.history == nil {
		a.logger.Warn("Run history is disabled, set history.path to enable it")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	runs, err := a.runner.History(ctx, 0, historyMax)
	if err != nil {
		a.logger.Error("Failed to list run history", zap.Error(err))
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tOUTCOME\tEXIT\tDURATION\tSCRIPT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			run.Outcome,
			run.ExitCode,
			run.Duration.Round(time.Millisecond),
			run.ScriptPath)
	}
	return w.Flush()
}
