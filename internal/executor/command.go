package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/model"
)

const waitDelay = time.Second

// launch runs the script to completion and classifies the outcome.
// It never returns an error: every fault becomes a LaunchFault result.
func (r *Runner) launch(ctx context.Context, scriptPath string) *model.ExecutionResult {
	info, err := os.Stat(scriptPath)
	if err != nil {
		return model.LaunchFault(fmt.Sprintf("script not accessible: %v", err))
	}
	if info.IsDir() {
		return model.LaunchFault(fmt.Sprintf("script path %s is a directory", scriptPath))
	}

	cmdCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	argv := r.config.argv(scriptPath)
	command := strings.Join(argv, " ")

	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	// Grandchildren holding the output pipes must not block Wait forever
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("Executing script", zap.Strings("argv", argv))

	if err := cmd.Start(); err != nil {
		result := model.LaunchFault(fmt.Sprintf("failed to start: %v", err))
		result.Command = command
		return result
	}

	r.logger.Debug("Process started",
		zap.String("command", command),
		zap.Int("pid", cmd.Process.Pid))

	err = cmd.Wait()

	var result *model.ExecutionResult
	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		result = model.Success(stdout.String(), stderr.String())
	case cmdCtx.Err() != nil:
		result = model.LaunchFault(fmt.Sprintf("execution canceled: %v", cmdCtx.Err()))
	case errors.As(err, &exitErr):
		result = model.ScriptFailure(exitErr.ExitCode(), stdout.String(), stderr.String())
	default:
		result = model.LaunchFault(fmt.Sprintf("failed waiting for script: %v", err))
	}
	result.Command = command

	r.logger.Debug("Process exited",
		zap.String("command", command),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("exit_code", result.ExitCode))

	return result
}
