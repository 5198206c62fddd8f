package model

import (
	"time"
)

// Outcome classifies how a single script execution ended
type Outcome string

const (
	OutcomeSucceeded     Outcome = "succeeded"
	OutcomeScriptFailure Outcome = "script_failure"
	OutcomeLaunchFault   Outcome = "launch_fault"
)

// NoExitCode is reported when the target never produced an exit status
const NoExitCode = -1

// ExecutionRequest describes one invocation of the runner
type ExecutionRequest struct {
	ScriptPath    string `json:"script_path"`
	TargetLogFile string `json:"target_log_file"`
}

// ExecutionResult represents the result of a script execution
type ExecutionResult struct {
	RunID      string  `json:"run_id"`
	ScriptPath string  `json:"script_path"`
	Outcome    Outcome `json:"outcome"`
	ExitCode   int     `json:"exit_code"`
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
	Succeeded  bool    `json:"succeeded"`

	// Command is the argv that was invoked, joined by spaces
	Command string `json:"command,omitempty"`
	// FaultReason is set only for OutcomeLaunchFault
	FaultReason string `json:"fault_reason,omitempty"`

	// Resources is nil when sampling was unavailable
	Resources *ResourceSample `json:"resources,omitempty"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// Success builds a result for a target that exited 0
func Success(stdout, stderr string) *ExecutionResult {
	return &ExecutionResult{
		Outcome:   OutcomeSucceeded,
		ExitCode:  0,
		Stdout:    stdout,
		Stderr:    stderr,
		Succeeded: true,
	}
}

// ScriptFailure builds a result for a target that ran and exited non-zero
func ScriptFailure(code int, stdout, stderr string) *ExecutionResult {
	return &ExecutionResult{
		Outcome:  OutcomeScriptFailure,
		ExitCode: code,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// LaunchFault builds a result for a target that could not be run at all
func LaunchFault(reason string) *ExecutionResult {
	return &ExecutionResult{
		Outcome:     OutcomeLaunchFault,
		ExitCode:    NoExitCode,
		FaultReason: reason,
	}
}
