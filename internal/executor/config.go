package executor

import "time"

// Config defines how target scripts are launched
type Config struct {
	// Interpreter runs the script, e.g. "python3". Empty executes the
	// script file directly.
	Interpreter string
	// InterpreterArgs are placed between the interpreter and the script path
	InterpreterArgs []string
	// Timeout kills the script after this long; zero means no limit
	Timeout time.Duration
}

// argv returns the command line for scriptPath
func (c Config) argv(scriptPath string) []string {
	if c.Interpreter == "" {
		return []string{scriptPath}
	}
	argv := make([]string, 0, len(c.InterpreterArgs)+2)
	argv = append(argv, c.Interpreter)
	argv = append(argv, c.InterpreterArgs...)
	return append(argv, scriptPath)
}
