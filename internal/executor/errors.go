package executor

import (
	"errors"

	"github.com/t77yq/script-supervisor/internal/monitor"
)

var (
	// ErrNoScript is returned before anything is logged when no script path was given
	ErrNoScript = errors.New("no script selected")

	// ErrSamplingUnavailable is returned when resource usage could not be measured
	ErrSamplingUnavailable = monitor.ErrUnavailable
)
