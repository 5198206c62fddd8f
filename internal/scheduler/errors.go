package scheduler

import "errors"

var (
	// ErrInvalidInterval is returned when a non-positive interval is requested
	ErrInvalidInterval = errors.New("invalid interval")
)
