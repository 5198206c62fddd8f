package monitor

import "errors"

// ErrUnavailable is returned when resource usage could not be measured.
// It is distinct from a legitimate zero reading.
var ErrUnavailable = errors.New("resource usage unavailable")
