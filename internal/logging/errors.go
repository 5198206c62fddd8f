package logging

import "errors"

var (
	// ErrNotConfigured is returned when a record is written before Configure
	ErrNotConfigured = errors.New("log sink not configured")

	// ErrWrite is returned when the log file cannot be written
	ErrWrite = errors.New("log write failed")

	// ErrMalformedRecord is returned when a line is not a log record
	ErrMalformedRecord = errors.New("malformed log record")
)
