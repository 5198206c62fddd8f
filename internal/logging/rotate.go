package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// RotateIfNeeded moves the log file aside to <path>.1 once it exceeds
// MaxSize and starts a fresh file. Callers invoke it between record
// blocks so one execution never spans two files.
func (l *Logger) RotateIfNeeded() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.core == nil || l.config.MaxSize <= 0 {
		return false, nil
	}

	info, err := l.file.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() < l.config.MaxSize {
		return false, nil
	}

	if err := l.file.Close(); err != nil {
		l.logger.Error("Failed to close log file before rotation",
			zap.String("path", l.config.Path),
			zap.Error(err))
	}
	l.file = nil
	l.core = nil

	newPath := l.config.Path + ".1"
	if err := os.Rename(l.config.Path, newPath); err != nil {
		// Keep appending to the oversized file rather than losing records
		l.logger.Error("Failed to rotate log file",
			zap.String("path", l.config.Path),
			zap.Error(err))
		if openErr := l.open(); openErr != nil {
			return false, openErr
		}
		return false, fmt.Errorf("failed to rotate log file: %w", err)
	}

	if err := l.open(); err != nil {
		return false, err
	}

	l.logger.Info("Rotated log file",
		zap.String("path", l.config.Path),
		zap.String("rotated_to", newPath),
		zap.Int64("size", info.Size()))
	return true, nil
}
