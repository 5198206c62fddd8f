package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/script-supervisor/internal/model"
)

const (
	// TimeLayout is the timestamp format of every record
	TimeLayout = "2006-01-02T15:04:05.000Z07:00"

	// Separator delimits timestamp, level and message within a record
	Separator = " - "
)

var escaper = strings.NewReplacer("\\", `\\`, "\n", `\n`, "\r", `\r`)

// Config defines the log sink
type Config struct {
	Path     string      // Log file path
	MinLevel model.Level // Records below this level are dropped
	MaxSize  int64       // Rotation threshold in bytes, 0 disables rotation
}

// Logger is the append-only record sink shared by the runner and read by the viewer
type Logger struct {
	logger *zap.Logger
	mu     sync.Mutex
	config Config
	file   *os.File
	core   zapcore.Core
	now    func() time.Time
}

// New creates an unconfigured logger. logger receives diagnostics about
// the sink itself; it never receives records.
func New(logger *zap.Logger) *Logger {
	return &Logger{
		logger: logger.Named("log-sink"),
		now:    time.Now,
	}
}

// Open creates and configures a logger in one step
func Open(config Config, logger *zap.Logger) (*Logger, error) {
	l := New(logger)
	if err := l.Configure(config); err != nil {
		return nil, err
	}
	return l, nil
}

// Configure opens the log file. Only the first successful call takes
// effect, later calls return nil and keep the original sink.
func (l *Logger) Configure(config Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.core != nil {
		if config.Path != l.config.Path {
			l.logger.Warn("Log sink already configured, ignoring new path",
				zap.String("path", l.config.Path),
				zap.String("ignored", config.Path))
		}
		return nil
	}

	if config.MinLevel == "" {
		config.MinLevel = model.LevelDebug
	}
	if _, err := zapLevel(config.MinLevel); err != nil {
		return err
	}

	l.config = config
	if err := l.open(); err != nil {
		return err
	}

	l.logger.Info("Log sink configured",
		zap.String("path", config.Path),
		zap.String("min_level", string(config.MinLevel)))
	return nil
}

// Path returns the configured file path
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config.Path
}

// Record appends one timestamped line to the log file
func (l *Logger) Record(level model.Level, message string) error {
	lvl, err := zapLevel(level)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.core == nil {
		return ErrNotConfigured
	}
	if !l.core.Enabled(lvl) {
		return nil
	}

	entry := zapcore.Entry{
		Level:   lvl,
		Time:    l.now(),
		Message: escape(message),
	}
	if err := l.core.Write(entry, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, l.config.Path, err)
	}
	return nil
}

// Debug records a DEBUG line
func (l *Logger) Debug(message string) error { return l.Record(model.LevelDebug, message) }

// Info records an INFO line
func (l *Logger) Info(message string) error { return l.Record(model.LevelInfo, message) }

// Error records an ERROR line
func (l *Logger) Error(message string) error { return l.Record(model.LevelError, message) }

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.core = nil
	return err
}

// open must be called with mu held
func (l *Logger) open() error {
	file, err := os.OpenFile(l.config.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	minLevel, _ := zapLevel(l.config.MinLevel)
	l.file = file
	l.core = zapcore.NewCore(newEncoder(), zapcore.AddSync(file), minLevel)
	return nil
}

func newEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: Separator,
	})
}

func zapLevel(level model.Level) (zapcore.Level, error) {
	switch level {
	case model.LevelDebug:
		return zapcore.DebugLevel, nil
	case model.LevelInfo:
		return zapcore.InfoLevel, nil
	case model.LevelError:
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InvalidLevel, fmt.Errorf("unsupported log level %q", level)
}

// escape keeps a record on a single line
func escape(message string) string {
	return escaper.Replace(strings.TrimRight(message, "\r\n"))
}
