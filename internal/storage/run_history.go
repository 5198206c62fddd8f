package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/model"
)

// ErrNotFound is returned when a run is not in the history
var ErrNotFound = errors.New("run not found")

// RunHistory is a summary of one execution. Log records stay in the log
// file; only the outcome and resource figures are kept here.
type RunHistory struct {
	ID          string        `json:"id"`
	ScriptPath  string        `json:"script_path"`
	Outcome     model.Outcome `json:"outcome"`
	ExitCode    int           `json:"exit_code"`
	CPUSeconds  *float64      `json:"cpu_seconds,omitempty"`
	MemoryMB    *float64      `json:"memory_mb,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// FromResult builds a history row from an execution result
func FromResult(result *model.ExecutionResult) *RunHistory {
	h := &RunHistory{
		ID:          result.RunID,
		ScriptPath:  result.ScriptPath,
		Outcome:     result.Outcome,
		ExitCode:    result.ExitCode,
		Error:       result.FaultReason,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		Duration:    result.Duration,
	}
	if result.Resources != nil {
		cpu := result.Resources.CPUTimeSeconds
		mem := result.Resources.MemoryMegabytes
		h.CPUSeconds = &cpu
		h.MemoryMB = &mem
	}
	return h
}

// RunHistoryStorage defines the interface for run history storage
type RunHistoryStorage interface {
	// Store stores a run summary
	Store(ctx context.Context, history *RunHistory) error

	// Get retrieves a run summary by ID
	Get(ctx context.Context, id string) (*RunHistory, error)

	// List retrieves run summaries, newest first
	List(ctx context.Context, offset, limit int) ([]*RunHistory, error)

	// Count returns the total number of runs
	Count(ctx context.Context) (int, error)

	// DeleteBefore deletes runs started before the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRunHistory implements RunHistoryStorage using SQLite
type SQLiteRunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteRunHistory opens (or creates) the history database at dbPath
func NewSQLiteRunHistory(logger *zap.Logger, dbPath string) (*SQLiteRunHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	storage := &SQLiteRunHistory{
		logger: logger.Named("run-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteRunHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_history (
			id TEXT PRIMARY KEY,
			script_path TEXT NOT NULL,
			outcome TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			cpu_seconds REAL,
			memory_mb REAL,
			error TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL,
			duration INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_run_history_outcome ON run_history(outcome);
		CREATE INDEX IF NOT EXISTS idx_run_history_started_at ON run_history(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements RunHistoryStorage.Store
func (s *SQLiteRunHistory) Store(ctx context.Context, history *RunHistory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history (
			id, script_path, outcome, exit_code, cpu_seconds, memory_mb,
			error, started_at, completed_at, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		history.ID,
		history.ScriptPath,
		history.Outcome,
		history.ExitCode,
		nullFloat(history.CPUSeconds),
		nullFloat(history.MemoryMB),
		sql.NullString{String: history.Error, Valid: history.Error != ""},
		history.StartedAt.UTC(),
		history.CompletedAt.UTC(),
		int64(history.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to store run history: %w", err)
	}
	return nil
}

// Get implements RunHistoryStorage.Get
func (s *SQLiteRunHistory) Get(ctx context.Context, id string) (*RunHistory, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	history, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return history, nil
}

// List implements RunHistoryStorage.List
func (s *SQLiteRunHistory) List(ctx context.Context, offset, limit int) ([]*RunHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var histories []*RunHistory
	for rows.Next() {
		history, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		histories = append(histories, history)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return histories, nil
}

// Count implements RunHistoryStorage.Count
func (s *SQLiteRunHistory) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_history").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count run history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements RunHistoryStorage.DeleteBefore
func (s *SQLiteRunHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM run_history WHERE started_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete run history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old run history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteRunHistory) Close() error {
	return s.db.Close()
}

const selectColumns = `
	SELECT id, script_path, outcome, exit_code, cpu_seconds, memory_mb,
		error, started_at, completed_at, duration
	FROM run_history`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHistory(row scanner) (*RunHistory, error) {
	var history RunHistory
	var cpu, mem sql.NullFloat64
	var errorStr sql.NullString
	var durationNanos int64

	err := row.Scan(
		&history.ID,
		&history.ScriptPath,
		&history.Outcome,
		&history.ExitCode,
		&cpu,
		&mem,
		&errorStr,
		&history.StartedAt,
		&history.CompletedAt,
		&durationNanos,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run history: %w", err)
	}

	if cpu.Valid {
		history.CPUSeconds = &cpu.Float64
	}
	if mem.Valid {
		history.MemoryMB = &mem.Float64
	}
	if errorStr.Valid {
		history.Error = errorStr.String
	}
	history.Duration = time.Duration(durationNanos)

	return &history, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
