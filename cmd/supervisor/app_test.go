package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/script-supervisor/internal/config"
	"github.com/t77yq/script-supervisor/internal/logging"
	"github.com/t77yq/script-supervisor/internal/model"
	"github.com/t77yq/script-supervisor/internal/scheduler"
	"github.com/t77yq/script-supervisor/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App:    config.AppConfig{Name: "supervisor-test", Env: "test"},
		Log:    config.LogConfig{File: filepath.Join(dir, "debug.log"), Level: model.LevelDebug},
		Runner: config.RunnerConfig{Interpreter: testutil.Shell(t)},
		Viewer: config.ViewerConfig{Interval: time.Second},
		History: config.HistoryConfig{
			Path:            filepath.Join(dir, "history.db"),
			Retention:       time.Hour,
			CleanupSchedule: "@hourly",
		},
	}
}

func TestApp_RunRecordsLogAndHistory(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	script := testutil.WriteScript(t, "ok.sh", "echo ok\n")
	result, err := a.runner.Execute(context.Background(), script)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)

	records, err := logging.ReadRecords(cfg.Log.File)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.True(t, strings.HasPrefix(records[0].Message, "Starting script: "+script+" at "), records[0].Message)
	assert.Contains(t, records[len(records)-1].Message, "Finished script: "+script)

	runs, err := a.runner.History(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, model.OutcomeSucceeded, runs[0].Outcome)
}

func TestApp_WithoutHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Path = ""

	a, err := newApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.history)
	assert.NoError(t, a.scheduleCleanup(), "cleanup is a no-op without history")

	runs, err := a.runner.History(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestApp_ScheduleCleanupRejectsBadSpec(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.CleanupSchedule = "not a schedule"

	a, err := newApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Error(t, a.scheduleCleanup())
}

func TestApp_UnreachableNATSStillRuns(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS = config.NATSConfig{URL: "nats://127.0.0.1:1", SubjectPrefix: "script.result"}

	a, err := newApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	script := testutil.WriteScript(t, "fail.sh", "exit 3\n")
	result, err := a.runner.Execute(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := newApp(testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd
	cmd.SetOut(&out)
	defer cmd.SetOut(nil)

	result := model.LaunchFault("script not found: /nope.py")
	result.RunID = "run-1"
	printResult(cmd, result)

	assert.Contains(t, out.String(), "outcome:  launch_fault")
	assert.Contains(t, out.String(), "fault:    script not found: /nope.py")
	assert.NotContains(t, out.String(), "exit:")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStartViewer_ReadsWithoutOpeningStores(t *testing.T) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)
	sched := scheduler.New(logger)

	var out syncBuffer
	poller, err := startViewer(cfg, sched, &out, logger)
	require.NoError(t, err)
	defer func() {
		poller.Stop()
		sched.Stop(context.Background())
	}()

	time.Sleep(100 * time.Millisecond)
	assert.NoFileExists(t, cfg.Log.File, "viewing must not create the log file")
	assert.NoFileExists(t, cfg.History.Path, "viewing must not open run history")

	line := "2024-01-02T03:04:05.000Z - INFO - Finished script: job.py\n"
	require.NoError(t, os.WriteFile(cfg.Log.File, []byte(line), 0644))

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Finished script: job.py")
	}, 5*time.Second, 50*time.Millisecond)
}
