package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/script-supervisor/internal/model"
)

func newTestHistory(t *testing.T) *SQLiteRunHistory {
	t.Helper()

	h, err := NewSQLiteRunHistory(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestSQLiteRunHistory_StoreAndGet(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	result := model.ScriptFailure(3, "partial", "boom")
	result.RunID = "run-1"
	result.ScriptPath = "/scripts/job.py"
	result.StartedAt = started
	result.CompletedAt = started.Add(1500 * time.Millisecond)
	result.Duration = 1500 * time.Millisecond
	result.Resources = &model.ResourceSample{CPUTimeSeconds: 0.25, MemoryMegabytes: 12.5}

	require.NoError(t, h.Store(ctx, FromResult(result)))

	got, err := h.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "/scripts/job.py", got.ScriptPath)
	assert.Equal(t, model.OutcomeScriptFailure, got.Outcome)
	assert.Equal(t, 3, got.ExitCode)
	require.NotNil(t, got.CPUSeconds)
	assert.InDelta(t, 0.25, *got.CPUSeconds, 1e-9)
	require.NotNil(t, got.MemoryMB)
	assert.InDelta(t, 12.5, *got.MemoryMB, 1e-9)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
}

func TestSQLiteRunHistory_LaunchFaultWithoutResources(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	result := model.LaunchFault("no such file")
	result.RunID = "run-2"
	result.ScriptPath = "missing.py"
	result.StartedAt = time.Now()
	result.CompletedAt = result.StartedAt

	require.NoError(t, h.Store(ctx, FromResult(result)))

	got, err := h.Get(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, model.NoExitCode, got.ExitCode)
	assert.Equal(t, "no such file", got.Error)
	assert.Nil(t, got.CPUSeconds)
	assert.Nil(t, got.MemoryMB)
}

func TestSQLiteRunHistory_GetNotFound(t *testing.T) {
	h := newTestHistory(t)

	_, err := h.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRunHistory_ListCountDelete(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.Store(ctx, &RunHistory{
			ID:          id,
			ScriptPath:  id + ".py",
			Outcome:     model.OutcomeSucceeded,
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			CompletedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	count, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	list, err := h.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	deleted, err := h.DeleteBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err = h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
