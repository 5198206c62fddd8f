package viewer

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

	"github.com/t77yq/script-supervisor/internal/logging"
	"github.com/t77yq/script-supervisor/internal/scheduler"
)

type recordingRenderer struct {
	mu        sync.Mutex
	snapshots []string
}

func (r *recordingRenderer) Render(snapshot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
	return nil
}

func (r *recordingRenderer) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.snapshots...)
}

func TestViewer_Refresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	v := New(path)

	snapshot, err := v.Refresh()
	require.NoError(t, err)
	assert.Empty(t, snapshot)

	require.NoError(t, os.WriteFile(path, []byte("line one\n"), 0644))
	snapshot, err = v.Refresh()
	require.NoError(t, err)
	assert.Equal(t, "line one\n", snapshot)
	assert.Equal(t, snapshot, v.Last())
}

func TestViewer_RefreshWhileWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	records, err := logging.Open(logging.Config{Path: path}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer records.Close()

	v := New(path)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			assert.NoError(t, records.Info("tick"))
		}
	}()

	previous := 0
	for {
		snapshot, err := v.Refresh()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(snapshot), previous, "snapshots only grow")
		previous = len(snapshot)

		select {
		case <-done:
			final, err := v.Refresh()
			require.NoError(t, err)
			assert.Equal(t, 200, strings.Count(final, "\n"))
			return
		default:
		}
	}
}

func TestPoller_RendersChangesOnInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0644))

	sched := scheduler.New(zaptest.NewLogger(t))
	sched.Start()
	defer sched.Stop(context.Background())

	renderer := &recordingRenderer{}
	poller := NewPoller(New(path), renderer, sched, time.Second, zaptest.NewLogger(t))
	require.NoError(t, poller.Start())
	defer poller.Stop()

	assert.Eventually(t, func() bool { return len(renderer.all()) == 1 }, 2*time.Second, 20*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool { return len(renderer.all()) == 2 }, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "first\nsecond\n", renderer.all()[1])
}

func TestPoller_SkipsUnchangedSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, os.WriteFile(path, []byte("same\n"), 0644))

	renderer := &recordingRenderer{}
	poller := NewPoller(New(path), renderer, scheduler.New(zaptest.NewLogger(t)), time.Second, zaptest.NewLogger(t))

	poller.Tick()
	poller.Tick()
	poller.Tick()
	assert.Len(t, renderer.all(), 1)
}

func TestTerminalRenderer_Render(t *testing.T) {
	var out bytes.Buffer
	r := NewTerminalRenderer(&out, true)

	snapshot := "2024-03-01T12:30:45.000Z - INFO - Starting script: a.py at now\n" +
		"2024-03-01T12:30:45.000Z - ERROR - Exit code: 3\n"
	require.NoError(t, r.Render(snapshot))

	rendered := out.String()
	assert.True(t, strings.HasPrefix(rendered, clearScreen))
	assert.Contains(t, rendered, "Starting script: a.py at now")
	assert.Contains(t, rendered, "Exit code: 3")
	assert.Equal(t, 2, strings.Count(rendered, "\n"))
}
