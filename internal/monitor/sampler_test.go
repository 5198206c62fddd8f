package monitor

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestProcessSampler_Sample(t *testing.T) {
	sampler := NewProcessSampler(zaptest.NewLogger(t))

	sample, err := sampler.Sample(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, sample.CPUTimeSeconds, 0.0)
	assert.Greater(t, sample.MemoryMegabytes, 0.0)
	assert.False(t, sample.CollectedAt.IsZero())
}

func TestProcessSampler_CumulativeAfterChild(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	sampler := NewProcessSampler(zaptest.NewLogger(t))

	before, err := sampler.Sample(context.Background())
	require.NoError(t, err)

	require.NoError(t, exec.Command(sh, "-c", "i=0; while [ $i -lt 20000 ]; do i=$((i+1)); done").Run())

	after, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after.CPUTimeSeconds, before.CPUTimeSeconds)
}

func TestProcessSampler_AddsChildUsage(t *testing.T) {
	sampler := NewProcessSampler(zaptest.NewLogger(t))
	sampler.children = func() (ChildUsage, error) {
		return ChildUsage{CPUSeconds: 1000, MaxRSSBytes: 512 * bytesPerMegabyte, Reported: true}, nil
	}

	sample, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sample.CPUTimeSeconds, 1000.0)
	assert.GreaterOrEqual(t, sample.MemoryMegabytes, 512.0)
}

func TestProcessSampler_Unavailable(t *testing.T) {
	t.Run("child accounting fails", func(t *testing.T) {
		sampler := NewProcessSampler(zaptest.NewLogger(t))
		sampler.children = func() (ChildUsage, error) {
			return ChildUsage{}, errors.New("EFAULT")
		}

		_, err := sampler.Sample(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("process gone", func(t *testing.T) {
		sampler := NewProcessSampler(zaptest.NewLogger(t))
		sampler.pid = 1 << 30

		_, err := sampler.Sample(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestHostCollector_Snapshot(t *testing.T) {
	collector := NewHostCollector(100*time.Millisecond, zaptest.NewLogger(t))

	stats, err := collector.Snapshot(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.CPUUsage, 0.0)
	assert.GreaterOrEqual(t, stats.MemoryUsage, 0.0)
	assert.False(t, stats.CollectedAt.IsZero())
}
