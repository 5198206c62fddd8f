package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/model"
)

const bytesPerMegabyte = 1024 * 1024

// Sampler reads cumulative resource usage of the supervising process
type Sampler interface {
	Sample(ctx context.Context) (model.ResourceSample, error)
}

// ChildUsage is the accounting the OS keeps for reaped child processes
type ChildUsage struct {
	CPUSeconds  float64
	MaxRSSBytes uint64
	Reported    bool
}

// ProcessSampler inspects the current process with gopsutil and adds the
// OS-reported usage of its terminated children where the platform keeps it
type ProcessSampler struct {
	logger   *zap.Logger
	pid      int32
	children func() (ChildUsage, error)
	now      func() time.Time
}

// NewProcessSampler creates a sampler for the current process
func NewProcessSampler(logger *zap.Logger) *ProcessSampler {
	return &ProcessSampler{
		logger:   logger.Named("resource-sampler"),
		pid:      int32(os.Getpid()),
		children: childUsage,
		now:      time.Now,
	}
}

// Sample returns CPU seconds (user+system) and resident memory in megabytes
func (s *ProcessSampler) Sample(ctx context.Context) (model.ResourceSample, error) {
	proc, err := process.NewProcessWithContext(ctx, s.pid)
	if err != nil {
		return model.ResourceSample{}, fmt.Errorf("%w: inspect process %d: %v", ErrUnavailable, s.pid, err)
	}

	times, err := proc.TimesWithContext(ctx)
	if err != nil {
		return model.ResourceSample{}, fmt.Errorf("%w: cpu times: %v", ErrUnavailable, err)
	}

	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return model.ResourceSample{}, fmt.Errorf("%w: memory info: %v", ErrUnavailable, err)
	}

	children, err := s.children()
	if err != nil {
		return model.ResourceSample{}, fmt.Errorf("%w: child usage: %v", ErrUnavailable, err)
	}

	sample := model.ResourceSample{
		CPUTimeSeconds:  times.User + times.System + children.CPUSeconds,
		MemoryMegabytes: float64(memInfo.RSS+children.MaxRSSBytes) / bytesPerMegabyte,
		CollectedAt:     s.now(),
	}

	s.logger.Debug("Resource sample collected",
		zap.Float64("cpu_time_seconds", sample.CPUTimeSeconds),
		zap.Float64("memory_megabytes", sample.MemoryMegabytes),
		zap.Bool("children_reported", children.Reported))

	return sample, nil
}
