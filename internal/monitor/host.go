package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/model"
)

// HostCollector reports host-wide CPU and memory utilisation
type HostCollector struct {
	logger   *zap.Logger
	interval time.Duration
}

// NewHostCollector creates a collector. interval is the CPU measurement
// window; zero compares against the previous call.
func NewHostCollector(interval time.Duration, logger *zap.Logger) *HostCollector {
	return &HostCollector{
		logger:   logger.Named("host-collector"),
		interval: interval,
	}
}

// Snapshot collects host metrics
func (c *HostCollector) Snapshot(ctx context.Context) (*model.HostStats, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, c.interval, false)
	if err != nil {
		return nil, fmt.Errorf("%w: cpu usage: %v", ErrUnavailable, err)
	}
	if len(cpuPercent) == 0 {
		return nil, fmt.Errorf("%w: cpu usage: no data", ErrUnavailable)
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: memory usage: %v", ErrUnavailable, err)
	}

	stats := &model.HostStats{
		CPUUsage:    cpuPercent[0],
		MemoryUsage: memInfo.UsedPercent,
		CollectedAt: time.Now(),
	}

	c.logger.Debug("Host stats collected",
		zap.Float64("cpu_usage", stats.CPUUsage),
		zap.Float64("memory_usage", stats.MemoryUsage))

	return stats, nil
}
