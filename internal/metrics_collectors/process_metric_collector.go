package metrics_collectors

import (
	"context"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"

	"github.com/benmeehan/telemetry-bridge/internal/models"
)

// ProcessMetricCollector collects CPU, memory and goroutine usage of the bridge process itself.
type ProcessMetricCollector struct {
	Logger zerolog.Logger
	Pid    int32
}

// NewProcessMetricCollector creates a collector for the current process.
func NewProcessMetricCollector(logger zerolog.Logger) *ProcessMetricCollector {
	return &ProcessMetricCollector{Logger: logger, Pid: int32(os.Getpid())}
}

func (p *ProcessMetricCollector) Name() string {
	return "process"
}

func (p *ProcessMetricCollector) Collect(ctx context.Context) interface{} {
	proc, err := process.NewProcessWithContext(ctx, p.Pid)
	if err != nil {
		p.Logger.Debug().Err(err).Int32("pid", p.Pid).Msg("Failed to open process")
		return nil
	}

	metrics := &models.ProcessMetrics{Goroutines: runtime.NumGoroutine()}

	if cpuPercent, err := proc.CPUPercentWithContext(ctx); err == nil {
		metrics.CPUUsage = cpuPercent
	} else {
		p.Logger.Debug().Err(err).Int32("pid", p.Pid).Msg("Failed to get CPU usage")
	}

	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		metrics.MemoryRSS = memInfo.RSS
	} else {
		p.Logger.Debug().Err(err).Int32("pid", p.Pid).Msg("Failed to get memory information")
	}

	return metrics
}
