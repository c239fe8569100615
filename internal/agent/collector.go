package agent

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	defaults "fleetmon/config"
	"fleetmon/internal/telemetry"
)

// Collector reads resource usage of the local machine via gopsutil.
type Collector struct {
	sourceID string
	diskPath string
}

// NewCollector builds a collector. An empty sourceID falls back to the
// hostname, an empty diskPath to the default mount.
func NewCollector(sourceID, diskPath string) (*Collector, error) {
	if sourceID == "" {
		name, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve hostname: %w", err)
		}
		sourceID = name
	}
	if diskPath == "" {
		diskPath = defaults.DefaultAgentDiskPath
	}
	return &Collector{sourceID: sourceID, diskPath: diskPath}, nil
}

func (c *Collector) SourceID() string { return c.sourceID }

// Collect takes one reading. CPU usage is measured since the previous
// call, so periodic callers get per-interval averages.
func (c *Collector) Collect(ctx context.Context) (telemetry.NewSample, error) {
	sample := telemetry.NewSample{SourceID: c.sourceID}

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return sample, fmt.Errorf("read cpu usage: %w", err)
	}
	if len(pct) > 0 {
		sample.CPU = clampPct(pct[0])
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return sample, fmt.Errorf("read memory usage: %w", err)
	}
	sample.RAM = clampPct(vm.UsedPercent)

	du, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return sample, fmt.Errorf("read disk usage for %s: %w", c.diskPath, err)
	}
	sample.Disk = clampPct(du.UsedPercent)

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return sample, fmt.Errorf("read uptime: %w", err)
	}
	sample.UptimeSeconds = int64(uptime)

	sample.OS = osLabel(ctx)
	return sample, nil
}

// clampPct forces a reading into [0,100]. gopsutil can report slightly
// above 100 on some platforms.
func clampPct(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// osLabel identifies the OS distribution and version, falling back to
// the bare GOOS name when host info is unavailable.
func osLabel(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err != nil || info.Platform == "" {
		return runtime.GOOS
	}
	label := info.Platform
	if info.PlatformVersion != "" {
		label += " " + info.PlatformVersion
	}
	return label
}
