package monitor

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// Sample is one metric reading from a collection cycle.
type Sample struct {
	Type  string
	Value float64
	Unit  string
}

// Collector produces the samples a cycle evaluates rules against.
type Collector interface {
	Collect(ctx context.Context) ([]Sample, error)
}

type systemCollector struct {
	diskPath string
}

// NewSystemCollector reads host metrics. diskPath is the mount point the
// disk probes report on.
func NewSystemCollector(diskPath string) Collector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &systemCollector{diskPath: diskPath}
}

// Collect is best effort: a failing probe is skipped and reported in the
// joined error while the remaining samples are still returned.
func (c *systemCollector) Collect(ctx context.Context) ([]Sample, error) {
	var samples []Sample
	var errs []error

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, err)
	} else if len(percents) > 0 {
		samples = append(samples, Sample{Type: "cpu_percent", Value: percents[0], Unit: "percent"})
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		samples = append(samples,
			Sample{Type: "memory_percent", Value: vm.UsedPercent, Unit: "percent"},
			Sample{Type: "memory_available_mb", Value: float64(vm.Available) / (1 << 20), Unit: "MB"},
		)
	}

	if usage, err := disk.UsageWithContext(ctx, c.diskPath); err != nil {
		errs = append(errs, err)
	} else {
		samples = append(samples,
			Sample{Type: "disk_percent", Value: usage.UsedPercent, Unit: "percent"},
			Sample{Type: "disk_free_gb", Value: float64(usage.Free) / (1 << 30), Unit: "GB"},
		)
	}

	if counters, err := disk.IOCountersWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else if len(counters) > 0 {
		var read, write uint64
		for _, d := range counters {
			read += d.ReadBytes
			write += d.WriteBytes
		}
		samples = append(samples,
			Sample{Type: "disk_read_mb", Value: float64(read) / (1 << 20), Unit: "MB"},
			Sample{Type: "disk_write_mb", Value: float64(write) / (1 << 20), Unit: "MB"},
		)
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		samples = append(samples,
			Sample{Type: "load_1", Value: avg.Load1, Unit: "load"},
			Sample{Type: "load_5", Value: avg.Load5, Unit: "load"},
			Sample{Type: "load_15", Value: avg.Load15, Unit: "load"},
		)
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err != nil {
		errs = append(errs, err)
	} else if len(counters) > 0 {
		samples = append(samples,
			Sample{Type: "net_sent_mb", Value: float64(counters[0].BytesSent) / (1 << 20), Unit: "MB"},
			Sample{Type: "net_recv_mb", Value: float64(counters[0].BytesRecv) / (1 << 20), Unit: "MB"},
		)
	}

	return samples, errors.Join(errs...)
}
