package leader

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/procfs"

	"github.com/otus-tap/agent/internal/log"
)

// SystemMetricsSampler keeps a rolling CPU-load figure up to date on a
// background ticker, so the status builder never has to block waiting
// for a fresh sample. Sampling overlaps with other work; the reported
// value is always the latest complete windowed CPU aggregate.
type SystemMetricsSampler struct {
	fs procfs.FS

	mu       sync.Mutex
	lastStat procfs.Stat
	haveLast bool
	cpuLoad  float64
}

// NewSystemMetricsSampler opens the default procfs mount.
func NewSystemMetricsSampler() (*SystemMetricsSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	return &SystemMetricsSampler{fs: fs}, nil
}

// Run samples /proc/stat once per second until ctx is canceled.
func (s *SystemMetricsSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.sampleOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *SystemMetricsSampler) sampleOnce() {
	stat, err := s.fs.Stat()
	if err != nil {
		log.GetLogger().WithError(err).Warn("could not sample cpu stat, reporting stale value")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.haveLast {
		cur, prev := stat.CPUTotal, s.lastStat.CPUTotal
		userD := cur.User - prev.User
		niceD := cur.Nice - prev.Nice
		sysD := cur.System - prev.System
		irqD := (cur.IRQ - prev.IRQ) + (cur.SoftIRQ - prev.SoftIRQ)
		idleD := cur.Idle - prev.Idle
		iowaitD := cur.Iowait - prev.Iowait
		stealD := cur.Steal - prev.Steal

		total := userD + niceD + sysD + irqD + idleD + iowaitD + stealD
		if total > 0 {
			// matches the source's cpu_load = (user+nice+system+interrupt)*100
			// formula, expressed as a fraction of the sampled interval.
			s.cpuLoad = (userD + niceD + sysD + irqD) / total * 100
		}
	}
	s.lastStat = stat
	s.haveLast = true
}

// CPULoad returns the most recently computed aggregate CPU load, as a
// percentage. Zero until the second sample has landed.
func (s *SystemMetricsSampler) CPULoad() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpuLoad
}

// Memory samples /proc/meminfo directly (no windowing needed); failures
// are logged and reported as zero.
func (s *SystemMetricsSampler) Memory() (total, free uint64) {
	meminfo, err := s.fs.Meminfo()
	if err != nil {
		log.GetLogger().WithError(err).Warn("could not sample meminfo")
		return 0, 0
	}
	if meminfo.MemTotal != nil {
		total = *meminfo.MemTotal * 1024
	}
	if meminfo.MemFree != nil {
		free = *meminfo.MemFree * 1024
	}
	return total, free
}
