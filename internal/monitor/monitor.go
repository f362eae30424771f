// Package monitor periodically samples host CPU and memory usage.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/vovakirdan/linechat/internal/metrics"
)

// Usage is one host sample, in percent.
type Usage struct {
	CPU    float64
	Memory float64
}

// Sampler reads current host usage.
type Sampler func(ctx context.Context) (Usage, error)

// HostSampler reads usage through gopsutil. CPU usage is measured since the previous call.
func HostSampler(ctx context.Context) (Usage, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Usage{}, fmt.Errorf("cpu percent: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("virtual memory: %w", err)
	}

	u := Usage{Memory: vm.UsedPercent}
	if len(cpuPercent) > 0 {
		u.CPU = cpuPercent[0]
	}
	return u, nil
}

// Monitor logs and exports host usage together with the online session count.
type Monitor struct {
	interval time.Duration
	sample   Sampler
	online   func() int
	metrics  *metrics.Metrics
	log      *zerolog.Logger
}

// New builds a monitor. online and m may be nil.
func New(interval time.Duration, sample Sampler, online func() int, m *metrics.Metrics, logger *zerolog.Logger) *Monitor {
	return &Monitor{
		interval: interval,
		sample:   sample,
		online:   online,
		metrics:  m,
		log:      logger,
	}
}

// Run samples every interval until ctx is done. A non-positive interval
// disables sampling and Run returns immediately.
func (m *Monitor) Run(ctx context.Context) error {
	if m.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	u, err := m.sample(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("host sample failed")
		return
	}
	m.metrics.SetHostUsage(u.CPU, u.Memory)

	ev := m.log.Info().Float64("cpu_percent", u.CPU).Float64("memory_percent", u.Memory)
	if m.online != nil {
		ev = ev.Int("online", m.online())
	}
	ev.Msg("server stats")
}
