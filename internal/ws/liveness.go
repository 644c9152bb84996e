package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskhub/realtime/internal/metrics"
)

// prober is a connection the monitor can probe and terminate.
type prober interface {
	Probe() bool
	Close() error
}

// Monitor closes connections that miss two consecutive probes. The first
// sweep after a missed pong only clears the flag; the next one terminates.
type Monitor struct {
	interval time.Duration
	targets  func() []prober
	metrics  *metrics.Metrics
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewMonitor(interval time.Duration, targets func() []prober, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	return &Monitor{
		interval: interval,
		targets:  targets,
		metrics:  m,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep ticker. Calls after the first are no-ops. The
// ticker stops when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.run(ctx)
	})
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Stop halts the ticker and waits for the sweep goroutine to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	// A monitor that never started must not start later.
	m.startOnce.Do(func() { close(m.done) })
	<-m.done
}

// Sweep probes every target once and returns how many it terminated.
func (m *Monitor) Sweep() int {
	terminated := 0
	for _, t := range m.targets() {
		if t.Probe() {
			continue
		}
		terminated++
		m.metrics.LivenessTermination()
		if err := t.Close(); err != nil {
			m.logger.Debug("close of unresponsive connection failed", "err", err)
		}
	}
	if terminated > 0 {
		m.logger.Info("terminated unresponsive connections", "count", terminated)
	}
	return terminated
}
