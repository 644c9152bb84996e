// Package procstat samples resource usage of the running server process for
// the health endpoint.
package procstat

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

type Snapshot struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

// Sampler reads stats for a single process.
type Sampler struct {
	proc *process.Process
}

// NewSampler returns a sampler for the current process.
func NewSampler(ctx context.Context) (*Sampler, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open self process: %w", err)
	}
	return &Sampler{proc: p}, nil
}

// Sample reads the current figures. Fields that cannot be read on this
// platform are left zero; only a failure to read memory is an error.
func (s *Sampler) Sample(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		PID:        s.proc.Pid,
		Goroutines: runtime.NumGoroutine(),
	}

	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("memory info: %w", err)
	}
	snap.RSSBytes = mem.RSS

	if cpu, err := s.proc.CPUPercentWithContext(ctx); err == nil {
		snap.CPUPercent = cpu
	}
	if n, err := s.proc.NumThreadsWithContext(ctx); err == nil {
		snap.Threads = n
	}
	return snap, nil
}
