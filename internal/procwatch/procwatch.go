// Package procwatch samples per-pane process liveness: whether the shell
// PID backing a pane is still running, and whether it shows CPU activity
// ("churning") worth folding into the liveness debounce alongside
// transcript-derived activity. Adapted from the teacher's hand-rolled
// /proc CPU-delta sampling (monitor/process.go) onto gopsutil/v3, which
// gives the same utime+stime-derived percentage portably and with far
// less bookkeeping.
package procwatch

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ChurnThresholdPercent is the CPU-percent floor above which a process is
// considered to be actively working rather than idling.
const ChurnThresholdPercent = 2.0

// Sample is one liveness reading for a single pane's backing process.
type Sample struct {
	PID     int32
	Alive   bool
	CPUPct  float64
	SampledAt time.Time
}

// Watcher tracks gopsutil process handles across ticks so CPU percentage
// readings reflect the delta since the previous sample rather than
// since-process-start.
type Watcher struct {
	procs map[int32]*process.Process
}

// NewWatcher returns an empty Watcher.
func NewWatcher() *Watcher {
	return &Watcher{procs: make(map[int32]*process.Process)}
}

// Sample reports liveness and CPU usage for pid. A process that no
// longer exists yields Alive=false and is dropped from the watcher's
// tracked set.
func (w *Watcher) Sample(pid int32) Sample {
	now := time.Now()
	proc, ok := w.procs[pid]
	if !ok {
		p, err := process.NewProcess(pid)
		if err != nil {
			return Sample{PID: pid, Alive: false, SampledAt: now}
		}
		proc = p
		w.procs[pid] = proc
	}

	running, err := proc.IsRunning()
	if err != nil || !running {
		delete(w.procs, pid)
		return Sample{PID: pid, Alive: false, SampledAt: now}
	}

	cpuPct, err := proc.CPUPercent()
	if err != nil {
		cpuPct = 0
	}
	return Sample{PID: pid, Alive: true, CPUPct: cpuPct, SampledAt: now}
}

// Forget drops a tracked process, used once a pane is confirmed exited.
func (w *Watcher) Forget(pid int32) {
	delete(w.procs, pid)
}

// IsChurning reports whether s shows CPU activity above ChurnThresholdPercent.
func (s Sample) IsChurning() bool {
	return s.Alive && s.CPUPct >= ChurnThresholdPercent
}
