// Package bench captures the process-accounting counters reported at exit.
//
// The counters come from /proc via prometheus/procfs, behind a narrow
// Collector so platforms without procfs (or sandboxed test runs) degrade to
// a zero-valued record instead of failing the run. The record is the
// process's sole stdout payload; everything else logs to stderr.
package bench

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/procfs"

	"github.com/motorwatch/motorwatch/pkg/types"
)

// DataTypeMotorMonitor tags the metrics record as coming from the monitor
// process (the harness also collects records from sensor processes).
const DataTypeMotorMonitor = "MotorMonitor"

// Collector reads resource usage for the current process.
type Collector struct {
	fs   procfs.FS
	proc procfs.Proc
}

// NewCollector opens /proc for the current process.
func NewCollector() (*Collector, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("bench: open procfs: %w", err)
	}
	proc, err := fs.Self()
	if err != nil {
		return nil, fmt.Errorf("bench: open self: %w", err)
	}
	return &Collector{fs: fs, proc: proc}, nil
}

// Snapshot reads the current accounting counters into a RunMetrics record.
// CPU times are in clock ticks, memory sizes in bytes, matching what the
// harness's post-processing expects.
func (c *Collector) Snapshot(id uint32) (types.RunMetrics, error) {
	m := types.RunMetrics{ID: id, DataType: DataTypeMotorMonitor}

	stat, err := c.proc.Stat()
	if err != nil {
		return m, fmt.Errorf("bench: read stat: %w", err)
	}
	m.UserTime = uint64(stat.UTime)
	m.KernelTime = uint64(stat.STime)
	m.ChildUserTime = int64(stat.CUTime)
	m.ChildKernelTime = int64(stat.CSTime)

	status, err := c.proc.NewStatus()
	if err != nil {
		return m, fmt.Errorf("bench: read status: %w", err)
	}
	m.PeakRSS = status.VmHWM
	m.PeakVSize = status.VmPeak

	load, err := c.fs.LoadAvg()
	if err != nil {
		return m, fmt.Errorf("bench: read loadavg: %w", err)
	}
	m.LoadAverage = load.Load1

	return m, nil
}

// WriteTo encodes m as a single JSON line on w.
func WriteTo(w io.Writer, m types.RunMetrics) error {
	if err := json.NewEncoder(w).Encode(m); err != nil {
		return fmt.Errorf("bench: write metrics: %w", err)
	}
	return nil
}
