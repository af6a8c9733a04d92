// Package combine joins same-window sensor averages into one combined reading
// per motor group.
//
// A window finalizes as soon as all four sensors have reported, or after a
// bounded grace period past the window's scheduled end — a stalled or
// disconnected sensor degrades the combination to the available subset
// instead of blocking the pipeline. Windows finalize in non-decreasing
// window-start order; averages for already-finalized windows are discarded.
//
// Like window.Aggregator, Combiner is a clock-driven state machine owned by a
// single execution unit.
package combine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/motorwatch/motorwatch/internal/metrics"
	"github.com/motorwatch/motorwatch/pkg/types"
)

// slot accumulates the averages reported for one window.
type slot struct {
	start time.Time
	end   time.Time
	sum   float64
	got   [types.SensorsPerMotor]bool
	count int
}

func (s *slot) complete() bool { return s.count == types.SensorsPerMotor }

// Combiner collects sensor averages for one motor group, keyed by window
// start, and finalizes windows in order.
type Combiner struct {
	motorID uint32
	grace   time.Duration

	pending map[int64]*slot // keyed by WindowStart UnixNano

	// lastFinalized guards ordering: an average for a window at or before it
	// arrives too late and is dropped.
	lastFinalized time.Time
	hasFinalized  bool
}

// New creates a Combiner for motorID. grace bounds how long an incomplete
// window may wait for stragglers past its scheduled end.
func New(motorID uint32, grace time.Duration) *Combiner {
	return &Combiner{
		motorID: motorID,
		grace:   grace,
		pending: make(map[int64]*slot),
	}
}

// Observe records one sensor average and returns any windows that finalize
// as a result, oldest first.
func (c *Combiner) Observe(avg types.SensorAverage, now time.Time) []types.CombinedReading {
	if c.hasFinalized && !avg.WindowStart.After(c.lastFinalized) {
		metrics.LateAveragesDropped.Inc()
		slog.Debug("combine: dropped late average",
			"motor", c.motorID,
			"sensor", avg.SensorID,
			"window_start", avg.WindowStart,
		)
		return c.finalize(now)
	}

	key := avg.WindowStart.UnixNano()
	s, ok := c.pending[key]
	if !ok {
		s = &slot{start: avg.WindowStart, end: avg.WindowEnd}
		c.pending[key] = s
	}
	idx := types.SensorIndex(avg.SensorID)
	if s.got[idx] {
		// One average per sensor per window; a duplicate replaces nothing.
		return c.finalize(now)
	}
	s.got[idx] = true
	s.sum += avg.Mean
	s.count++

	return c.finalize(now)
}

// Tick finalizes any windows whose grace period has expired by now.
// Call it on the windowing cadence so stalled sensors cannot hold a window
// open indefinitely.
func (c *Combiner) Tick(now time.Time) []types.CombinedReading {
	return c.finalize(now)
}

// Pending returns the number of windows still collecting averages.
func (c *Combiner) Pending() int { return len(c.pending) }

// finalize emits, in window order, every head window that is either complete
// or past its grace deadline. An incomplete head within grace blocks younger
// windows — ordering beats latency here.
func (c *Combiner) finalize(now time.Time) []types.CombinedReading {
	if len(c.pending) == 0 {
		return nil
	}

	keys := make([]int64, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []types.CombinedReading
	for _, k := range keys {
		s := c.pending[k]
		if !s.complete() && now.Before(s.end.Add(c.grace)) {
			break
		}
		delete(c.pending, k)
		c.lastFinalized = s.start
		c.hasFinalized = true

		// A slot only exists because at least one average arrived, so the
		// subset mean is always defined.
		out = append(out, types.CombinedReading{
			MotorID:     c.motorID,
			WindowStart: s.start,
			WindowEnd:   s.end,
			Value:       s.sum / float64(s.count),
		})
		metrics.WindowsCombined.Inc()
		if !s.complete() {
			metrics.DegradedWindows.Inc()
		}
	}
	return out
}
