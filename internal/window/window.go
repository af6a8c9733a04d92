// Package window implements the per-sensor sliding-window aggregator: an
// append-only buffer of recent readings from which a periodic time-windowed
// average is derived.
//
// Aggregator is a pure state machine — callers (and tests) drive it with an
// explicit clock, so both engine variants share identical windowing semantics
// and tests never sleep.
package window

import (
	"time"

	"github.com/motorwatch/motorwatch/pkg/types"
)

// entry is one buffered reading.
type entry struct {
	at    time.Time
	value float32
}

// Aggregator buffers one sensor's readings and emits a window average on each
// cadence tick. Window bounds align to the run-global origin in fixed
// increments of the cadence, independent of the sensor's emission rate.
//
// Aggregator is not safe for concurrent use; each sensor's execution unit
// owns exactly one.
type Aggregator struct {
	sensorID uint32
	motorID  uint32
	origin   time.Time
	size     time.Duration
	cadence  time.Duration

	buf []entry

	// lastEnd is the window end of the most recent emission attempt, so a
	// late-firing tick never re-emits the same window.
	lastEnd time.Time
}

// New creates an Aggregator for sensorID with windows aligned to origin.
func New(sensorID uint32, origin time.Time, size, cadence time.Duration) *Aggregator {
	return &Aggregator{
		sensorID: sensorID,
		motorID:  types.MotorOf(sensorID),
		origin:   origin,
		size:     size,
		cadence:  cadence,
		lastEnd:  origin, // the first emittable window ends at origin+cadence
	}
}

// Add buffers one reading. Readings are kept in arrival order; pruning
// happens on the next tick.
func (a *Aggregator) Add(r types.SensorReading) {
	a.buf = append(a.buf, entry{at: types.EpochTime(r.Timestamp), value: r.Value})
}

// Len returns the number of buffered readings.
func (a *Aggregator) Len() int { return len(a.buf) }

// Tick advances the aggregator to now: it derives the latest origin-aligned
// window ending at or before now, discards buffered readings older than the
// window, and returns the mean of the retained readings.
//
// ok is false when the tick produces nothing — either the window is empty
// (no fabricated zero average) or no new grid point has been reached since
// the previous tick.
func (a *Aggregator) Tick(now time.Time) (avg types.SensorAverage, ok bool) {
	end := a.alignedEnd(now)
	if !end.After(a.lastEnd) {
		return types.SensorAverage{}, false
	}
	a.lastEnd = end
	start := end.Add(-a.size)

	// Drop entries that fell out of the window. The buffer is in arrival
	// order, which for a single connection is timestamp order.
	keep := a.buf[:0]
	for _, e := range a.buf {
		if !e.at.Before(start) {
			keep = append(keep, e)
		}
	}
	a.buf = keep

	// Average only entries inside [start, end]; anything newer than the grid
	// point stays buffered for the next window.
	var sum float64
	var n int
	for _, e := range a.buf {
		if e.at.After(end) {
			continue
		}
		sum += float64(e.value)
		n++
	}
	if n == 0 {
		return types.SensorAverage{}, false
	}

	return types.SensorAverage{
		SensorID:    a.sensorID,
		MotorID:     a.motorID,
		WindowStart: start,
		WindowEnd:   end,
		Mean:        sum / float64(n),
	}, true
}

// alignedEnd returns the latest grid point origin + k*cadence that is not
// after now.
func (a *Aggregator) alignedEnd(now time.Time) time.Time {
	elapsed := now.Sub(a.origin)
	if elapsed < 0 {
		return a.origin.Add(-a.cadence)
	}
	return a.origin.Add(elapsed - elapsed%a.cadence)
}
