package combine

import (
	"math"
	"testing"
	"time"

	"github.com/motorwatch/motorwatch/pkg/types"
)

var origin = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	windowSize = 500 * time.Millisecond
	cadence    = 250 * time.Millisecond
)

func at(d time.Duration) time.Time { return origin.Add(d) }

// avg builds a SensorAverage for the given motor-0 sensor index and the
// window ending at origin+end.
func avg(index uint32, end time.Duration, mean float64) types.SensorAverage {
	return types.SensorAverage{
		SensorID:    types.SensorID(0, index),
		MotorID:     0,
		WindowStart: at(end - windowSize),
		WindowEnd:   at(end),
		Mean:        mean,
	}
}

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

// --- Complete windows ---

func TestObserve_FinalizesWhenAllFourReport(t *testing.T) {
	c := New(0, cadence)
	now := at(cadence)

	for i, mean := range []float64{10, 20, 30} {
		if got := c.Observe(avg(uint32(i), cadence, mean), now); len(got) != 0 {
			t.Fatalf("after %d averages: finalized %d windows, want 0", i+1, len(got))
		}
	}
	got := c.Observe(avg(3, cadence, 40), now)
	if len(got) != 1 {
		t.Fatalf("after 4th average: finalized %d windows, want 1", len(got))
	}
	cr := got[0]
	if !almostEqual(cr.Value, 25, 1e-9) {
		t.Errorf("Value = %v, want 25", cr.Value)
	}
	if cr.MotorID != 0 || !cr.WindowEnd.Equal(at(cadence)) {
		t.Errorf("combined = %+v, want motor 0 window end origin+250ms", cr)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
}

func TestObserve_DuplicateSensorIgnored(t *testing.T) {
	c := New(0, cadence)
	now := at(cadence)

	c.Observe(avg(0, cadence, 10), now)
	c.Observe(avg(0, cadence, 999), now) // duplicate from the same sensor
	c.Observe(avg(1, cadence, 20), now)
	c.Observe(avg(2, cadence, 30), now)
	got := c.Observe(avg(3, cadence, 40), now)

	if len(got) != 1 {
		t.Fatalf("finalized %d windows, want 1", len(got))
	}
	if !almostEqual(got[0].Value, 25, 1e-9) {
		t.Errorf("Value = %v, want 25 (duplicate ignored)", got[0].Value)
	}
}

// --- Bounded wait / degraded subsets ---

func TestTick_GraceExpiryCombinesSubset(t *testing.T) {
	c := New(0, cadence)

	// Sensor 2 never reports (disconnected at 300ms, say).
	c.Observe(avg(0, cadence, 10), at(cadence))
	c.Observe(avg(1, cadence, 20), at(cadence))
	c.Observe(avg(3, cadence, 60), at(cadence))

	// Still within grace: nothing finalizes.
	if got := c.Tick(at(cadence + cadence/2)); len(got) != 0 {
		t.Fatalf("within grace: finalized %d windows, want 0", len(got))
	}

	got := c.Tick(at(2 * cadence))
	if len(got) != 1 {
		t.Fatalf("past grace: finalized %d windows, want 1", len(got))
	}
	if !almostEqual(got[0].Value, 30, 1e-9) {
		t.Errorf("Value = %v, want 30 (mean of the 3 reporting sensors)", got[0].Value)
	}
}

func TestTick_ZeroSensorWindowNeverEmits(t *testing.T) {
	c := New(0, cadence)

	// No averages at all: ticks must not fabricate a combined reading.
	if got := c.Tick(at(10 * cadence)); len(got) != 0 {
		t.Errorf("empty combiner tick: finalized %d windows, want 0", len(got))
	}
}

// --- Ordering ---

func TestFinalize_NonDecreasingWindowStart(t *testing.T) {
	// Generous grace so window A is still waiting when B completes.
	c := New(0, 2*cadence)

	// Window A (end 250ms) incomplete; window B (end 500ms) completes first.
	c.Observe(avg(0, cadence, 1), at(cadence))
	for i := uint32(0); i < 4; i++ {
		c.Observe(avg(i, 2*cadence, 10), at(2*cadence))
	}
	// B is complete but must wait for A, which is still within grace.
	if c.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2 (complete window held behind incomplete head)", c.Pending())
	}

	// Once A's grace expires, both finalize in order.
	got := c.Tick(at(2*cadence + cadence))
	if len(got) != 2 {
		t.Fatalf("finalized %d windows, want 2", len(got))
	}
	if !got[0].WindowStart.Before(got[1].WindowStart) {
		t.Errorf("finalization order: %v then %v, want non-decreasing",
			got[0].WindowStart, got[1].WindowStart)
	}
	if !almostEqual(got[0].Value, 1, 1e-9) || !almostEqual(got[1].Value, 10, 1e-9) {
		t.Errorf("values = %v, %v, want 1, 10", got[0].Value, got[1].Value)
	}
}

func TestObserve_LateAverageDiscarded(t *testing.T) {
	c := New(0, cadence)

	for i := uint32(0); i < 4; i++ {
		c.Observe(avg(i, cadence, 10), at(cadence))
	}

	// A straggler for the already-finalized window must not resurrect it.
	got := c.Observe(avg(2, cadence, 999), at(3*cadence))
	if len(got) != 0 {
		t.Fatalf("late average finalized %d windows, want 0", len(got))
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0 (late average discarded)", c.Pending())
	}
}

// --- Spec scenario: sensor 2 disconnects at 300ms ---

func TestScenario_DisconnectedSensorDegradesSubsequentWindows(t *testing.T) {
	c := New(0, cadence)

	var all []types.CombinedReading
	// Window 1 (end 250ms): all four sensors report.
	for i := uint32(0); i < 4; i++ {
		all = append(all, c.Observe(avg(i, cadence, float64(10*(i+1))), at(cadence))...)
	}
	// Windows 2..4: sensor 2 is gone.
	for w := time.Duration(2); w <= 4; w++ {
		end := w * cadence
		for _, i := range []uint32{0, 1, 3} {
			all = append(all, c.Observe(avg(i, end, float64(10*(i+1))), at(end))...)
		}
		all = append(all, c.Tick(at(end+cadence))...)
	}

	if len(all) != 4 {
		t.Fatalf("combined %d windows, want 4", len(all))
	}
	if !almostEqual(all[0].Value, 25, 1e-9) {
		t.Errorf("window 1 Value = %v, want 25 (all four sensors)", all[0].Value)
	}
	for i, cr := range all[1:] {
		// Mean over sensors 0, 1, 3: (10+20+40)/3.
		if !almostEqual(cr.Value, 70.0/3, 1e-9) {
			t.Errorf("window %d Value = %v, want %v (sensors 0,1,3)", i+2, cr.Value, 70.0/3)
		}
	}
	for i := 1; i < len(all); i++ {
		if all[i].WindowStart.Before(all[i-1].WindowStart) {
			t.Errorf("window starts regressed: %v after %v", all[i].WindowStart, all[i-1].WindowStart)
		}
	}
}
