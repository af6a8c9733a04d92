// Package alert evaluates combined motor readings against the run's
// confidence interval table.
//
// The table is built once from configuration before any component starts and
// never mutates, so it is shared across motor groups without synchronization.
package alert

import (
	"github.com/motorwatch/motorwatch/internal/config"
	"github.com/motorwatch/motorwatch/internal/metrics"
	"github.com/motorwatch/motorwatch/pkg/types"
)

// Table maps motor ids to their confidence intervals. Motors without an
// explicit entry use the default interval.
type Table struct {
	def    config.Interval
	motors map[uint32]config.Interval
}

// NewTable builds an immutable Table from the parsed interval configuration.
func NewTable(iv *config.Intervals) Table {
	motors := make(map[uint32]config.Interval, len(iv.Motors))
	for _, m := range iv.Motors {
		motors[m.MotorID] = m.Interval
	}
	return Table{def: iv.Default, motors: motors}
}

// Interval returns motorID's confidence interval.
func (t Table) Interval(motorID uint32) types.ConfidenceInterval {
	in, ok := t.motors[motorID]
	if !ok {
		in = t.def
	}
	return types.ConfidenceInterval{MotorID: motorID, Lower: in.Lower, Upper: in.Upper}
}

// Evaluator is the stateless per-motor-group alert check.
type Evaluator struct {
	table Table
}

// NewEvaluator creates an Evaluator over table.
func NewEvaluator(table Table) *Evaluator {
	return &Evaluator{table: table}
}

// Check tests one combined reading against its motor's interval. ok is true
// only when the value lies strictly outside the interval — boundary values
// are in bound and produce no alert.
func (e *Evaluator) Check(cr types.CombinedReading) (types.AlertEvent, bool) {
	if e.table.Interval(cr.MotorID).Contains(cr.Value) {
		return types.AlertEvent{}, false
	}
	metrics.AlertsEmitted.Inc()
	return types.AlertEvent{
		MotorID:   cr.MotorID,
		Timestamp: types.Epoch(cr.WindowEnd),
		Value:     float32(cr.Value),
	}, true
}
