package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/motorwatch/motorwatch/internal/alert"
	"github.com/motorwatch/motorwatch/internal/combine"
	"github.com/motorwatch/motorwatch/internal/dataflow"
	"github.com/motorwatch/motorwatch/internal/metrics"
	"github.com/motorwatch/motorwatch/internal/window"
	"github.com/motorwatch/motorwatch/pkg/types"
)

const (
	// poolSize is the fixed number of workers driving the operator graph.
	poolSize = 4

	// mailboxDepth bounds each operator's inbox for external producers, so a
	// slow operator suspends only the connection readers feeding it.
	mailboxDepth = 64
)

// tickEvent is the timer event driving window emission and combiner grace
// expiry.
type tickEvent struct {
	now time.Time
}

// dataflowEngine is the ReactiveStreaming variant: a static operator graph
// (window → combine → evaluate → ship) scheduled cooperatively by a small
// worker pool on data-arrival and timer events.
type dataflowEngine struct {
	cfg Config
}

func (e *dataflowEngine) Run(ctx context.Context) error {
	p := e.cfg.Params
	sensors := p.SensorCount()

	g := dataflow.New(poolSize, mailboxDepth)

	// The graph is built sink-first. A single ship operator keeps the
	// collector connection exclusively owned even though writes already
	// serialize inside the sink.
	shipNode := g.Add(dataflow.OperatorFunc(func(ev dataflow.Event, _ func(dataflow.Event)) {
		e.cfg.Sink.Send(ev.(types.AlertEvent))
	}))

	evalNodes := make([]*dataflow.Node, p.MotorGroups)
	for m := range evalNodes {
		eval := alert.NewEvaluator(e.cfg.Table)
		evalNodes[m] = g.Add(dataflow.OperatorFunc(func(ev dataflow.Event, emit func(dataflow.Event)) {
			if a, ok := eval.Check(ev.(types.CombinedReading)); ok {
				emit(a)
			}
		}), shipNode)
	}

	combineNodes := make([]*dataflow.Node, p.MotorGroups)
	for m := range combineNodes {
		comb := combine.New(uint32(m), p.Cadence)
		combineNodes[m] = g.Add(dataflow.OperatorFunc(func(ev dataflow.Event, emit func(dataflow.Event)) {
			var finalized []types.CombinedReading
			switch ev := ev.(type) {
			case types.SensorAverage:
				finalized = comb.Observe(ev, time.Now())
			case tickEvent:
				finalized = comb.Tick(ev.now)
			}
			for _, cr := range finalized {
				emit(cr)
			}
		}), evalNodes[m])
	}

	windowNodes := make([]*dataflow.Node, sensors)
	for s := range windowNodes {
		agg := window.New(uint32(s), p.StartTime, p.WindowSize, p.Cadence)
		windowNodes[s] = g.Add(dataflow.OperatorFunc(func(ev dataflow.Event, emit func(dataflow.Event)) {
			switch ev := ev.(type) {
			case types.SensorReading:
				agg.Add(ev)
			case tickEvent:
				if avg, ok := agg.Tick(ev.now); ok {
					metrics.AveragesEmitted.Inc()
					emit(avg)
				} else {
					metrics.EmptyWindows.Inc()
				}
			}
		}), combineNodes[types.MotorOf(uint32(s))])
	}

	newTick := func(now time.Time) dataflow.Event { return tickEvent{now: now} }
	for _, n := range windowNodes {
		n.Timer(ctx, p.Cadence, newTick)
	}
	for _, n := range combineNodes {
		n.Timer(ctx, p.Cadence, newTick)
	}

	// Connection readers are the graph's sources: each decoded reading is
	// posted to its sensor's window operator, suspending at mailbox capacity.
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		e.cfg.Ingest.Serve(ctx, sensors, func(r types.SensorReading) {
			if int(r.SensorID) >= sensors {
				slog.Warn("engine: reading for unknown sensor dropped", "sensor", r.SensorID)
				return
			}
			windowNodes[r.SensorID].Post(r)
		})
	}()

	slog.Info("engine: dataflow pipeline running",
		"sensors", sensors, "motor_groups", p.MotorGroups, "workers", poolSize)

	g.Run(ctx)
	<-ingestDone
	slog.Info("engine: dataflow pipeline drained")
	return nil
}
