package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/motorwatch/motorwatch/internal/alert"
	"github.com/motorwatch/motorwatch/internal/combine"
	"github.com/motorwatch/motorwatch/internal/metrics"
	"github.com/motorwatch/motorwatch/internal/window"
	"github.com/motorwatch/motorwatch/pkg/types"
)

const (
	// readingBuffer is the per-sensor reading channel depth. A full buffer
	// blocks only the owning connection's reader.
	readingBuffer = 64

	// averageBuffer is the per-motor-group average channel depth.
	averageBuffer = 16
)

// threadedEngine is the ClientServer variant: one goroutine per sensor
// (window aggregation) and one per motor group (combine, evaluate, ship),
// wired by bounded channels. Producers block on a full channel rather than
// dropping data.
type threadedEngine struct {
	cfg Config
}

func (e *threadedEngine) Run(ctx context.Context) error {
	p := e.cfg.Params
	sensors := p.SensorCount()

	readings := make([]chan types.SensorReading, sensors)
	for i := range readings {
		readings[i] = make(chan types.SensorReading, readingBuffer)
	}
	averages := make([]chan types.SensorAverage, p.MotorGroups)
	for i := range averages {
		averages[i] = make(chan types.SensorAverage, averageBuffer)
	}

	var wg sync.WaitGroup
	for m := 0; m < p.MotorGroups; m++ {
		wg.Add(1)
		go func(motorID uint32, in <-chan types.SensorAverage) {
			defer wg.Done()
			e.runGroup(ctx, motorID, in)
		}(uint32(m), averages[m])
	}
	for s := 0; s < sensors; s++ {
		wg.Add(1)
		go func(sensorID uint32, in <-chan types.SensorReading, out chan<- types.SensorAverage) {
			defer wg.Done()
			e.runSensor(ctx, sensorID, in, out)
		}(uint32(s), readings[s], averages[types.MotorOf(uint32(s))])
	}

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		e.cfg.Ingest.Serve(ctx, sensors, func(r types.SensorReading) {
			if int(r.SensorID) >= sensors {
				slog.Warn("engine: reading for unknown sensor dropped", "sensor", r.SensorID)
				return
			}
			select {
			case readings[r.SensorID] <- r:
			case <-ctx.Done():
			}
		})
	}()

	slog.Info("engine: threaded pipeline running",
		"sensors", sensors, "motor_groups", p.MotorGroups)

	wg.Wait()
	<-ingestDone
	slog.Info("engine: threaded pipeline drained")
	return nil
}

// runSensor owns one sensor's window aggregator: readings accumulate as they
// arrive, and each cadence tick emits the window average downstream.
func (e *threadedEngine) runSensor(ctx context.Context, sensorID uint32, in <-chan types.SensorReading, out chan<- types.SensorAverage) {
	p := e.cfg.Params
	agg := window.New(sensorID, p.StartTime, p.WindowSize, p.Cadence)

	tick := time.NewTicker(p.Cadence)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			// Partial window discarded, never force-flushed.
			return
		case r := <-in:
			agg.Add(r)
		case now := <-tick.C:
			avg, ok := agg.Tick(now)
			if !ok {
				metrics.EmptyWindows.Inc()
				continue
			}
			metrics.AveragesEmitted.Inc()
			select {
			case out <- avg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runGroup owns one motor group: it joins same-window averages, evaluates the
// combined value, and ships any alert.
func (e *threadedEngine) runGroup(ctx context.Context, motorID uint32, in <-chan types.SensorAverage) {
	p := e.cfg.Params
	comb := combine.New(motorID, p.Cadence)
	eval := alert.NewEvaluator(e.cfg.Table)

	tick := time.NewTicker(p.Cadence)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			// Windows still collecting are discarded.
			return
		case avg := <-in:
			e.ship(eval, comb.Observe(avg, time.Now()))
		case now := <-tick.C:
			e.ship(eval, comb.Tick(now))
		}
	}
}

func (e *threadedEngine) ship(eval *alert.Evaluator, crs []types.CombinedReading) {
	for _, cr := range crs {
		if ev, ok := eval.Check(cr); ok {
			e.cfg.Sink.Send(ev)
		}
	}
}
