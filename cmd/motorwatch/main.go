package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/motorwatch/motorwatch/internal/alert"
	"github.com/motorwatch/motorwatch/internal/bench"
	"github.com/motorwatch/motorwatch/internal/config"
	"github.com/motorwatch/motorwatch/internal/engine"
	"github.com/motorwatch/motorwatch/internal/ingest"
	"github.com/motorwatch/motorwatch/internal/metrics"
	"github.com/motorwatch/motorwatch/internal/sink"
	"github.com/motorwatch/motorwatch/pkg/types"
)

// Run states, logged at every transition so the harness can line up the
// monitor's timeline with the sensors'.
const (
	stateIdle       = "Idle"
	stateWaiting    = "WaitingForStartTime"
	stateRunning    = "Running"
	stateDraining   = "Draining"
	stateTerminated = "Terminated"
)

func main() {
	intervalsPath := flag.String("intervals", "intervals.yaml", "path to confidence-interval table")
	logLevel := flag.String("log-level", "info", "log level (debug|info|warn|error)")
	metricsAddr := flag.String("metrics-addr", "", "optional debug /metrics listen address")
	metricsDump := flag.Bool("metrics-dump", false, "write Prometheus text exposition to stderr at exit")
	flag.Parse()

	// stdout carries exactly one JSON metrics record at exit; everything
	// else, logs included, goes to stderr.
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	params, err := config.ParseArgs(flag.Args())
	if err != nil {
		slog.Error("invalid run parameters", "err", err)
		os.Exit(1)
	}
	slog.Info("motorwatch starting",
		"state", stateIdle,
		"model", params.Model,
		"motor_groups", params.MotorGroups,
		"window_size", params.WindowSize,
		"cadence", params.Cadence,
		"start_time", params.StartTime,
		"duration", params.Duration,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The harness writes the interval table concurrently with process spawn,
	// so it may not be on disk yet. Give it until the run is due to start.
	waitCtx, waitCancel := context.WithDeadline(ctx, laterOf(params.StartTime, time.Now().Add(5*time.Second)))
	intervals, err := config.WaitForIntervals(waitCtx, *intervalsPath)
	waitCancel()
	if err != nil {
		slog.Error("confidence-interval table unavailable", "path", *intervalsPath, "err", err)
		os.Exit(1)
	}
	table := alert.NewTable(intervals)
	slog.Info("interval table loaded", "path", *intervalsPath, "motor_overrides", len(intervals.Motors))

	srv, err := ingest.Listen(params.SensorListenAddr)
	if err != nil {
		slog.Error("cannot bind sensor listener", "addr", params.SensorListenAddr, "err", err)
		os.Exit(1)
	}
	defer srv.Close()
	slog.Info("sensor listener bound", "addr", srv.Addr())

	// A missing collector is not fatal: alerts are dropped and counted, the
	// run itself proceeds.
	alertSink, err := sink.Dial(params.CollectorAddr)
	if err != nil {
		slog.Warn("collector unreachable, alerts will be dropped", "addr", params.CollectorAddr, "err", err)
	}
	defer alertSink.Close()

	if *metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, *metricsAddr); err != nil {
				slog.Warn("metrics endpoint stopped", "err", err)
			}
		}()
	}

	eng, err := engine.New(engine.Config{
		Params: params,
		Table:  table,
		Ingest: srv,
		Sink:   alertSink,
	})
	if err != nil {
		slog.Error("cannot build engine", "err", err)
		os.Exit(1)
	}

	slog.Info("waiting for start time", "state", stateWaiting, "start_time", params.StartTime)
	if !sleepUntil(ctx, params.StartTime) {
		slog.Info("interrupted before start", "state", stateTerminated)
		return
	}

	slog.Info("run started", "state", stateRunning, "end_time", params.EndTime())
	runCtx, runCancel := context.WithDeadline(ctx, params.EndTime())
	runErr := eng.Run(runCtx)
	runCancel()

	// Run returns only after the engine has drained: partial windows are
	// discarded, in-flight alerts delivered.
	slog.Info("run complete", "state", stateDraining)
	if runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) {
		slog.Warn("engine stopped with error", "err", runErr)
	}

	if *metricsDump {
		if err := metrics.DumpText(os.Stderr); err != nil {
			slog.Warn("metrics dump failed", "err", err)
		}
	}
	writeRunMetrics()
	slog.Info("motorwatch exiting", "state", stateTerminated)
}

// writeRunMetrics puts the process-accounting record on stdout. Platforms
// without procfs get a zero-valued record rather than a failed run.
func writeRunMetrics() {
	m := types.RunMetrics{DataType: bench.DataTypeMotorMonitor}
	if c, err := bench.NewCollector(); err != nil {
		slog.Warn("procfs unavailable, emitting zero metrics", "err", err)
	} else if m, err = c.Snapshot(0); err != nil {
		slog.Warn("resource snapshot incomplete", "err", err)
	}
	if err := bench.WriteTo(os.Stdout, m); err != nil {
		slog.Error("cannot write run metrics", "err", err)
	}
}

// laterOf returns the later of two instants.
func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// sleepUntil blocks until t or ctx cancellation; it reports whether t was
// reached.
func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
