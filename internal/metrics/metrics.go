// Package metrics exports the engine's internal Prometheus counters and an
// optional debug exposition endpoint. The counters are diagnostics for the
// operator; the benchmark result itself is the RunMetrics record.
package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

var (
	// ReadingsDecoded counts sensor readings successfully decoded from
	// inbound connections.
	ReadingsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_readings_decoded_total",
		Help: "Total sensor readings decoded from inbound connections",
	})

	// DecodeFailures counts malformed records; each one ends its sensor's
	// stream.
	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_decode_failures_total",
		Help: "Total malformed records that ended a sensor stream",
	})

	// AveragesEmitted counts window averages produced across all sensors.
	AveragesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_averages_emitted_total",
		Help: "Total window averages emitted across all sensors",
	})

	// EmptyWindows counts cadence ticks that found no retained readings.
	EmptyWindows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_empty_windows_total",
		Help: "Total cadence ticks skipped because the window held no readings",
	})

	// WindowsCombined counts finalized combined readings across all motors.
	WindowsCombined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_windows_combined_total",
		Help: "Total combined readings finalized across all motor groups",
	})

	// DegradedWindows counts windows combined from fewer than four sensors.
	DegradedWindows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_degraded_windows_total",
		Help: "Total windows combined from a subset of their sensors",
	})

	// LateAveragesDropped counts averages discarded because their window had
	// already finalized.
	LateAveragesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_late_averages_dropped_total",
		Help: "Total sensor averages discarded for already-finalized windows",
	})

	// AlertsEmitted counts confidence interval violations.
	AlertsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_alerts_emitted_total",
		Help: "Total combined readings outside their confidence interval",
	})

	// AlertSendFailures counts alerts dropped by the sink on delivery errors.
	AlertSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motorwatch_alert_send_failures_total",
		Help: "Total alert events dropped because delivery to the collector failed",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled. It is a debug
// surface and never fails the run: errors are returned for logging only.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// DumpText writes the current state of every registered metric to w in the
// Prometheus text exposition format. Used at shutdown so a run's counters are
// inspectable without scraping.
func DumpText(w io.Writer) error {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	return encodeFamilies(expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain)), mfs)
}

func encodeFamilies(enc expfmt.Encoder, mfs []*dto.MetricFamily) error {
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
