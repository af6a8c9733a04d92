// Package sink forwards alert events to the remote collector over the
// single persistent outbound connection opened at run start.
//
// The sink owns that connection exclusively and serializes writes, so motor
// groups alerting concurrently never interleave frames. Delivery is
// best-effort: a failed send drops the event and logs the fault — the
// collector timestamps arrivals itself and the benchmark tolerates isolated
// loss — and never aborts the run.
package sink

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/motorwatch/motorwatch/internal/metrics"
	"github.com/motorwatch/motorwatch/internal/wire"
	"github.com/motorwatch/motorwatch/pkg/types"
)

// writeTimeout bounds a single alert write so a wedged collector cannot
// stall a motor group worker indefinitely.
const writeTimeout = 5 * time.Second

// Sink delivers alert events in emission order.
type Sink struct {
	mu   sync.Mutex
	conn net.Conn // nil when the collector was unreachable at start
}

// Dial opens the collector connection. On failure it returns a disconnected
// sink alongside the error: the run proceeds and every send is dropped.
func Dial(addr string) (*Sink, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return &Sink{}, err
	}
	return &Sink{conn: conn}, nil
}

// Send transmits one alert event. Failures are logged and counted, never
// returned: no alert outcome may terminate the run.
func (s *Sink) Send(ev types.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		metrics.AlertSendFailures.Inc()
		slog.Warn("sink: no collector connection, alert dropped", "motor", ev.MotorID)
		return
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	if _, err := s.conn.Write(wire.EncodeAlert(ev)); err != nil {
		metrics.AlertSendFailures.Inc()
		slog.Warn("sink: alert delivery failed, event dropped",
			"motor", ev.MotorID, "err", err)
		return
	}
	slog.Debug("sink: alert delivered", "motor", ev.MotorID, "value", ev.Value)
}

// Close shuts the collector connection down.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
