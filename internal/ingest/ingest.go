// Package ingest accepts the inbound sensor connections and decodes their
// reading streams.
//
// One connection carries one sensor's stream. A closed connection or a
// malformed record ends that stream only — sibling sensors keep flowing.
// Back-pressure is local: a handler that blocks suspends only the owning
// connection's reader.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/motorwatch/motorwatch/internal/metrics"
	"github.com/motorwatch/motorwatch/internal/wire"
	"github.com/motorwatch/motorwatch/pkg/types"
)

// readTimeout bounds a single blocking read so a silent sensor cannot pin its
// reader goroutine past drain.
const readTimeout = 2 * time.Second

// Handler consumes one decoded reading. It may block; the block is confined
// to the reading's connection.
type Handler func(types.SensorReading)

// Server owns the sensor listener and the per-connection reader goroutines.
type Server struct {
	ln net.Listener
}

// Listen binds the sensor listener on addr. A bind failure is a
// configuration error — the caller aborts the run before any component
// starts.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close closes the listener. Established connections are shut down by their
// readers when ctx is cancelled.
func (s *Server) Close() error { return s.ln.Close() }

// Serve accepts up to conns connections, spawning one reader per connection,
// and blocks until every reader has finished. Cancelling ctx closes the
// listener and all connections.
func (s *Server) Serve(ctx context.Context, conns int, handle Handler) {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for accepted := 0; accepted < conns; accepted++ {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("ingest: accept failed", "err", err)
			// That sensor's stream never starts; the rest are unaffected.
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.readLoop(ctx, conn, handle)
		}()
	}
}

// readLoop decodes readings from one connection until the stream ends.
func (s *Server) readLoop(ctx context.Context, conn net.Conn, handle Handler) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	dec := wire.NewDecoder(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout)) //nolint:errcheck
		r, err := dec.Reading()
		if err != nil {
			s.logStreamEnd(ctx, conn, err)
			return
		}
		metrics.ReadingsDecoded.Inc()
		handle(r)
	}
}

func (s *Server) logStreamEnd(ctx context.Context, conn net.Conn, err error) {
	switch {
	case ctx.Err() != nil:
		// Drain in progress; the close was ours.
	case err == io.EOF:
		slog.Info("ingest: sensor stream closed", "remote", conn.RemoteAddr())
	case errors.Is(err, wire.ErrFraming):
		metrics.DecodeFailures.Inc()
		slog.Warn("ingest: malformed record ends sensor stream",
			"remote", conn.RemoteAddr(), "err", err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		slog.Info("ingest: sensor stream idle past deadline", "remote", conn.RemoteAddr())
	default:
		slog.Warn("ingest: sensor stream error", "remote", conn.RemoteAddr(), "err", err)
	}
}
