// Package engine assembles the processing pipeline. Two variants exist
// behind one contract: the imperative ClientServer pipeline (one goroutine
// per sensor and per motor group, bounded channels) and the declarative
// ReactiveStreaming pipeline (an operator graph on a fixed worker pool).
//
// Both variants drive the same window, combine and alert cores, so identical
// input traces produce identical outputs regardless of the scheduling
// strategy.
package engine

import (
	"context"
	"fmt"

	"github.com/motorwatch/motorwatch/internal/alert"
	"github.com/motorwatch/motorwatch/internal/config"
	"github.com/motorwatch/motorwatch/internal/ingest"
	"github.com/motorwatch/motorwatch/internal/sink"
)

// Engine runs one pipeline variant: it processes sensor input until ctx is
// cancelled, drains in-flight work (discarding partial windows), and returns
// once every component is idle.
type Engine interface {
	Run(ctx context.Context) error
}

// Config wires an engine to its run parameters and peers.
type Config struct {
	Params config.Params
	Table  alert.Table
	Ingest *ingest.Server
	Sink   *sink.Sink
}

// New builds the engine variant selected by the run parameters.
func New(cfg Config) (Engine, error) {
	switch cfg.Params.Model {
	case config.ClientServer:
		return &threadedEngine{cfg: cfg}, nil
	case config.ReactiveStreaming:
		return &dataflowEngine{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("engine: no variant for model %q", cfg.Params.Model)
}
