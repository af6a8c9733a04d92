package config

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/motorwatch/motorwatch/pkg/types"
)

// ProcessingModel selects which engine variant handles the run.
type ProcessingModel string

const (
	// ClientServer is the imperative variant: one goroutine per sensor and
	// per motor group, communicating through bounded channels.
	ClientServer ProcessingModel = "ClientServer"

	// ReactiveStreaming is the declarative variant: an operator graph driven
	// by a fixed worker pool on data-arrival and timer events.
	ReactiveStreaming ProcessingModel = "ReactiveStreaming"
)

// ParseModel parses the request_processing_model argument.
func ParseModel(s string) (ProcessingModel, error) {
	switch ProcessingModel(s) {
	case ClientServer, ReactiveStreaming:
		return ProcessingModel(s), nil
	}
	return "", fmt.Errorf("config: unknown request_processing_model %q", s)
}

// Params holds one run's fully parsed configuration.
type Params struct {
	// StartTime is the wall-clock instant the run begins. The engine idles
	// until it is reached.
	StartTime time.Time

	// Duration is how long the engine accepts and processes input.
	Duration time.Duration

	// Model selects the engine variant.
	Model ProcessingModel

	// MotorGroups is the number of monitored motors; each owns four sensors.
	MotorGroups int

	// WindowSize is how long readings are retained for averaging.
	WindowSize time.Duration

	// SensorListenAddr is the host:port the reading ingest binds.
	SensorListenAddr string

	// CollectorAddr is the host:port of the remote alert collector.
	CollectorAddr string

	// SensorInterval is the sensors' expected emission period. Informational
	// only; the windowing cadence does not depend on it.
	SensorInterval time.Duration

	// Cadence is the fixed period at which window averages are emitted.
	Cadence time.Duration
}

// SensorCount returns the total number of inbound sensor connections.
func (p Params) SensorCount() int { return p.MotorGroups * types.SensorsPerMotor }

// EndTime returns the instant the run stops accepting input.
func (p Params) EndTime() time.Time { return p.StartTime.Add(p.Duration) }

// ParseArgs parses the positional run arguments (without the program name).
func ParseArgs(args []string) (Params, error) {
	if len(args) != 9 {
		return Params{}, fmt.Errorf("config: got %d arguments, want 9", len(args))
	}

	startSecs, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return Params{}, fmt.Errorf("config: parse start_time: %w", err)
	}
	durationSecs, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return Params{}, fmt.Errorf("config: parse duration: %w", err)
	}
	model, err := ParseModel(args[2])
	if err != nil {
		return Params{}, err
	}
	groups, err := strconv.Atoi(args[3])
	if err != nil {
		return Params{}, fmt.Errorf("config: parse number_of_tcp_motor_groups: %w", err)
	}
	windowMs, err := strconv.Atoi(args[4])
	if err != nil {
		return Params{}, fmt.Errorf("config: parse window_size_ms: %w", err)
	}
	samplingMs, err := strconv.Atoi(args[7])
	if err != nil {
		return Params{}, fmt.Errorf("config: parse sensor_sampling_interval: %w", err)
	}
	cadenceMs, err := strconv.Atoi(args[8])
	if err != nil {
		return Params{}, fmt.Errorf("config: parse window_sampling_interval: %w", err)
	}

	p := Params{
		StartTime:        types.EpochTime(startSecs),
		Duration:         time.Duration(durationSecs * float64(time.Second)),
		Model:            model,
		MotorGroups:      groups,
		WindowSize:       time.Duration(windowMs) * time.Millisecond,
		SensorListenAddr: args[5],
		CollectorAddr:    args[6],
		SensorInterval:   time.Duration(samplingMs) * time.Millisecond,
		Cadence:          time.Duration(cadenceMs) * time.Millisecond,
	}
	if err := p.validate(startSecs, durationSecs); err != nil {
		return Params{}, err
	}
	return p, nil
}

// validate checks structural constraints on the parsed parameters.
func (p Params) validate(startSecs, durationSecs float64) error {
	if math.IsNaN(startSecs) || math.IsInf(startSecs, 0) || startSecs < 0 {
		return fmt.Errorf("config: start_time %v out of range", startSecs)
	}
	if math.IsNaN(durationSecs) || durationSecs <= 0 {
		return fmt.Errorf("config: duration must be positive, got %v", durationSecs)
	}
	if p.MotorGroups <= 0 {
		return fmt.Errorf("config: number_of_tcp_motor_groups must be positive, got %d", p.MotorGroups)
	}
	if p.WindowSize <= 0 {
		return fmt.Errorf("config: window_size_ms must be positive, got %v", p.WindowSize)
	}
	if p.Cadence <= 0 {
		return fmt.Errorf("config: window_sampling_interval must be positive, got %v", p.Cadence)
	}
	if _, _, err := net.SplitHostPort(p.SensorListenAddr); err != nil {
		return fmt.Errorf("config: sensor_listen_address: %w", err)
	}
	if _, _, err := net.SplitHostPort(p.CollectorAddr); err != nil {
		return fmt.Errorf("config: motor_monitor_listen_address: %w", err)
	}
	return nil
}
