package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Intervals is the parsed confidence interval table. Every motor gets the
// default interval unless an explicit per-motor entry overrides it.
type Intervals struct {
	Default Interval        `yaml:"default"`
	Motors  []MotorInterval `yaml:"motors"`
}

// Interval is one [lower, upper] bound pair.
type Interval struct {
	Lower float64 `yaml:"lower_bound"`
	Upper float64 `yaml:"upper_bound"`
}

// MotorInterval overrides the default interval for one motor.
type MotorInterval struct {
	MotorID  uint32 `yaml:"motor_id"`
	Interval `yaml:",inline"`
}

// LoadIntervals reads and parses the YAML interval table at path.
func LoadIntervals(path string) (*Intervals, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read interval table: %w", err)
	}
	var iv Intervals
	if err := yaml.Unmarshal(data, &iv); err != nil {
		return nil, fmt.Errorf("config: parse interval table: %w", err)
	}
	if err := iv.validate(); err != nil {
		return nil, fmt.Errorf("config: interval table: %w", err)
	}
	return &iv, nil
}

// validate checks bound ordering for the default and every override.
func (iv *Intervals) validate() error {
	if iv.Default.Lower > iv.Default.Upper {
		return fmt.Errorf("default: lower_bound %v above upper_bound %v",
			iv.Default.Lower, iv.Default.Upper)
	}
	seen := make(map[uint32]bool, len(iv.Motors))
	for i, m := range iv.Motors {
		if m.Lower > m.Upper {
			return fmt.Errorf("motors[%d]: lower_bound %v above upper_bound %v",
				i, m.Lower, m.Upper)
		}
		if seen[m.MotorID] {
			return fmt.Errorf("motors[%d]: duplicate motor_id %d", i, m.MotorID)
		}
		seen[m.MotorID] = true
	}
	return nil
}

// WaitForIntervals loads the interval table at path, waiting for the file to
// appear if it does not exist yet. The harness writes the table concurrently
// with process spawn, so a missing file at startup is not an error until ctx
// expires.
func WaitForIntervals(ctx context.Context, path string) (*Intervals, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadIntervals(path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: start interval watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	// The file may have been created between the stat and the watch.
	if _, err := os.Stat(path); err == nil {
		return LoadIntervals(path)
	}

	slog.Info("config: waiting for interval table", "path", path)
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("config: interval table %s never appeared: %w", path, ctx.Err())

		case event, ok := <-watcher.Events:
			if !ok {
				return nil, fmt.Errorf("config: interval watcher closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			return LoadIntervals(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, fmt.Errorf("config: interval watcher closed")
			}
			slog.Error("config: interval watcher error", "err", err)
		}
	}
}
