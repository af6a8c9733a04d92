// Package types defines the shared data model flowing through the engine:
// raw sensor readings, windowed averages, combined motor readings, alert
// events and the run metrics record. These are the canonical in-memory
// representations, separate from the byte-level wire format.
package types
