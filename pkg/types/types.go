package types

import (
	"math"
	"time"
)

// SensorsPerMotor is the fixed number of sensors in one motor group.
const SensorsPerMotor = 4

// MotorOf returns the motor group a sensor belongs to. Sensor ids pack the
// motor id in the high bits and the in-group index in the low two bits.
func MotorOf(sensorID uint32) uint32 { return sensorID >> 2 }

// SensorIndex returns the sensor's position (0-3) within its motor group.
func SensorIndex(sensorID uint32) uint32 { return sensorID & 0x3 }

// SensorID packs a motor id and in-group index back into a sensor id.
func SensorID(motorID, index uint32) uint32 { return motorID<<2 | index&0x3 }

// SensorReading is one decoded telemetry sample from a sensor connection.
type SensorReading struct {
	SensorID  uint32
	Timestamp float64 // seconds since the Unix epoch
	Value     float32
}

// SensorAverage is the arithmetic mean of one sensor's readings over one
// window. Emitted once per cadence tick per sensor; windows with no retained
// readings produce no average.
type SensorAverage struct {
	SensorID    uint32
	MotorID     uint32
	WindowStart time.Time
	WindowEnd   time.Time
	Mean        float64
}

// CombinedReading is the mean of the sensor averages that reported for one
// motor group's window. Produced once per window once at least one
// contributing average exists.
type CombinedReading struct {
	MotorID     uint32
	WindowStart time.Time
	WindowEnd   time.Time
	Value       float64
}

// ConfidenceInterval is the closed range within which a motor's combined
// reading is expected under normal operation. Immutable for the run.
type ConfidenceInterval struct {
	MotorID uint32
	Lower   float64
	Upper   float64
}

// Contains reports whether v is in bound. Boundary values are in bound.
func (ci ConfidenceInterval) Contains(v float64) bool {
	return v >= ci.Lower && v <= ci.Upper
}

// AlertEvent is emitted when a combined reading leaves its motor's
// confidence interval.
type AlertEvent struct {
	MotorID   uint32
	Timestamp float64 // window end, seconds since the Unix epoch
	Value     float32
}

// RunMetrics is the process-accounting record written to stdout at exit.
// Field names follow the benchmark harness's expected schema.
type RunMetrics struct {
	ID              uint32  `json:"id"`
	UserTime        uint64  `json:"time_spent_in_user_mode"`
	KernelTime      uint64  `json:"time_spent_in_kernel_mode"`
	ChildUserTime   int64   `json:"children_time_spent_in_user_mode"`
	ChildKernelTime int64   `json:"children_time_spent_in_kernel_mode"`
	PeakRSS         uint64  `json:"peak_resident_set_size"`
	PeakVSize       uint64  `json:"peak_virtual_memory_size"`
	LoadAverage     float64 `json:"load_average"`
	DataType        string  `json:"benchmark_data_type"`
}

// EpochTime converts an epoch-seconds timestamp to a time.Time. Seconds and
// the sub-second fraction are converted separately: epoch nanosecond counts
// exceed float64's integer precision.
func EpochTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Epoch converts a time.Time to epoch seconds.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
