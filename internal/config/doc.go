// Package config parses the engine's run parameters and the confidence
// interval table.
//
// Run parameters arrive as positional process arguments in the order the
// benchmark harness passes them: start_time, duration,
// request_processing_model, number_of_tcp_motor_groups, window_size_ms,
// sensor_listen_address, motor_monitor_listen_address,
// sensor_sampling_interval, window_sampling_interval.
//
// The confidence interval table is a YAML file written by the harness. It may
// not yet exist when the engine starts (parameter distribution runs
// concurrently with process spawn), so WaitForIntervals watches the parent
// directory and loads the table as soon as the file appears. Once loaded the
// table is immutable for the run.
package config
