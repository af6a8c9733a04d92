// Package wire implements the byte-level encoding shared by the sensor and
// collector connections: a fixed 16-byte little-endian record
// {u32 id, f64 timestamp, f32 value}, COBS-framed with a zero delimiter so
// record boundaries survive arbitrary TCP segmentation. Both engine variants
// and the peer endpoints use the identical encoding.
package wire
