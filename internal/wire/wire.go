package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/motorwatch/motorwatch/pkg/types"
)

// recordSize is the payload size of every record on the wire:
// u32 id + f64 timestamp + f32 value, little-endian.
const recordSize = 16

// ErrFraming is returned when a frame cannot be COBS-decoded or its payload
// is not exactly one record.
var ErrFraming = errors.New("wire: malformed frame")

// delimiter terminates every COBS frame on the stream.
const delimiter = 0x00

// appendRecord appends the raw (unframed) record payload to dst.
func appendRecord(dst []byte, id uint32, ts float64, v float32) []byte {
	var buf [recordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(ts))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(v))
	return append(dst, buf[:]...)
}

// parseRecord decodes a raw record payload.
func parseRecord(b []byte) (id uint32, ts float64, v float32, err error) {
	if len(b) != recordSize {
		return 0, 0, 0, fmt.Errorf("%w: payload %d bytes, want %d", ErrFraming, len(b), recordSize)
	}
	id = binary.LittleEndian.Uint32(b[0:4])
	ts = math.Float64frombits(binary.LittleEndian.Uint64(b[4:12]))
	v = math.Float32frombits(binary.LittleEndian.Uint32(b[12:16]))
	return id, ts, v, nil
}

// EncodeReading returns the framed wire encoding of one sensor reading.
func EncodeReading(r types.SensorReading) []byte {
	return cobsEncode(nil, appendRecord(nil, r.SensorID, r.Timestamp, r.Value))
}

// EncodeAlert returns the framed wire encoding of one alert event.
func EncodeAlert(a types.AlertEvent) []byte {
	return cobsEncode(nil, appendRecord(nil, a.MotorID, a.Timestamp, a.Value))
}

// Decoder reads framed records from a byte stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r in a buffered frame decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// next reads one frame and returns the decoded record fields.
// io.EOF is returned on a clean end of stream between frames.
func (d *Decoder) next() (id uint32, ts float64, v float32, err error) {
	frame, err := d.r.ReadBytes(delimiter)
	if err != nil {
		if err == io.EOF && len(frame) == 0 {
			return 0, 0, 0, io.EOF
		}
		return 0, 0, 0, err
	}
	payload, err := cobsDecode(frame[:len(frame)-1])
	if err != nil {
		return 0, 0, 0, err
	}
	return parseRecord(payload)
}

// Reading decodes the next sensor reading from the stream.
func (d *Decoder) Reading() (types.SensorReading, error) {
	id, ts, v, err := d.next()
	if err != nil {
		return types.SensorReading{}, err
	}
	return types.SensorReading{SensorID: id, Timestamp: ts, Value: v}, nil
}

// Alert decodes the next alert event from the stream.
func (d *Decoder) Alert() (types.AlertEvent, error) {
	id, ts, v, err := d.next()
	if err != nil {
		return types.AlertEvent{}, err
	}
	return types.AlertEvent{MotorID: id, Timestamp: ts, Value: v}, nil
}

// cobsEncode appends the COBS encoding of src plus the frame delimiter to dst.
func cobsEncode(dst, src []byte) []byte {
	codeIdx := len(dst)
	dst = append(dst, 0)
	code := byte(1)
	for _, b := range src {
		if b == 0 {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
			continue
		}
		dst = append(dst, b)
		code++
		if code == 0xFF {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
		}
	}
	dst[codeIdx] = code
	return append(dst, delimiter)
}

// cobsDecode decodes one COBS frame (without its trailing delimiter).
func cobsDecode(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); {
		code := src[i]
		if code == 0 {
			return nil, fmt.Errorf("%w: zero code byte", ErrFraming)
		}
		i++
		n := int(code) - 1
		if i+n > len(src) {
			return nil, fmt.Errorf("%w: truncated block", ErrFraming)
		}
		out = append(out, src[i:i+n]...)
		i += n
		if code != 0xFF && i < len(src) {
			out = append(out, 0)
		}
	}
	return out, nil
}
