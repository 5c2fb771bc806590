package frame

import (
	"encoding/binary"
	"fmt"
)

// Status reports the outcome of a decode attempt.
type Status int

const (
	// Incomplete means the buffer does not yet hold a full frame. Buffered
	// bytes are left untouched.
	Incomplete Status = iota

	// Skip means a zero-length keepalive was consumed (exactly 2 bytes) and
	// no frame was produced.
	Skip

	// Ok means a complete frame was decoded and consumed.
	Ok
)

// Decoder accumulates raw transport bytes and extracts complete frames from
// the front. It is not safe for concurrent use; the demultiplexing loop is
// its only caller.
type Decoder struct {
	buf []byte
}

// Feed appends raw bytes to the receive buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes awaiting extraction.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next tries to extract one frame from the front of the buffer. A total
// length of zero is a keepalive: only its 2 length bytes are consumed, the
// byte after them is left in place. That matches the peer device; do not
// fix it. A nonzero total length smaller than the frame overhead is
// malformed and returns an error.
func (d *Decoder) Next() (Frame, Status, error) {
	if len(d.buf) < overhead {
		return Frame{}, Incomplete, nil
	}
	total := int(binary.LittleEndian.Uint16(d.buf[:2]))
	if total == 0 {
		d.buf = d.buf[2:]
		return Frame{}, Skip, nil
	}
	if total < overhead {
		return Frame{}, Incomplete, fmt.Errorf("frame: malformed total length %d", total)
	}
	if len(d.buf) < total {
		return Frame{}, Incomplete, nil
	}
	f := Frame{
		Channel: d.buf[2],
		Payload: append([]byte(nil), d.buf[headerLen:total-1]...),
		Fin:     d.buf[total-1],
	}
	d.buf = d.buf[total:]
	return f, Ok, nil
}
