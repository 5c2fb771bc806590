// Package frame implements encoding and decoding of host-to-host link frames.
//
// A frame is a 3 byte header (16-bit little-endian total length, 8-bit
// channel index), a payload, and one trailing fin byte identifying the
// payload kind. The total length covers the header and the fin byte.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Reserved channel indexes. Indexes 0x00-0x7F carry application data;
// everything above is link control.
const (
	MaxDataChannel     = 0x7F
	ChControlRequest   = 0xF0
	ChControlResponse  = 0xF1
	ChHandshakeRequest = 0xFC
	ChHandshakeFinal   = 0xFD
	ChHandshakeAck     = 0xFE
	ChHandshakeProfile = 0xFF
)

// Fin codes. Outbound and inbound codes for the same semantic kind differ;
// this is how the peer device speaks and must not be normalized.
const (
	FinObject    = 0xF0 // inbound object record
	FinBinary    = 0xFF // inbound binary, ack required
	FinBinaryAck = 0xC0 // inbound ack for a sent binary

	FinOutObject    = 0xB0 // outbound object record
	FinOutBinary    = 0xBF // outbound binary
	FinOutBinaryAck = 0x80 // outbound ack for a received binary
)

const (
	headerLen = 3
	overhead  = 4 // header plus fin byte

	// MaxPayload is the largest payload that fits a 16-bit total length.
	MaxPayload = 0xFFFF - overhead
)

var ErrPayloadTooLarge = errors.New("frame: payload too large")

// Frame is one complete wire unit. Frames are transient: decoded off the
// receive buffer, dispatched, and discarded.
type Frame struct {
	Channel byte
	Payload []byte
	Fin     byte
}

func (f Frame) String() string {
	return fmt.Sprintf("{Frame Channel:0x%02x Len:%d Fin:0x%02x}", f.Channel, len(f.Payload), f.Fin)
}

// Append appends the encoding of one frame to dst and returns the extended
// slice. The payload must not exceed MaxPayload.
func Append(dst []byte, channel byte, payload []byte, fin byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, ErrPayloadTooLarge
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)+overhead))
	dst = append(dst, channel)
	dst = append(dst, payload...)
	dst = append(dst, fin)
	return dst, nil
}

// Encode returns the wire encoding of one frame.
func Encode(channel byte, payload []byte, fin byte) ([]byte, error) {
	return Append(make([]byte, 0, len(payload)+overhead), channel, payload, fin)
}
