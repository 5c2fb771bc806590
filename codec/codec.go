// Package codec abstracts the record encoding used for object frames.
//
// The link protocol only moves opaque payload bytes; how a record becomes
// bytes is a pluggable concern. The peer device speaks msgpack, which is
// the default, but any Codec works.
package codec

import (
	"io"
)

type Encoder interface {
	// Encode writes an encoding of v to its Writer. The link puts exactly
	// one encoded record in each object frame, fire-and-forget.
	Encode(v interface{}) error
}

type Decoder interface {
	// Decode reads the next encoded value from its Reader and stores it in
	// the value pointed to by v. Handshake and control records decode to
	// untyped maps; callers shape them afterwards.
	Decode(v interface{}) error
}

// Codec returns an Encoder or Decoder given a Writer or Reader. A frame
// payload is always a single complete record, so codecs need no framing
// of their own.
type Codec interface {
	Encoder(w io.Writer) Encoder
	Decoder(r io.Reader) Decoder
}
