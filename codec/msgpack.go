package codec

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec is the record encoding the peer device natively speaks.
// Untyped record decoding yields map[string]interface{}.
type MsgpackCodec struct{}

func (c MsgpackCodec) Encoder(w io.Writer) Encoder {
	return msgpack.NewEncoder(w)
}

func (c MsgpackCodec) Decoder(r io.Reader) Decoder {
	return msgpack.NewDecoder(r)
}
