package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec is an alternate binary record encoding for peers that
// negotiate CBOR instead of msgpack.
type CBORCodec struct{}

func (c CBORCodec) Encoder(w io.Writer) Encoder {
	return cbor.NewEncoder(w)
}

func (c CBORCodec) Decoder(r io.Reader) Decoder {
	return cbor.NewDecoder(r)
}
