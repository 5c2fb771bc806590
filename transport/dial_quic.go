package transport

import (
	"context"
	"crypto/tls"

	"github.com/quic-go/quic-go"
)

var defaultTLSConfig = tls.Config{
	NextProtos: []string{"h2h"},
}

// DialQUIC opens a link transport over a single QUIC stream. A nil
// tlsConf uses the default config with the "h2h" protocol.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (Transport, error) {
	if tlsConf == nil {
		tlsConf = defaultTLSConfig.Clone()
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, err
	}
	return &quicTransport{Conn: Conn{c: stream}, conn: conn}, nil
}

type quicTransport struct {
	Conn
	conn quic.Connection
}

func (t *quicTransport) Close() error {
	t.Conn.Close()
	return t.conn.CloseWithError(0, "link closed")
}
