// Package transport provides raw byte transports for the host-to-host link.
//
// A Transport is a reliable, byte-oriented duplex link. Reads are bounded by
// a timeout and legitimately return no data when it elapses; writes block
// until the bytes are handed to the link. The link owns the transport
// exclusively once connected.
package transport

import (
	"errors"
	"io"
	"net"
	"time"
)

// Transport is the raw byte link the connection runs over.
type Transport interface {
	// Read returns up to max buffered bytes, waiting at most timeout. An
	// elapsed timeout yields an empty result and a nil error; any other
	// failure is a transport error.
	Read(max int, timeout time.Duration) ([]byte, error)

	// Write sends p in full.
	Write(p []byte) error

	// Reset issues the out-of-band device reset that precedes a handshake.
	// Transports with no such control path treat it as a no-op.
	Reset() error

	Close() error
}

// minReadTimeout is the floor applied to read timeouts. A zero timeout
// would park the demultiplexing loop forever on a quiet link.
const minReadTimeout = time.Millisecond

// DefaultWriteTimeout bounds a single Write on a Conn.
const DefaultWriteTimeout = 10 * time.Second

// DeadlineConn is the subset of net.Conn a Conn needs. QUIC streams
// satisfy it without being net.Conns.
type DeadlineConn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Conn adapts any deadline-capable connection (net.Conn, websocket conn,
// QUIC stream) to the Transport contract.
type Conn struct {
	// WriteTimeout bounds each Write. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration

	c DeadlineConn
}

// NewConn wraps a deadline-capable connection.
func NewConn(c DeadlineConn) *Conn {
	return &Conn{c: c}
}

func (t *Conn) Read(max int, timeout time.Duration) ([]byte, error) {
	if timeout < minReadTimeout {
		timeout = minReadTimeout
	}
	if err := t.c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, max)
	n, err := t.c.Read(buf)
	if n > 0 {
		// deliver what arrived; a lingering error resurfaces on the next read
		return buf[:n], nil
	}
	if err != nil && isTimeout(err) {
		return nil, nil
	}
	return nil, err
}

func (t *Conn) Write(p []byte) error {
	wt := t.WriteTimeout
	if wt <= 0 {
		wt = DefaultWriteTimeout
	}
	if err := t.c.SetWriteDeadline(time.Now().Add(wt)); err != nil {
		return err
	}
	_, err := t.c.Write(p)
	return err
}

func (t *Conn) Reset() error {
	return nil
}

func (t *Conn) Close() error {
	return t.c.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func dialNet(proto, addr string) (*Conn, error) {
	conn, err := net.Dial(proto, addr)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// DialTCP opens a link transport over a TCP connection.
func DialTCP(addr string) (*Conn, error) {
	return dialNet("tcp", addr)
}

// DialUnix opens a link transport over a Unix domain socket.
func DialUnix(path string) (*Conn, error) {
	return dialNet("unix", path)
}
