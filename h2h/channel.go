package h2h

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Channel is one logical data stream multiplexed over a Connection. It is
// created by Connection.OpenChannel and removed when the peer confirms a
// close. Any number of goroutines may use a Channel concurrently; its
// queues are appended to only by the demultiplexing loop.
type Channel struct {
	conn   *Connection
	index  byte
	closed atomic.Bool

	objq *queue[interface{}]
	bufq *queue[[]byte]
	acks *queue[struct{}]

	streamMu sync.Mutex
	stream   io.Writer
}

func newChannel(c *Connection, index byte) *Channel {
	return &Channel{
		conn:  c,
		index: index,
		objq:  newQueue[interface{}](),
		bufq:  newQueue[[]byte](),
		acks:  newQueue[struct{}](),
	}
}

// Index returns the channel's index on the link.
func (ch *Channel) Index() byte {
	return ch.index
}

// Alive reports whether the channel is still open.
func (ch *Channel) Alive() bool {
	return !ch.closed.Load()
}

// SendObject encodes v and sends it as an object frame. Delivery is
// fire-and-forget; no acknowledgment is awaited.
func (ch *Channel) SendObject(v interface{}) error {
	if ch.closed.Load() {
		return ErrClosed
	}
	return ch.conn.sendObject(ch.index, v)
}

// SendBinary sends p as a binary frame and blocks until the peer
// acknowledges it or timeout elapses. Each call consumes exactly one
// acknowledgment. Acknowledgments carry no per-message correlation, so
// concurrent SendBinary calls on one channel cannot be told apart.
func (ch *Channel) SendBinary(p []byte, timeout time.Duration) error {
	if ch.closed.Load() {
		return ErrClosed
	}
	if err := ch.conn.sendBinary(ch.index, p); err != nil {
		return err
	}
	_, err := ch.acks.pop(timeout)
	return err
}

// GetObject returns the oldest received object record, waiting up to
// timeout for one to arrive.
func (ch *Channel) GetObject(timeout time.Duration) (interface{}, error) {
	return ch.objq.pop(timeout)
}

// GetBuffer returns the oldest received binary payload, waiting up to
// timeout for one to arrive.
func (ch *Channel) GetBuffer(timeout time.Duration) ([]byte, error) {
	return ch.bufq.pop(timeout)
}

// SetBinaryStream attaches a live sink for incoming binary payloads. While
// attached, payloads are written to w instead of queuing for GetBuffer.
// A nil w detaches.
func (ch *Channel) SetBinaryStream(w io.Writer) {
	ch.streamMu.Lock()
	ch.stream = w
	ch.streamMu.Unlock()
}

// Close marks the channel closed and asks the connection to run the close
// handshake. The channel stays in the registry until the peer confirms.
// Close is idempotent.
func (ch *Channel) Close() error {
	return ch.close(false)
}

// close marks the channel closed before any close request goes out, so no
// new sends are accepted while the request is in flight. directly skips
// the close handshake; the connection teardown path uses it when the link
// itself is going away.
func (ch *Channel) close(directly bool) error {
	if !ch.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !directly {
		return ch.conn.requestClose(ch.index)
	}
	return nil
}

func (ch *Channel) onObject(v interface{}) {
	ch.objq.push(v)
}

func (ch *Channel) onBinary(p []byte) {
	ch.streamMu.Lock()
	w := ch.stream
	ch.streamMu.Unlock()
	if w != nil {
		if _, err := w.Write(p); err != nil {
			ch.conn.log.Error().Err(err).Uint8("channel", ch.index).Msg("binary stream sink failed")
		}
		return
	}
	ch.bufq.push(p)
}

func (ch *Channel) onBinaryAck() {
	ch.acks.push(struct{}{})
}
