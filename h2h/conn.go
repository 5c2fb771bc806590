// Package h2h implements the host-to-host multiplexed link protocol: many
// logical channels carrying object records and acknowledged binary payloads
// over one raw byte transport, negotiated by a session handshake and a
// control channel.
//
// Exactly one goroutine, started by Connect, reads the transport and
// demultiplexes frames to channels. Application goroutines only ever block
// on their own channel's queues and on the write path.
package h2h

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/fluxkit/h2h-go/codec"
	"github.com/fluxkit/h2h-go/frame"
	"github.com/fluxkit/h2h-go/transport"
)

// run flag bits. The loop keeps going only while both are set.
const (
	flagConnected uint32 = 1 << 0
	flagRunning   uint32 = 1 << 1
)

const (
	readSize             = 1024
	drainReadTimeout     = 50 * time.Millisecond
	loopReadTimeout      = 50 * time.Millisecond
	handshakeReadTimeout = 300 * time.Millisecond
	handshakeAttempts    = 5
)

// Connection owns a transport and multiplexes channels over it.
type Connection struct {
	t     transport.Transport
	codec codec.Codec
	log   zerolog.Logger
	id    xid.ID

	// dec holds the receive buffer; only the demultiplexing loop (and the
	// handshake, which runs before the loop starts) touches it.
	dec frame.Decoder

	// writeMu serializes transport writes. Channel goroutines write
	// concurrently; each frame must hit the wire whole.
	writeMu sync.Mutex

	// chanMu guards the registry; openMu serializes open requests so
	// concurrent opens never race on index selection.
	chanMu   sync.Mutex
	channels map[byte]*Channel
	openMu   sync.Mutex
	openSem  *queue[struct{}]

	flags atomic.Uint32

	session  string
	endpoint map[string]interface{}
	profile  Profile

	teardownOnce sync.Once
	done         chan struct{}
	errMu        sync.Mutex
	err          error
}

// Option configures a Connection before the handshake runs.
type Option func(*Connection)

// WithLogger attaches a logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Connection) { c.log = log }
}

// WithCodec overrides the record codec. The default is msgpack.
func WithCodec(cc codec.Codec) Option {
	return func(c *Connection) { c.codec = cc }
}

// Connect drains stale bytes from t, runs the link handshake, and starts
// the demultiplexing loop. On failure the transport is closed.
func Connect(t transport.Transport, opts ...Option) (*Connection, error) {
	c := &Connection{
		t:        t,
		codec:    codec.MsgpackCodec{},
		log:      zerolog.Nop(),
		id:       xid.New(),
		channels: make(map[byte]*Channel),
		openSem:  newQueue[struct{}](),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Stringer("conn", c.id).Logger()

	if err := c.drain(); err != nil {
		t.Close()
		return nil, err
	}
	if err := c.handshake(); err != nil {
		t.Close()
		return nil, err
	}

	c.flags.Or(flagRunning)
	go c.loop()
	return c, nil
}

// drain discards whatever the transport buffered before we attached.
func (c *Connection) drain() error {
	for {
		buf, err := c.t.Read(readSize, drainReadTimeout)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if len(buf) == 0 {
			return nil
		}
	}
}

// feed reads once from the transport into the receive buffer.
func (c *Connection) feed(timeout time.Duration) error {
	buf, err := c.t.Read(readSize, timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	c.dec.Feed(buf)
	return nil
}

func (c *Connection) marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.codec.Encoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Connection) unmarshal(p []byte) (interface{}, error) {
	var v interface{}
	if err := c.codec.Decoder(bytes.NewReader(p)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Connection) writeFrame(channel byte, payload []byte, fin byte) error {
	buf, err := frame.Encode(channel, payload, fin)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.t.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (c *Connection) sendObject(channel byte, v interface{}) error {
	payload, err := c.marshal(v)
	if err != nil {
		return err
	}
	return c.writeFrame(channel, payload, frame.FinOutObject)
}

func (c *Connection) sendBinary(channel byte, p []byte) error {
	return c.writeFrame(channel, p, frame.FinOutBinary)
}

// loop is the demultiplexing loop. It is the only reader of the transport
// and the only mutator of the channel registry. It runs until a fatal
// error or an external stop, then tears the connection down.
func (c *Connection) loop() {
	want := flagConnected | flagRunning
	var err error
	for err == nil && c.flags.Load()&want == want {
		err = c.runOnce()
	}
	// a requested stop tears the transport down under the blocked read;
	// that wakeup is the clean exit, not a failure
	if err != nil && c.flags.Load()&flagRunning == 0 {
		err = nil
	}
	if err != nil {
		c.log.Error().Err(err).Msg("link loop failed")
		c.flags.Store(0)
	}
	c.teardown()

	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	close(c.done)
}

// runOnce reads available bytes and dispatches at most one frame.
func (c *Connection) runOnce() error {
	if err := c.feed(loopReadTimeout); err != nil {
		return err
	}
	f, st, err := c.dec.Next()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	switch st {
	case frame.Incomplete:
		return nil
	case frame.Skip:
		// keepalive
		return nil
	}

	switch {
	case f.Channel <= frame.MaxDataChannel:
		return c.dispatchData(f)
	case f.Channel == frame.ChControlResponse:
		if f.Fin != frame.FinObject {
			return fmt.Errorf("%w: bad fin 0x%02x on control response", ErrProtocol, f.Fin)
		}
		v, err := c.unmarshal(f.Payload)
		if err != nil {
			return fmt.Errorf("%w: control response: %v", ErrProtocol, err)
		}
		return c.handleControl(v)
	default:
		return fmt.Errorf("%w: bad control channel 0x%02x", ErrProtocol, f.Channel)
	}
}

// dispatchData routes a data-channel frame. Traffic for an unregistered
// channel is a protocol violation, not a recoverable event.
func (c *Connection) dispatchData(f frame.Frame) error {
	c.chanMu.Lock()
	ch := c.channels[f.Channel]
	c.chanMu.Unlock()
	if ch == nil {
		return fmt.Errorf("%w: bad channel index 0x%02x", ErrProtocol, f.Channel)
	}

	switch f.Fin {
	case frame.FinObject:
		v, err := c.unmarshal(f.Payload)
		if err != nil {
			return fmt.Errorf("%w: object record: %v", ErrProtocol, err)
		}
		ch.onObject(v)
	case frame.FinBinary:
		// ack first, then deliver
		if err := c.writeFrame(f.Channel, nil, frame.FinOutBinaryAck); err != nil {
			return err
		}
		ch.onBinary(f.Payload)
	case frame.FinBinaryAck:
		ch.onBinaryAck()
	default:
		return fmt.Errorf("%w: bad fin 0x%02x", ErrProtocol, f.Fin)
	}
	return nil
}

func (c *Connection) handleControl(v interface{}) error {
	var res ctrlResponse
	if err := weakDecode(v, &res); err != nil {
		return fmt.Errorf("%w: control record: %v", ErrProtocol, err)
	}
	idx := byte(res.Channel)

	switch res.action() {
	case actionOpen:
		if !res.ok() {
			c.log.Error().Uint8("channel", idx).Str("status", res.Status).Msg("channel open failed")
			return nil
		}
		ch := newChannel(c, idx)
		c.chanMu.Lock()
		c.channels[idx] = ch
		c.chanMu.Unlock()
		c.openSem.push(struct{}{})
		c.log.Info().Uint8("channel", idx).Msg("channel opened")
	case actionClose:
		if !res.ok() {
			c.log.Error().Uint8("channel", idx).Str("status", res.Status).Msg("channel close failed")
			return nil
		}
		c.chanMu.Lock()
		ch := c.channels[idx]
		delete(c.channels, idx)
		c.chanMu.Unlock()
		if ch != nil {
			ch.close(true)
		}
		c.log.Info().Uint8("channel", idx).Msg("channel closed")
	default:
		c.log.Error().Str("action", res.Action).Msg("unknown channel action")
	}
	return nil
}

// OpenChannel asks the peer to open a data channel of the given type and
// blocks until the loop registers the confirmed channel or timeout
// elapses. Only one open request is in flight at a time.
func (c *Connection) OpenChannel(chType string, timeout time.Duration) (*Channel, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	idx := c.freeIndex()
	c.log.Info().Uint8("channel", idx).Str("type", chType).Msg("requesting channel")
	err := c.sendObject(frame.ChControlRequest, ctrlRequest{
		Channel: idx,
		Action:  actionOpenName,
		Type:    chType,
	})
	if err != nil {
		return nil, err
	}

	if _, err := c.openSem.pop(timeout); err != nil {
		return nil, fmt.Errorf("%w: no confirmation for channel %d", ErrChannelCreation, idx)
	}
	c.chanMu.Lock()
	ch := c.channels[idx]
	c.chanMu.Unlock()
	if ch == nil {
		return nil, fmt.Errorf("%w: channel %d", ErrChannelCreation, idx)
	}
	return ch, nil
}

// freeIndex returns the lowest unused index in [0, len(channels)]. Closing
// channels out of order can hand out a low index while a higher one still
// awaits its close confirmation; see the protocol notes.
func (c *Connection) freeIndex() byte {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	n := len(c.channels)
	for i := 0; i <= n; i++ {
		if _, ok := c.channels[byte(i)]; !ok {
			return byte(i)
		}
	}
	return byte(n)
}

// requestClose sends a close request for a channel. The registry entry is
// removed only when the peer confirms.
func (c *Connection) requestClose(idx byte) error {
	c.log.Info().Uint8("channel", idx).Msg("closing channel")
	return c.sendObject(frame.ChControlRequest, ctrlRequest{
		Channel: idx,
		Action:  actionCloseName,
	})
}

// NumChannels returns the number of registered channels.
func (c *Connection) NumChannels() int {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	return len(c.channels)
}

// Stop asks the demultiplexing loop to exit after its current iteration.
func (c *Connection) Stop() {
	c.flags.And(^flagRunning)
}

// Close stops the loop and tears the connection down: a terminate signal
// to the peer, a direct close of every channel (no close handshake; the
// link is going away), and the transport released. Safe to call more than
// once and from any goroutine.
func (c *Connection) Close() error {
	c.Stop()
	c.teardown()
	return nil
}

func (c *Connection) teardown() {
	c.teardownOnce.Do(func() {
		// best effort: the peer treats an empty handshake-request object
		// as a terminate signal
		_ = c.sendObject(frame.ChHandshakeRequest, nil)

		c.chanMu.Lock()
		chans := make([]*Channel, 0, len(c.channels))
		for _, ch := range c.channels {
			chans = append(chans, ch)
		}
		c.chanMu.Unlock()
		for _, ch := range chans {
			ch.close(true)
		}

		c.log.Info().Msg("link closed")
		c.t.Close()
	})
}

// Wait blocks until the demultiplexing loop has exited and returns the
// error that stopped it, or nil after a requested stop.
func (c *Connection) Wait() error {
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}
