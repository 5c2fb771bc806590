package h2h

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/fluxkit/h2h-go/codec"
	"github.com/fluxkit/h2h-go/frame"
	"github.com/fluxkit/h2h-go/transport"
)

const (
	testUUID    = "2e266efbd9d94669a2b1fb69917ad1d1"
	testTimeout = 2 * time.Second
)

var testProfile = map[string]interface{}{
	"uuid":     testUUID,
	"serial":   "F1K2S3",
	"version":  "1.6.4",
	"model":    "delta-1",
	"nickname": "bench printer",
}

// fakePeer speaks the device side of the wire over an in-process pipe.
// Scripted exchanges run on their own goroutine; errors come back over
// channels so the test goroutine does the failing.
type fakePeer struct {
	conn net.Conn
	dec  frame.Decoder
}

func newTestLink(t *testing.T) (*fakePeer, *transport.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	tr := transport.NewConn(client)
	tr.WriteTimeout = testTimeout
	return &fakePeer{conn: server}, tr
}

// drainBackground swallows everything the client writes from now on, so
// teardown signals never block the pipe.
func (p *fakePeer) drainBackground() {
	go io.Copy(io.Discard, p.conn)
}

func (p *fakePeer) readFrame(timeout time.Duration) (frame.Frame, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1024)
	for {
		f, st, err := p.dec.Next()
		if err != nil {
			return frame.Frame{}, err
		}
		if st == frame.Ok {
			return f, nil
		}
		if st == frame.Skip {
			continue
		}
		if err := p.conn.SetReadDeadline(deadline); err != nil {
			return frame.Frame{}, err
		}
		n, err := p.conn.Read(buf)
		if n > 0 {
			p.dec.Feed(buf[:n])
			continue
		}
		if err != nil {
			return frame.Frame{}, err
		}
	}
}

func (p *fakePeer) writeFrame(channel byte, payload []byte, fin byte) error {
	buf, err := frame.Encode(channel, payload, fin)
	if err != nil {
		return err
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(testTimeout)); err != nil {
		return err
	}
	_, err = p.conn.Write(buf)
	return err
}

func (p *fakePeer) writeObject(channel byte, v interface{}, fin byte) error {
	var buf bytes.Buffer
	if err := (codec.MsgpackCodec{}).Encoder(&buf).Encode(v); err != nil {
		return err
	}
	return p.writeFrame(channel, buf.Bytes(), fin)
}

func decodeObject(payload []byte) (map[string]interface{}, error) {
	var v interface{}
	if err := (codec.MsgpackCodec{}).Decoder(bytes.NewReader(payload)).Decode(&v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("record is %T", v)
	}
	return m, nil
}

// serveHandshake answers one full handshake round: profile offer carrying
// profileSession, then a final confirmation carrying finalSession.
func (p *fakePeer) serveHandshake(profileSession, finalSession string) error {
	req, err := p.readFrame(testTimeout)
	if err != nil {
		return fmt.Errorf("read handshake request: %w", err)
	}
	if req.Channel != frame.ChHandshakeRequest || req.Fin != frame.FinOutObject {
		return fmt.Errorf("unexpected handshake request frame %v", req)
	}

	profile := map[string]interface{}{"session": profileSession}
	for k, v := range testProfile {
		profile[k] = v
	}
	if err := p.writeObject(frame.ChHandshakeProfile, profile, frame.FinObject); err != nil {
		return err
	}

	ack, err := p.readFrame(testTimeout)
	if err != nil {
		return fmt.Errorf("read handshake ack: %w", err)
	}
	if ack.Channel != frame.ChHandshakeAck || ack.Fin != frame.FinOutObject {
		return fmt.Errorf("unexpected handshake ack frame %v", ack)
	}
	m, err := decodeObject(ack.Payload)
	if err != nil {
		return err
	}
	if m["session"] != profileSession {
		return fmt.Errorf("ack session %v, want %v", m["session"], profileSession)
	}
	if m["client"] == "" {
		return fmt.Errorf("ack carries no client identity")
	}

	return p.writeObject(frame.ChHandshakeFinal,
		map[string]interface{}{"session": finalSession}, frame.FinObject)
}

// serveOpen answers one channel-open request with the given status.
func (p *fakePeer) serveOpen(wantType string, status string) error {
	req, err := p.readFrame(testTimeout)
	if err != nil {
		return fmt.Errorf("read open request: %w", err)
	}
	if req.Channel != frame.ChControlRequest || req.Fin != frame.FinOutObject {
		return fmt.Errorf("unexpected open request frame %v", req)
	}
	m, err := decodeObject(req.Payload)
	if err != nil {
		return err
	}
	if m["action"] != "open" || m["type"] != wantType {
		return fmt.Errorf("unexpected open request record %v", m)
	}
	return p.writeObject(frame.ChControlResponse, map[string]interface{}{
		"channel": m["channel"],
		"status":  status,
		"action":  "open",
	}, frame.FinObject)
}

// serveClose answers one channel-close request with the given status.
func (p *fakePeer) serveClose(status string) error {
	req, err := p.readFrame(testTimeout)
	if err != nil {
		return fmt.Errorf("read close request: %w", err)
	}
	if req.Channel != frame.ChControlRequest || req.Fin != frame.FinOutObject {
		return fmt.Errorf("unexpected close request frame %v", req)
	}
	m, err := decodeObject(req.Payload)
	if err != nil {
		return err
	}
	if m["action"] != "close" {
		return fmt.Errorf("unexpected close request record %v", m)
	}
	return p.writeObject(frame.ChControlResponse, map[string]interface{}{
		"channel": m["channel"],
		"status":  status,
		"action":  "close",
	}, frame.FinObject)
}

// connect runs a clean handshake and returns a live connection.
func connectTestLink(t *testing.T) (*fakePeer, *Connection) {
	t.Helper()
	peer, tr := newTestLink(t)
	served := make(chan error, 1)
	go func() { served <- peer.serveHandshake("s1", "s1") }()

	conn, err := Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-served; err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		peer.drainBackground()
		conn.Close()
	})
	return peer, conn
}

// openTestChannel opens one confirmed channel of the given type.
func openTestChannel(t *testing.T, peer *fakePeer, conn *Connection, chType string) *Channel {
	t.Helper()
	served := make(chan error, 1)
	go func() { served <- peer.serveOpen(chType, "ok") }()

	ch, err := conn.OpenChannel(chType, testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-served; err != nil {
		t.Fatal(err)
	}
	return ch
}
