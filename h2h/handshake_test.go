package h2h

import (
	"errors"
	"io"
	"testing"
)

func TestConnectHandshake(t *testing.T) {
	_, conn := connectTestLink(t)

	p := conn.Profile()
	if p.Serial != "F1K2S3" || p.Model != "delta-1" || p.Nickname != "bench printer" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.UUID.String() != "2e266efb-d9d9-4669-a2b1-fb69917ad1d1" {
		t.Fatalf("unexpected uuid: %s", p.UUID)
	}
	if p.Version.String() != "1.6.4" {
		t.Fatalf("unexpected version: %s", p.Version)
	}
	if conn.Session() != "s1" {
		t.Fatalf("unexpected session: %q", conn.Session())
	}
}

func TestHandshakeSessionMismatchRetried(t *testing.T) {
	peer, tr := newTestLink(t)
	served := make(chan error, 2)
	go func() {
		// wrong final session: client clears the session and starts over
		served <- peer.serveHandshake("s1", "s2")
		served <- peer.serveHandshake("s3", "s3")
	}()

	conn, err := Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		peer.drainBackground()
		conn.Close()
	}()

	for i := 0; i < 2; i++ {
		if err := <-served; err != nil {
			t.Fatal(err)
		}
	}
	if conn.Session() != "s3" {
		t.Fatalf("session %q after retry, want s3", conn.Session())
	}
}

func TestHandshakeRetryBudgetExhausted(t *testing.T) {
	peer, tr := newTestLink(t)
	// swallow every request, never answer
	go io.Copy(io.Discard, peer.conn)

	_, err := Connect(tr)
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
}

func TestHandshakeDefaultSession(t *testing.T) {
	peer, tr := newTestLink(t)
	served := make(chan error, 1)
	go func() {
		// profile with no session field: client must assume "?"
		req, err := peer.readFrame(testTimeout)
		if err == nil && req.Channel != 0xFC {
			err = errors.New("not a handshake request")
		}
		if err != nil {
			served <- err
			return
		}
		if err := peer.writeObject(0xFF, testProfile, 0xF0); err != nil {
			served <- err
			return
		}
		ack, err := peer.readFrame(testTimeout)
		if err != nil {
			served <- err
			return
		}
		m, err := decodeObject(ack.Payload)
		if err == nil && m["session"] != "?" {
			err = errors.New("default session not ?")
		}
		if err != nil {
			served <- err
			return
		}
		served <- peer.writeObject(0xFD, map[string]interface{}{"session": "?"}, 0xF0)
	}()

	conn, err := Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		peer.drainBackground()
		conn.Close()
	}()
	if err := <-served; err != nil {
		t.Fatal(err)
	}
	if conn.Session() != "?" {
		t.Fatalf("session %q, want ?", conn.Session())
	}
}
