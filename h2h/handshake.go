package h2h

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/fluxkit/h2h-go/frame"
)

// Version is the client library version reported to the peer during the
// handshake.
const Version = "0.9.0"

const clientIdent = "h2h-go-" + Version

// Profile identifies the peer device. It is populated once, when the
// handshake completes, and immutable afterwards.
type Profile struct {
	UUID     uuid.UUID
	Serial   string
	Version  *semver.Version
	Model    string
	Nickname string
}

type rawProfile struct {
	UUID     string `mapstructure:"uuid"`
	Serial   string `mapstructure:"serial"`
	Version  string `mapstructure:"version"`
	Model    string `mapstructure:"model"`
	Nickname string `mapstructure:"nickname"`
}

// Profile returns the peer identity negotiated during the handshake.
func (c *Connection) Profile() Profile {
	return c.profile
}

// Session returns the negotiated session token.
func (c *Connection) Session() string {
	return c.session
}

// handshake negotiates the session before the loop starts: reset the
// device, request a handshake, answer the profile offer with a session
// acknowledgment, and wait for a final confirmation carrying the same
// session token. Each attempt that yields nothing usable resends the
// request; a profile offer keeps the current attempt alive.
func (c *Connection) handshake() error {
	if err := c.t.Reset(); err != nil {
		return fmt.Errorf("%w: reset: %v", ErrTransport, err)
	}
	if err := c.sendObject(frame.ChHandshakeRequest, nil); err != nil {
		return err
	}

	for ttl := handshakeAttempts; ttl > 0; {
		if err := c.feed(handshakeReadTimeout); err != nil {
			return err
		}

		// decode everything buffered, keep only the last complete frame
		var last *frame.Frame
		var sawKeepalive bool
		for {
			f, st, err := c.dec.Next()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrProtocol, err)
			}
			if st == frame.Incomplete {
				break
			}
			if st == frame.Skip {
				last, sawKeepalive = nil, true
				continue
			}
			last, sawKeepalive = &f, false
		}

		switch {
		case last != nil && last.Channel == frame.ChHandshakeProfile && last.Fin == frame.FinObject:
			if err := c.handleProfile(last.Payload); err != nil {
				return err
			}
			// wait for the final confirmation without spending an attempt
			continue
		case last != nil && last.Channel == frame.ChHandshakeFinal && last.Fin == frame.FinObject:
			if c.session == "" {
				c.log.Warn().Msg("unexpected final handshake")
				break
			}
			ok, err := c.finalHandshake(last.Payload)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		case last != nil:
			c.log.Warn().Uint8("channel", last.Channel).Uint8("fin", last.Fin).
				Msg("unexpected frame during handshake")
		case sawKeepalive:
			c.log.Warn().Msg("keepalive during handshake")
		default:
			c.log.Info().Msg("handshake timeout, retrying")
		}

		if err := c.sendObject(frame.ChHandshakeRequest, nil); err != nil {
			return err
		}
		ttl--
	}
	return fmt.Errorf("%w: retry budget exhausted", ErrHandshake)
}

// handleProfile stores the peer's profile offer and session token, then
// acknowledges with our identity. The final confirmation is still
// outstanding after this.
func (c *Connection) handleProfile(payload []byte) error {
	v, err := c.unmarshal(payload)
	if err != nil {
		return fmt.Errorf("%w: profile record: %v", ErrProtocol, err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: profile record is %T", ErrProtocol, v)
	}

	session := "?"
	if s, ok := m["session"]; ok {
		session = fmt.Sprint(s)
		delete(m, "session")
	}
	if c.session == "" {
		c.log.Info().Str("session", session).Msg("handshake session")
	} else {
		c.log.Info().Str("session", session).Msg("replacing handshake session")
	}
	c.endpoint = m
	c.session = session

	return c.sendObject(frame.ChHandshakeAck, map[string]string{
		"session": session,
		"client":  clientIdent,
	})
}

// finalHandshake checks the confirmation against the stored session and,
// on a match, parses the stored profile into its final typed form. A
// mismatch clears the session so the next attempt starts over.
func (c *Connection) finalHandshake(payload []byte) (bool, error) {
	v, err := c.unmarshal(payload)
	if err != nil {
		return false, fmt.Errorf("%w: final handshake record: %v", ErrProtocol, err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("%w: final handshake record is %T", ErrProtocol, v)
	}

	if got := fmt.Sprint(m["session"]); got != c.session {
		c.log.Warn().Str("got", got).Str("want", c.session).
			Msg("final handshake session mismatch")
		c.session = ""
		return false, nil
	}

	var raw rawProfile
	if err := weakDecode(c.endpoint, &raw); err != nil {
		return false, fmt.Errorf("%w: profile fields: %v", ErrProtocol, err)
	}
	id, err := uuid.Parse(raw.UUID)
	if err != nil {
		return false, fmt.Errorf("%w: profile uuid %q: %v", ErrProtocol, raw.UUID, err)
	}
	ver, err := semver.NewVersion(raw.Version)
	if err != nil {
		return false, fmt.Errorf("%w: profile version %q: %v", ErrProtocol, raw.Version, err)
	}

	c.profile = Profile{
		UUID:     id,
		Serial:   raw.Serial,
		Version:  ver,
		Model:    raw.Model,
		Nickname: raw.Nickname,
	}
	c.flags.Or(flagConnected)
	c.log.Info().
		Str("serial", raw.Serial).
		Str("model", raw.Model).
		Str("nickname", raw.Nickname).
		Msg("link connected")
	return true, nil
}
