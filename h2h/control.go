package h2h

import (
	"github.com/mitchellh/mapstructure"
)

const statusOK = "ok"

// ctrlAction is the closed set of channel control actions, decoded once at
// the boundary instead of string-matching all over the dispatch path.
type ctrlAction int

const (
	actionUnknown ctrlAction = iota
	actionOpen
	actionClose
)

const (
	actionOpenName  = "open"
	actionCloseName = "close"
)

func parseAction(s string) ctrlAction {
	switch s {
	case actionOpenName:
		return actionOpen
	case actionCloseName:
		return actionClose
	default:
		return actionUnknown
	}
}

// ctrlRequest is sent on the control-request channel to open or close a
// data channel.
type ctrlRequest struct {
	Channel byte   `msgpack:"channel"`
	Action  string `msgpack:"action"`
	Type    string `msgpack:"type,omitempty"`
}

// ctrlResponse is the peer's answer on the control-response channel.
type ctrlResponse struct {
	Channel int    `mapstructure:"channel"`
	Status  string `mapstructure:"status"`
	Action  string `mapstructure:"action"`
}

func (r ctrlResponse) action() ctrlAction {
	return parseAction(r.Action)
}

func (r ctrlResponse) ok() bool {
	return r.Status == statusOK
}

// weakDecode maps an untyped decoded record onto a struct, converting
// scalar types loosely the way record encodings require.
func weakDecode(in, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
