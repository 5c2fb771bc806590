package transport

import (
	"fmt"

	"golang.org/x/net/websocket"
)

// DialWS opens a link transport over a WebSocket connection. The address
// must be a host and port. Opening a WebSocket connection at a particular
// path is not supported.
func DialWS(addr string) (*Conn, error) {
	ws, err := websocket.Dial(fmt.Sprintf("ws://%s/", addr), "", fmt.Sprintf("http://%s/", addr))
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return NewConn(ws), nil
}
