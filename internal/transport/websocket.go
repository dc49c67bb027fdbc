package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nhooyr.io/websocket"

	"github.com/codespacesh/domainwire/internal/protocol"
)

// WSChannel carries bridge frames over a WebSocket connection. Text
// messages map to text frames and binary messages to binary frames, so the
// frame kind always rides the transport's own message type.
// It is safe for concurrent senders.
type WSChannel struct {
	conn *websocket.Conn
	ctx  context.Context
	wmu  sync.Mutex
}

// NewWSChannel wraps an accepted or dialed WebSocket connection.
func NewWSChannel(ctx context.Context, conn *websocket.Conn) *WSChannel {
	return &WSChannel{conn: conn, ctx: ctx}
}

// Send writes a text frame as a WebSocket text message.
func (c *WSChannel) Send(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageText, p)
}

// SendBinary writes a binary frame as a WebSocket binary message.
func (c *WSChannel) SendBinary(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageBinary, p)
}

// Receive reads the next frame. Returns (nil, nil) on normal close.
func (c *WSChannel) Receive() (*protocol.Frame, error) {
	msgType, data, err := c.conn.Read(c.ctx)
	if err != nil {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			return nil, nil
		}
		return nil, err
	}

	switch msgType {
	case websocket.MessageText:
		return &protocol.Frame{Type: protocol.FrameText, Payload: data}, nil
	case websocket.MessageBinary:
		return &protocol.Frame{Type: protocol.FrameBinary, Payload: data}, nil
	default:
		return nil, fmt.Errorf("unexpected websocket message type: %d", msgType)
	}
}

// Close sends a normal closure message and closes the WebSocket.
func (c *WSChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
