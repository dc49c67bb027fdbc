package transport

import (
	"net"
	"sync"

	"github.com/codespacesh/domainwire/internal/protocol"
)

// UnixChannel frames messages over a stream connection (a Unix domain
// socket in practice) using the [type][len][payload] frame codec.
// It is safe for concurrent senders.
type UnixChannel struct {
	conn net.Conn
	wmu  sync.Mutex
}

// NewUnixChannel wraps an established stream connection.
func NewUnixChannel(conn net.Conn) *UnixChannel {
	return &UnixChannel{conn: conn}
}

// Send writes a text frame.
func (c *UnixChannel) Send(p []byte) error {
	return c.writeFrame(&protocol.Frame{Type: protocol.FrameText, Payload: p})
}

// SendBinary writes a binary frame.
func (c *UnixChannel) SendBinary(p []byte) error {
	return c.writeFrame(&protocol.Frame{Type: protocol.FrameBinary, Payload: p})
}

func (c *UnixChannel) writeFrame(f *protocol.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return protocol.WriteFrame(c.conn, f)
}

// Receive reads the next frame. Returns (nil, nil) on clean EOF.
func (c *UnixChannel) Receive() (*protocol.Frame, error) {
	return protocol.ReadFrame(c.conn)
}

// Close closes the underlying connection.
func (c *UnixChannel) Close() error {
	return c.conn.Close()
}
