package transport

import (
	"sync"

	"github.com/codespacesh/domainwire/internal/protocol"
)

// pipeBuffer is the per-direction frame buffer of an in-memory pipe.
const pipeBuffer = 64

// PipeChannel is one end of an in-memory channel pair. It preserves frame
// boundaries and frame kinds like the socket transports and is used for
// same-process embedding and tests.
type PipeChannel struct {
	out    chan *protocol.Frame
	in     chan *protocol.Frame
	closed chan struct{}
	peer   *PipeChannel
	once   sync.Once
}

// Pipe creates a connected channel pair. Frames sent on one end arrive at
// the other in order.
func Pipe() (*PipeChannel, *PipeChannel) {
	ab := make(chan *protocol.Frame, pipeBuffer)
	ba := make(chan *protocol.Frame, pipeBuffer)
	a := &PipeChannel{out: ab, in: ba, closed: make(chan struct{})}
	b := &PipeChannel{out: ba, in: ab, closed: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// Send delivers a text frame to the peer.
func (c *PipeChannel) Send(p []byte) error {
	return c.send(&protocol.Frame{Type: protocol.FrameText, Payload: p})
}

// SendBinary delivers a binary frame to the peer.
func (c *PipeChannel) SendBinary(p []byte) error {
	return c.send(&protocol.Frame{Type: protocol.FrameBinary, Payload: p})
}

func (c *PipeChannel) send(f *protocol.Frame) error {
	select {
	case <-c.closed:
		return ErrClosed
	case <-c.peer.closed:
		return ErrClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-c.peer.closed:
		return ErrClosed
	}
}

// Receive blocks until a frame arrives or either end closes. A close on
// either side surfaces as a clean (nil, nil) disconnect, like a socket EOF.
func (c *PipeChannel) Receive() (*protocol.Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return nil, nil
	case <-c.peer.closed:
		// Drain frames the peer sent before closing.
		select {
		case f := <-c.in:
			return f, nil
		default:
			return nil, nil
		}
	}
}

// Close closes this end. Idempotent.
func (c *PipeChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
