// Package transport provides duplex, message-oriented channels between the
// two ends of the command bridge. Each channel delivers whole frames in
// order and distinguishes text frames (JSON) from binary frames at the
// transport level, never by content sniffing.
package transport

import (
	"errors"

	"github.com/codespacesh/domainwire/internal/protocol"
)

// ErrClosed is returned by Send and SendBinary on a closed channel.
var ErrClosed = errors.New("channel closed")

// Channel is one end of a duplex message channel.
//
// Receive blocks until the next frame arrives; it returns (nil, nil) when
// the peer closed cleanly and a non-nil error on transport failure.
// Close is safe to call more than once.
type Channel interface {
	Send(p []byte) error
	SendBinary(p []byte) error
	Receive() (*protocol.Frame, error)
	Close() error
}
