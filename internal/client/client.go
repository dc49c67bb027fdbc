// Package client connects caller endpoints (the CLI, embedding UIs) to a
// running worker.
package client

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"nhooyr.io/websocket"

	"github.com/codespacesh/domainwire/internal/bridge"
	"github.com/codespacesh/domainwire/internal/transport"
)

// SocketName is the Unix socket filename inside the data directory.
const SocketName = "domainwire.sock"

// Target describes where to connect: either a local Unix socket or a remote
// WebSocket endpoint.
type Target struct {
	DataDir string // data dir holding the Unix socket (empty if remote)
	URL     string // ws:// or wss:// URL for remote
}

// IsLocal returns true when the target is a local Unix socket connection.
func (t *Target) IsLocal() bool { return t.URL == "" }

// Connect establishes the transport channel to the target. The caller is
// responsible for closing it.
func (t *Target) Connect(ctx context.Context) (transport.Channel, error) {
	if t.IsLocal() {
		sockPath := filepath.Join(t.DataDir, SocketName)
		conn, err := net.Dial("unix", sockPath)
		if err != nil {
			return nil, fmt.Errorf("connecting to local socket: %w", err)
		}
		return transport.NewUnixChannel(conn), nil
	}

	wsURL := t.URL
	if strings.HasPrefix(wsURL, "http://") {
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	} else if strings.HasPrefix(wsURL, "https://") {
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	}
	if !strings.HasSuffix(wsURL, "/wire") {
		wsURL = strings.TrimSuffix(wsURL, "/") + "/wire"
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to remote worker: %w", err)
	}
	// Remove the default read limit so large frames are not rejected.
	conn.SetReadLimit(-1)
	return transport.NewWSChannel(ctx, conn), nil
}

// Open connects to the target and starts a caller-side bridge connection
// with its receive loop running. Closing the returned connection also
// closes the transport.
func (t *Target) Open(ctx context.Context) (*bridge.Connection, error) {
	ch, err := t.Connect(ctx)
	if err != nil {
		return nil, err
	}
	conn := bridge.New(ch, nil)
	go conn.Run(ctx)
	return conn, nil
}
