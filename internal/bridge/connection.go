// Package bridge implements the command/event dispatch endpoints of the
// UI<->worker bridge. A Connection multiplexes many pending calls, a remote
// peer's own concurrency, and an event push channel over one ordered duplex
// transport, and survives malformed input and disconnects without
// corrupting neighboring requests.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/codespacesh/domainwire/internal/domain"
	"github.com/codespacesh/domainwire/internal/protocol"
	"github.com/codespacesh/domainwire/internal/transport"
)

// ErrConnectionClosed is returned by Invoke when the connection is or
// becomes closed before a response arrives.
var ErrConnectionClosed = errors.New("connection closed")

// Result is a command's resolved value: JSON for text responses, raw bytes
// for binary response frames.
type Result struct {
	JSON     json.RawMessage
	Binary   []byte
	IsBinary bool
}

// Decode unmarshals a JSON result into v.
func (r Result) Decode(v any) error {
	return json.Unmarshal(r.JSON, v)
}

// Connection is one endpoint of the bridge. Both ends are symmetric: each
// can issue commands, execute inbound commands against its registry, send
// events, and subscribe to the peer's events.
type Connection struct {
	id      string
	ch      transport.Channel
	reg     *domain.Registry
	pending *pendingTable
	subs    *subscriptions

	mu        sync.Mutex
	connected bool
	pool      *Pool

	closed    chan struct{}
	closeOnce sync.Once
}

// New wraps a transport channel into a live connection. reg may be nil for
// a pure caller endpoint; inbound commands are then rejected. The caller
// must run the receive loop via Run.
func New(ch transport.Channel, reg *domain.Registry) *Connection {
	return &Connection{
		id:        uuid.NewString(),
		ch:        ch,
		reg:       reg,
		pending:   newPendingTable(),
		subs:      newSubscriptions(),
		connected: true,
		closed:    make(chan struct{}),
	}
}

// ID returns the connection's process-local identifier.
func (c *Connection) ID() string { return c.id }

// Connected reports whether the connection is still live.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run receives and dispatches frames until the peer disconnects, Close is
// called, or ctx is cancelled. It always closes the connection on the way
// out. The returned error is the transport failure that ended the loop, or
// nil on a clean close.
func (c *Connection) Run(ctx context.Context) error {
	defer c.Close()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.closed:
		}
	}()

	for {
		f, err := c.ch.Receive()
		if err != nil {
			if c.Connected() {
				slog.Debug("transport receive failed", "conn", c.id, "err", err)
				return err
			}
			return nil
		}
		if f == nil {
			return nil // clean disconnect
		}
		switch f.Type {
		case protocol.FrameBinary:
			c.receiveBinary(ctx, f.Payload)
		default:
			c.receiveText(ctx, f.Payload)
		}
	}
}

// receiveText handles one inbound text frame: either a bare command request
// or a {type, message} envelope. Malformed input is reported back to the
// sender as an error envelope and never drops the connection.
func (c *Connection) receiveText(ctx context.Context, raw []byte) {
	// One-shot repair for a known transport truncation bug: retry with a
	// single '}' appended before giving up. See protocol.Repair.
	data, ok := protocol.Repair(raw)
	if !ok {
		c.SendError("Unable to parse message: " + string(raw))
		return
	}

	var probe struct {
		Type protocol.Kind `json:"type"`
	}
	// A failed probe leaves Type empty and the frame is treated as a
	// request, whose own validation reports the malformation.
	_ = json.Unmarshal(data, &probe)

	if probe.Type.Valid() {
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			c.SendError("Unable to parse message: " + string(raw))
			return
		}
		c.receiveEnvelope(env)
		return
	}

	req, err := protocol.DecodeRequest(data)
	if err != nil {
		c.SendError(err.Error())
		return
	}

	if c.reg == nil {
		c.SendCommandError(req.ID, "no such command: "+req.Domain+"."+req.Command, "")
		return
	}
	c.reg.Execute(ctx, c, req.ID, req.Domain, req.Command, req.Parameters)
}

// receiveEnvelope routes a decoded envelope: responses and errors settle
// the pending table by id, events fan out to subscribers, and peer-reported
// protocol errors are logged.
func (c *Connection) receiveEnvelope(env *protocol.Envelope) {
	switch env.Kind {
	case protocol.KindCommandResponse:
		m := env.CommandResponse
		if !c.pending.settle(m.ID, result{raw: m.Response}) {
			slog.Debug("response for unknown request id", "conn", c.id, "id", m.ID)
		}
	case protocol.KindCommandError:
		m := env.CommandError
		if !c.pending.settle(m.ID, result{err: &CommandFailure{Message: m.Message, Stack: m.Stack}}) {
			slog.Debug("error for unknown request id", "conn", c.id, "id", m.ID)
		}
	case protocol.KindEvent:
		c.subs.publish(*env.Event)
	case protocol.KindError:
		slog.Warn("peer reported protocol error", "conn", c.id, "message", env.Error.Message)
	}
}

// receiveBinary settles a pending request from a binary response frame.
func (c *Connection) receiveBinary(_ context.Context, payload []byte) {
	id, body, err := protocol.DecodeBinaryResponse(payload)
	if err != nil {
		slog.Warn("dropping malformed binary frame", "conn", c.id, "err", err)
		return
	}
	if !c.pending.settle(id, result{binary: body, isBinary: true}) {
		slog.Debug("binary response for unknown request id", "conn", c.id, "id", id)
	}
}

// Invoke issues a command to the peer and blocks until its response or
// error arrives. ctx cancels only the wait: the protocol has no cancel
// message, so the remote handler still runs to completion and its late
// reply is dropped as an unknown id.
func (c *Connection) Invoke(ctx context.Context, domainName, command string, params ...any) (Result, error) {
	if !c.Connected() {
		return Result{}, ErrConnectionClosed
	}

	id := nextRequestID.Add(1)
	ch := c.pending.add(id)

	data, err := protocol.EncodeRequest(id, domainName, command, params)
	if err != nil {
		c.pending.drop(id)
		return Result{}, err
	}
	if err := c.ch.Send(data); err != nil {
		c.pending.drop(id)
		return Result{}, err
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return Result{}, res.err
		}
		return Result{JSON: res.raw, Binary: res.binary, IsBinary: res.isBinary}, nil
	case <-ctx.Done():
		c.pending.drop(id)
		return Result{}, ctx.Err()
	case <-c.closed:
		c.pending.drop(id)
		return Result{}, ErrConnectionClosed
	}
}

// Subscribe registers for events named (domain, event) pushed by the peer.
func (c *Connection) Subscribe(domainName, event string) *Subscription {
	return c.subs.subscribe(domainName, event)
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.subs.unsubscribe(sub)
}

// send encodes and writes an envelope. A serialization failure is logged
// locally and never reaches the peer as a malformed frame; a send on a
// closed connection is a no-op.
func (c *Connection) send(env *protocol.Envelope) error {
	if !c.Connected() {
		return nil
	}
	data, err := env.Encode()
	if err != nil {
		slog.Error("failed to serialize envelope", "conn", c.id, "kind", env.Kind, "err", err)
		return nil
	}
	return c.ch.Send(data)
}

// SendError reports a malformed or unparsable inbound message back to the
// sender.
func (c *Connection) SendError(text string) {
	if err := c.send(protocol.NewError(text)); err != nil {
		slog.Debug("sending error envelope failed", "conn", c.id, "err", err)
	}
}

// SendCommandResponse resolves the peer's request id with value. Raw byte
// payloads are framed on the binary path automatically; everything else is
// serialized to JSON. Callers never choose the framing.
func (c *Connection) SendCommandResponse(id uint32, value any) error {
	if b, ok := value.([]byte); ok {
		if !c.Connected() {
			return nil
		}
		return c.ch.SendBinary(protocol.EncodeBinaryResponse(id, b))
	}
	env, err := protocol.NewCommandResponse(id, value)
	if err != nil {
		// Never forward an unserializable value as a broken frame.
		slog.Error("failed to serialize command response", "conn", c.id, "id", id, "err", err)
		return nil
	}
	return c.send(env)
}

// SendCommandError rejects the peer's request id with a message and an
// optional stack trace.
func (c *Connection) SendCommandError(id uint32, message, stack string) error {
	return c.send(protocol.NewCommandError(id, message, stack))
}

// SendEventMessage pushes an unsolicited event to the peer.
func (c *Connection) SendEventMessage(id uint32, domainName, event string, params ...any) error {
	env, err := protocol.NewEvent(id, domainName, event, params)
	if err != nil {
		slog.Error("failed to serialize event", "conn", c.id, "domain", domainName, "event", event, "err", err)
		return nil
	}
	return c.send(env)
}

// Close tears the connection down: flips the liveness flag, closes the
// underlying channel (tolerating a close on an already-broken channel),
// unregisters from the pool, and releases event subscribers. Idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		pool := c.pool
		c.mu.Unlock()

		close(c.closed)
		if err := c.ch.Close(); err != nil {
			slog.Debug("closing transport channel", "conn", c.id, "err", err)
		}
		c.subs.closeAll()
		if pool != nil {
			pool.Unregister(c)
		}
	})
	return nil
}

func (c *Connection) setPool(p *Pool) {
	c.mu.Lock()
	c.pool = p
	c.mu.Unlock()
}
