package bridge

import (
	"log/slog"
	"sync"
)

// Pool tracks every live connection owned by one endpoint. It is an
// explicit, injected registry created by whatever bootstraps the process,
// never package-level state, and supports best-effort broadcast and
// orderly shutdown.
type Pool struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*Connection)}
}

// Register adds a connection. The connection unregisters itself when it
// closes.
func (p *Pool) Register(c *Connection) {
	p.mu.Lock()
	p.conns[c.ID()] = c
	p.mu.Unlock()
	c.setPool(p)
}

// Unregister removes a connection. Removing an unknown connection is a
// no-op.
func (p *Pool) Unregister(c *Connection) {
	p.mu.Lock()
	delete(p.conns, c.ID())
	p.mu.Unlock()
}

// Len returns the number of live connections.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// BroadcastEvent sends the same event to every registered connection. Each
// send is isolated: a failure on one connection (closed mid-iteration, for
// example) never prevents delivery to the others.
func (p *Pool) BroadcastEvent(id uint32, domainName, event string, params ...any) {
	p.mu.RLock()
	conns := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	for _, c := range conns {
		if err := c.SendEventMessage(id, domainName, event, params...); err != nil {
			slog.Debug("broadcast send failed", "conn", c.ID(), "domain", domainName, "event", event, "err", err)
		}
	}
}

// CloseAll closes every connection, tolerating individual close failures.
// Used during process shutdown.
func (p *Pool) CloseAll() {
	p.mu.RLock()
	conns := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			slog.Debug("closing connection", "conn", c.ID(), "err", err)
		}
	}
}
