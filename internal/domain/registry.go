// Package domain holds the worker-side namespace of registered command and
// event providers. A domain is a named group of commands (invokable by id)
// and events (unsolicited notifications); the registry resolves
// (domain, command) pairs to handlers and executes them uniformly whether
// they are synchronous or asynchronous.
package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler is a tagged two-variant handler reference: exactly one of Sync or
// Async is set. Sync handlers run on the connection's receive goroutine and
// reply inline; Async handlers run in their own goroutine, so multiple
// commands can be in flight on one connection and responses may complete
// out of order.
//
// A handler returning raw []byte produces a binary response frame; any
// other value is serialized to JSON.
type Handler struct {
	Sync  SyncFunc
	Async AsyncFunc
}

// SyncFunc is a handler whose result is available immediately.
type SyncFunc func(args []any) (any, error)

// AsyncFunc is a handler that may block (I/O, subprocesses). The context is
// the connection's lifetime; no cancellation message exists in the
// protocol, so a dispatched command always runs to completion or failure.
type AsyncFunc func(ctx context.Context, args []any) (any, error)

// EventSpec is the declared parameter shape of an event. It is
// documentation and introspection only; nothing validates event parameters
// on the send path.
type EventSpec struct {
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Domain is one named namespace within the registry.
type Domain struct {
	Name     string
	commands map[string]Handler
	events   map[string]EventSpec
}

// Registry is the two-level mapping from domain name to command name to
// handler. Domains are additive for the process lifetime: there is no
// removal, and re-registering a domain reuses it.
type Registry struct {
	mu      sync.RWMutex
	domains map[string]*Domain
	hook    Hook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{domains: make(map[string]*Domain)}
}

// SetHook installs a lifecycle observer for command execution. Pass nil to
// remove it.
func (r *Registry) SetHook(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = h
}

// RegisterDomain creates the named domain, or returns the existing one.
// Re-registration is not an error.
func (r *Registry) RegisterDomain(name string) *Domain {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.domains[name]; ok {
		return d
	}
	d := &Domain{
		Name:     name,
		commands: make(map[string]Handler),
		events:   make(map[string]EventSpec),
	}
	r.domains[name] = d
	return d
}

// RegisterCommand associates a handler with a domain+command pair, creating
// the domain if needed. Registering the same pair again overwrites the
// previous handler, which is what lets tooling extensions hot-reload.
func (r *Registry) RegisterCommand(domainName, command string, h Handler) error {
	if (h.Sync == nil) == (h.Async == nil) {
		return fmt.Errorf("command %s.%s: exactly one of Sync or Async must be set", domainName, command)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.domains[domainName]
	if !ok {
		d = &Domain{
			Name:     domainName,
			commands: make(map[string]Handler),
			events:   make(map[string]EventSpec),
		}
		r.domains[domainName] = d
	}
	d.commands[command] = h
	return nil
}

// RegisterEvent records the declared parameter shape of an event, creating
// the domain if needed.
func (r *Registry) RegisterEvent(domainName, event string, spec EventSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.domains[domainName]
	if !ok {
		d = &Domain{
			Name:     domainName,
			commands: make(map[string]Handler),
			events:   make(map[string]EventSpec),
		}
		r.domains[domainName] = d
	}
	d.events[event] = spec
}

// Lookup resolves a domain+command pair to its handler.
func (r *Registry) Lookup(domainName, command string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.domains[domainName]
	if !ok {
		return Handler{}, false
	}
	h, ok := d.commands[command]
	return h, ok
}

// EventSpecFor returns the declared parameter shape of an event, if any.
func (r *Registry) EventSpecFor(domainName, event string) (EventSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.domains[domainName]
	if !ok {
		return EventSpec{}, false
	}
	spec, ok := d.events[event]
	return spec, ok
}

// Description is the introspectable shape of one registered domain.
type Description struct {
	Domain   string               `json:"domain"`
	Commands []string             `json:"commands"`
	Events   map[string]EventSpec `json:"events,omitempty"`
}

// Descriptions returns a sorted snapshot of every registered domain, its
// command names, and its declared events.
func (r *Registry) Descriptions() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Description, 0, len(r.domains))
	for _, d := range r.domains {
		desc := Description{Domain: d.Name}
		for name := range d.commands {
			desc.Commands = append(desc.Commands, name)
		}
		sort.Strings(desc.Commands)
		if len(d.events) > 0 {
			desc.Events = make(map[string]EventSpec, len(d.events))
			for name, spec := range d.events {
				desc.Events[name] = spec
			}
		}
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}
