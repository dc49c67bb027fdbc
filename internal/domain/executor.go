package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Responder is the reply surface the executor addresses results to. It is
// implemented by bridge.Connection.
type Responder interface {
	SendCommandResponse(id uint32, value any) error
	SendCommandError(id uint32, message, stack string) error
}

// Hook observes the lifecycle of command invocations. Every invocation
// moves Dispatched -> Resolved or Dispatched -> Rejected; there are no
// other transitions and no cancellation.
type Hook interface {
	Dispatched(id uint32, domain, command string)
	Resolved(id uint32, domain, command string)
	Rejected(id uint32, domain, command, message string)
}

// Execute resolves and invokes a command, addressing the outcome to resp
// keyed by the request id. Every failure mode (unknown command, handler
// error, handler panic, undecodable parameters) becomes a commandError for
// that id; Execute never panics and never returns an error to the receive
// path.
//
// Sync handlers reply before Execute returns. Async handlers reply from a
// separate goroutine, so the caller's receive loop stays free to dispatch
// further commands; nothing serializes command execution.
func (r *Registry) Execute(ctx context.Context, resp Responder, id uint32, domainName, command string, params []json.RawMessage) {
	r.mu.RLock()
	hook := r.hook
	r.mu.RUnlock()

	h, ok := r.Lookup(domainName, command)
	if !ok {
		msg := fmt.Sprintf("no such command: %s.%s", domainName, command)
		if hook != nil {
			hook.Rejected(id, domainName, command, msg)
		}
		if err := resp.SendCommandError(id, msg, ""); err != nil {
			slog.Debug("sending commandError failed", "id", id, "err", err)
		}
		return
	}

	args, err := decodeArgs(params)
	if err != nil {
		msg := fmt.Sprintf("invalid parameters for %s.%s: %v", domainName, command, err)
		if hook != nil {
			hook.Rejected(id, domainName, command, msg)
		}
		if sendErr := resp.SendCommandError(id, msg, ""); sendErr != nil {
			slog.Debug("sending commandError failed", "id", id, "err", sendErr)
		}
		return
	}

	if hook != nil {
		hook.Dispatched(id, domainName, command)
	}

	if h.Sync != nil {
		r.run(resp, hook, id, domainName, command, func() (any, error) {
			return h.Sync(args)
		})
		return
	}
	go r.run(resp, hook, id, domainName, command, func() (any, error) {
		return h.Async(ctx, args)
	})
}

// run invokes fn and converts its outcome, whether value, error, or panic,
// into exactly one response addressed to id.
func (r *Registry) run(resp Responder, hook Hook, id uint32, domainName, command string, fn func() (any, error)) {
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprint(rec)
			stack := string(debug.Stack())
			if hook != nil {
				hook.Rejected(id, domainName, command, msg)
			}
			if err := resp.SendCommandError(id, msg, stack); err != nil {
				slog.Debug("sending commandError failed", "id", id, "err", err)
			}
		}
	}()

	value, err := fn()
	if err != nil {
		if hook != nil {
			hook.Rejected(id, domainName, command, err.Error())
		}
		if sendErr := resp.SendCommandError(id, err.Error(), ""); sendErr != nil {
			slog.Debug("sending commandError failed", "id", id, "err", sendErr)
		}
		return
	}

	if hook != nil {
		hook.Resolved(id, domainName, command)
	}
	if sendErr := resp.SendCommandResponse(id, value); sendErr != nil {
		slog.Debug("sending commandResponse failed", "id", id, "err", sendErr)
	}
}

// decodeArgs turns the raw JSON parameters into positional values for the
// handler.
func decodeArgs(params []json.RawMessage) ([]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	args := make([]any, len(params))
	for i, p := range params {
		if err := json.Unmarshal(p, &args[i]); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return args, nil
}
