package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeResponder captures everything the executor sends.
type fakeResponder struct {
	mu        sync.Mutex
	responses map[uint32]json.RawMessage
	binaries  map[uint32][]byte
	errors    map[uint32][2]string // message, stack
	done      chan uint32
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{
		responses: make(map[uint32]json.RawMessage),
		binaries:  make(map[uint32][]byte),
		errors:    make(map[uint32][2]string),
		done:      make(chan uint32, 16),
	}
}

func (f *fakeResponder) SendCommandResponse(id uint32, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := value.([]byte); ok {
		f.binaries[id] = b
	} else {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		f.responses[id] = raw
	}
	f.done <- id
	return nil
}

func (f *fakeResponder) SendCommandError(id uint32, message, stack string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[id] = [2]string{message, stack}
	f.done <- id
	return nil
}

func (f *fakeResponder) wait(t *testing.T, id uint32) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-f.done:
			if got == id {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for response to id %d", id)
		}
	}
}

func rawParams(t *testing.T, params ...any) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshaling parameter: %v", err)
		}
		out = append(out, raw)
	}
	return out
}

// ---------------------------------------------------------------------------
// Registration semantics
// ---------------------------------------------------------------------------

func TestRegisterDomainIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.RegisterDomain("fs")
	b := r.RegisterDomain("fs")
	if a != b {
		t.Error("re-registering a domain should return the existing one")
	}
}

func TestRegisterCommandLastWriterWins(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("fs", "stat", Handler{Sync: func(args []any) (any, error) { return "first", nil }})
	r.RegisterCommand("fs", "stat", Handler{Sync: func(args []any) (any, error) { return "second", nil }})

	resp := newFakeResponder()
	r.Execute(context.Background(), resp, 1, "fs", "stat", nil)
	resp.wait(t, 1)

	if string(resp.responses[1]) != `"second"` {
		t.Errorf("response = %s, want \"second\"", resp.responses[1])
	}
}

func TestRegisterCommandRequiresExactlyOneVariant(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterCommand("fs", "bad", Handler{}); err == nil {
		t.Error("expected error for handler with no variant")
	}
	both := Handler{
		Sync:  func(args []any) (any, error) { return nil, nil },
		Async: func(ctx context.Context, args []any) (any, error) { return nil, nil },
	}
	if err := r.RegisterCommand("fs", "bad", both); err == nil {
		t.Error("expected error for handler with both variants")
	}
}

// ---------------------------------------------------------------------------
// Execution semantics
// ---------------------------------------------------------------------------

func TestExecuteUnknownCommand(t *testing.T) {
	r := NewRegistry()
	resp := newFakeResponder()
	r.Execute(context.Background(), resp, 2, "fs", "bogus", nil)
	resp.wait(t, 2)

	msg := resp.errors[2][0]
	if !strings.Contains(msg, "no such command") || !strings.Contains(msg, "fs.bogus") {
		t.Errorf("error message = %q", msg)
	}
}

func TestExecutePassesPositionalArgs(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("echo", "join", Handler{
		Sync: func(args []any) (any, error) {
			a, _ := StringArg(args, 0)
			b, _ := StringArg(args, 1)
			return a + ":" + b, nil
		},
	})

	resp := newFakeResponder()
	r.Execute(context.Background(), resp, 3, "echo", "join", rawParams(t, "left", "right"))
	resp.wait(t, 3)

	if string(resp.responses[3]) != `"left:right"` {
		t.Errorf("response = %s", resp.responses[3])
	}
}

func TestExecuteSyncAsyncUniformity(t *testing.T) {
	value := map[string]any{"n": float64(42), "s": "x"}

	r := NewRegistry()
	r.RegisterCommand("u", "sync", Handler{
		Sync: func(args []any) (any, error) { return value, nil },
	})
	r.RegisterCommand("u", "async", Handler{
		Async: func(ctx context.Context, args []any) (any, error) { return value, nil },
	})

	respSync := newFakeResponder()
	r.Execute(context.Background(), respSync, 10, "u", "sync", nil)
	respSync.wait(t, 10)

	respAsync := newFakeResponder()
	r.Execute(context.Background(), respAsync, 10, "u", "async", nil)
	respAsync.wait(t, 10)

	if diff := cmp.Diff(string(respSync.responses[10]), string(respAsync.responses[10])); diff != "" {
		t.Errorf("sync and async wire responses differ (-sync +async):\n%s", diff)
	}
}

func TestExecuteHandlerError(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("fs", "fail", Handler{
		Sync: func(args []any) (any, error) { return nil, errors.New("boom") },
	})

	resp := newFakeResponder()
	r.Execute(context.Background(), resp, 4, "fs", "fail", nil)
	resp.wait(t, 4)

	if resp.errors[4][0] != "boom" {
		t.Errorf("message = %q, want boom", resp.errors[4][0])
	}
}

func TestExecuteHandlerPanicHasStack(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("fs", "explode", Handler{
		Sync: func(args []any) (any, error) { panic("boom") },
	})

	resp := newFakeResponder()
	r.Execute(context.Background(), resp, 5, "fs", "explode", nil)
	resp.wait(t, 5)

	msg, stack := resp.errors[5][0], resp.errors[5][1]
	if msg != "boom" {
		t.Errorf("message = %q, want boom", msg)
	}
	if stack == "" {
		t.Error("expected a stack trace for a panicking handler")
	}
}

func TestExecuteAsyncPanicHasStack(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("fs", "explode", Handler{
		Async: func(ctx context.Context, args []any) (any, error) { panic("late boom") },
	})

	resp := newFakeResponder()
	r.Execute(context.Background(), resp, 6, "fs", "explode", nil)
	resp.wait(t, 6)

	if resp.errors[6][0] != "late boom" || resp.errors[6][1] == "" {
		t.Errorf("error = %v", resp.errors[6])
	}
}

func TestExecuteBinaryResult(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("fs", "hash", Handler{
		Sync: func(args []any) (any, error) { return []byte{0xb0, 0xb1}, nil },
	})

	resp := newFakeResponder()
	r.Execute(context.Background(), resp, 7, "fs", "hash", nil)
	resp.wait(t, 7)

	if diff := cmp.Diff([]byte{0xb0, 0xb1}, resp.binaries[7]); diff != "" {
		t.Errorf("binary mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle hook
// ---------------------------------------------------------------------------

type recordingHook struct {
	mu     sync.Mutex
	states []string
}

func (h *recordingHook) add(s string) {
	h.mu.Lock()
	h.states = append(h.states, s)
	h.mu.Unlock()
}

func (h *recordingHook) Dispatched(id uint32, domain, command string) {
	h.add(fmt.Sprintf("dispatched %s.%s", domain, command))
}
func (h *recordingHook) Resolved(id uint32, domain, command string) {
	h.add(fmt.Sprintf("resolved %s.%s", domain, command))
}
func (h *recordingHook) Rejected(id uint32, domain, command, message string) {
	h.add(fmt.Sprintf("rejected %s.%s: %s", domain, command, message))
}

func TestHookObservesLifecycle(t *testing.T) {
	r := NewRegistry()
	hook := &recordingHook{}
	r.SetHook(hook)
	r.RegisterCommand("x", "ok", Handler{Sync: func(args []any) (any, error) { return 1, nil }})
	r.RegisterCommand("x", "bad", Handler{Sync: func(args []any) (any, error) { return nil, errors.New("nope") }})

	resp := newFakeResponder()
	r.Execute(context.Background(), resp, 1, "x", "ok", nil)
	resp.wait(t, 1)
	r.Execute(context.Background(), resp, 2, "x", "bad", nil)
	resp.wait(t, 2)
	r.Execute(context.Background(), resp, 3, "x", "gone", nil)
	resp.wait(t, 3)

	want := []string{
		"dispatched x.ok",
		"resolved x.ok",
		"dispatched x.bad",
		"rejected x.bad: nope",
		"rejected x.gone: no such command: x.gone",
	}
	hook.mu.Lock()
	defer hook.mu.Unlock()
	if diff := cmp.Diff(want, hook.states); diff != "" {
		t.Errorf("lifecycle mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func TestDescriptions(t *testing.T) {
	r := NewRegistry()
	RegisterBase(r)
	r.RegisterCommand("fs", "stat", Handler{Sync: func(args []any) (any, error) { return nil, nil }})
	r.RegisterEvent("fs", "changed", EventSpec{Description: "file changed on disk"})

	descs := r.Descriptions()
	if len(descs) != 2 {
		t.Fatalf("descriptions = %+v", descs)
	}
	if descs[0].Domain != "base" || descs[1].Domain != "fs" {
		t.Errorf("domains not sorted: %+v", descs)
	}
	if descs[1].Events["changed"].Description != "file changed on disk" {
		t.Errorf("fs events = %+v", descs[1].Events)
	}
	found := false
	for _, c := range descs[0].Commands {
		if c == "getDomainDescriptions" {
			found = true
		}
	}
	if !found {
		t.Errorf("base commands = %v", descs[0].Commands)
	}
}
