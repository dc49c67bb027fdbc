package bridge

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Request ids are drawn from a process-wide monotonic counter and never
// reused: a stale response for an abandoned id must never be misdelivered
// to a new pending request. The counter is uint32 because the binary
// response frame carries the id in a 4-byte header.
var nextRequestID atomic.Uint32

// CommandFailure is the rejection a caller observes when the remote handler
// fails. Stack carries the remote stack trace when one was available.
type CommandFailure struct {
	Message string
	Stack   string
}

func (e *CommandFailure) Error() string { return e.Message }

// result is the single-assignment resolution of a pending request.
type result struct {
	raw      json.RawMessage
	binary   []byte
	isBinary bool
	err      error
}

// pendingTable correlates outstanding request ids with their eventual
// resolution. Each entry is a buffered channel that is written exactly once
// and removed on resolution or abandonment.
type pendingTable struct {
	mu      sync.Mutex
	pending map[uint32]chan result
}

func newPendingTable() *pendingTable {
	return &pendingTable{pending: make(map[uint32]chan result)}
}

// add registers a fresh pending entry and returns its result channel.
func (t *pendingTable) add(id uint32) chan result {
	ch := make(chan result, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch
}

// settle resolves and removes the entry for id. It reports false when no
// entry exists (already resolved, abandoned, or never issued here), in
// which case the result is dropped with no effect on other entries.
func (t *pendingTable) settle(id uint32, res result) bool {
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

// drop abandons the entry for id without resolving it.
func (t *pendingTable) drop(id uint32) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}
