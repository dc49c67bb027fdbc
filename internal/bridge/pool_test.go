package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/codespacesh/domainwire/internal/transport"
)

// poolMember wires one worker-side connection into p and returns the
// caller end for observing what the member sends.
func poolMember(t *testing.T, p *Pool) (member, caller *Connection) {
	t.Helper()
	memberCh, callerCh := transport.Pipe()
	member = New(memberCh, nil)
	caller = New(callerCh, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go member.Run(ctx)
	go caller.Run(ctx)
	t.Cleanup(func() {
		caller.Close()
		member.Close()
	})
	p.Register(member)
	return member, caller
}

func expectEvent(t *testing.T, sub *Subscription, label string) {
	t.Helper()
	select {
	case <-sub.C:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s never received the broadcast", label)
	}
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	p := NewPool()
	_, callerA := poolMember(t, p)
	_, callerB := poolMember(t, p)
	_, callerC := poolMember(t, p)

	subA := callerA.Subscribe("worker", "status")
	subB := callerB.Subscribe("worker", "status")
	subC := callerC.Subscribe("worker", "status")

	p.BroadcastEvent(1, "worker", "status", "ready")

	expectEvent(t, subA, "caller A")
	expectEvent(t, subB, "caller B")
	expectEvent(t, subC, "caller C")
}

func TestBroadcastSurvivesClosedMember(t *testing.T) {
	p := NewPool()
	memberA, _ := poolMember(t, p)
	_, callerB := poolMember(t, p)

	subB := callerB.Subscribe("worker", "status")

	// Close A's transport out from under it so a send would fail, without
	// letting Close unregister it first.
	memberA.ch.Close()

	p.BroadcastEvent(1, "worker", "status", "ready")

	expectEvent(t, subB, "caller B")
}

func TestCloseUnregistersFromPool(t *testing.T) {
	p := NewPool()
	member, _ := poolMember(t, p)
	if got := p.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	member.Close()
	if got := p.Len(); got != 0 {
		t.Errorf("Len() after Close = %d, want 0", got)
	}
}

func TestUnregisterUnknownConnectionIsNoop(t *testing.T) {
	p := NewPool()
	stray := New(newClosedChannel(), nil)
	p.Unregister(stray) // never registered
	if got := p.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestCloseAll(t *testing.T) {
	p := NewPool()
	memberA, _ := poolMember(t, p)
	memberB, _ := poolMember(t, p)

	p.CloseAll()

	if memberA.Connected() || memberB.Connected() {
		t.Error("members still connected after CloseAll")
	}
	if got := p.Len(); got != 0 {
		t.Errorf("Len() after CloseAll = %d, want 0", got)
	}
}

func newClosedChannel() transport.Channel {
	a, b := transport.Pipe()
	b.Close()
	return a
}
