package bridge

import (
	"sync"

	"github.com/codespacesh/domainwire/internal/protocol"
)

// subscriptionBuffer bounds each subscriber's event queue; events beyond it
// are dropped rather than blocking the receive loop.
const subscriptionBuffer = 256

// Subscription receives events for one (domain, event) pair. Events arrive
// on C; the channel is closed on Unsubscribe and on connection close.
type Subscription struct {
	id     uint64
	domain string
	event  string
	C      chan protocol.Event
}

// subscriptions fans inbound events out by (domain, event) name. Delivery
// bypasses the pending-request table entirely: events carry no correlation,
// and an event with no subscribers is not an error.
type subscriptions struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

func newSubscriptions() *subscriptions {
	return &subscriptions{subs: make(map[uint64]*Subscription)}
}

func (s *subscriptions) subscribe(domain, event string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &Subscription{
		id:     s.nextID,
		domain: domain,
		event:  event,
		C:      make(chan protocol.Event, subscriptionBuffer),
	}
	s.nextID++
	if s.closed {
		close(sub.C)
		return sub
	}
	s.subs[sub.id] = sub
	return sub
}

func (s *subscriptions) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.id]; ok {
		delete(s.subs, sub.id)
		close(sub.C)
	}
}

// publish delivers ev to every matching subscriber, dropping it for
// subscribers whose buffer is full.
func (s *subscriptions) publish(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.domain != ev.Domain || sub.event != ev.Event {
			continue
		}
		select {
		case sub.C <- ev:
		default: // drop for slow subscribers
		}
	}
}

// closeAll closes every subscriber channel; later subscribes get an
// already-closed channel.
func (s *subscriptions) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		close(sub.C)
		delete(s.subs, id)
	}
}
