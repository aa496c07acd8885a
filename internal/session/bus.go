package session

import (
	"context"
	"sync"
	"time"

	"github.com/schollz/orchestron/internal/types"
)

// busCapacity is the 200-event backlog bound from spec.md §4.7.
const busCapacity = 200

// Bus is a single-producer-per-event, many-consumer broadcast with a bounded
// backlog. Publish never blocks: it appends to a ring buffer and nudges
// every live subscription; a subscriber that falls more than busCapacity
// events behind skips forward to the oldest retained event rather than
// replaying out of order.
type Bus struct {
	mu      sync.Mutex
	buf     []types.Event
	nextSeq uint64
	subs    []*Subscription
}

// NewBus returns an empty event bus for one session.
func NewBus() *Bus {
	return &Bus{buf: make([]types.Event, 0, busCapacity)}
}

// Publish stamps ev with a sequence number and timestamp (if unset) and
// appends it to the backlog, evicting the oldest entry once at capacity.
func (b *Bus) Publish(ev types.Event) {
	b.mu.Lock()
	ev.Seq = b.nextSeq
	b.nextSeq++
	if ev.TimestampMillis == 0 {
		ev.TimestampMillis = time.Now().UnixMilli()
	}
	b.buf = append(b.buf, ev)
	if len(b.buf) > busCapacity {
		b.buf = b.buf[len(b.buf)-busCapacity:]
	}
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Subscription is one consumer's read endpoint, tracking its own cursor
// into the bus's backlog.
type Subscription struct {
	bus    *Bus
	cursor uint64
	notify chan struct{}
}

// Subscribe returns a new read endpoint positioned at the bus's current tail
// — it observes only events published from this point on.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{bus: b, cursor: b.nextSeq, notify: make(chan struct{}, 1)}
	b.subs = append(b.subs, sub)
	return sub
}

// Close detaches the subscription from its bus, so Publish no longer wakes it.
// A later Next call still returns retained events past its cursor; once none
// remain it blocks until ctx is cancelled.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for i, sub := range s.bus.subs {
		if sub == s {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			break
		}
	}
}

// Next blocks until an event is available or ctx is cancelled. Subscribers
// observe events in publish order; a subscriber that fell behind the
// retained backlog resumes at the oldest surviving event (a drop, never a
// reorder).
func (s *Subscription) Next(ctx context.Context) (types.Event, error) {
	for {
		s.bus.mu.Lock()
		if len(s.bus.buf) > 0 {
			oldest := s.bus.buf[0].Seq
			if s.cursor < oldest {
				s.cursor = oldest
			}
			if s.cursor < s.bus.nextSeq {
				idx := s.cursor - oldest
				ev := s.bus.buf[idx]
				s.cursor++
				s.bus.mu.Unlock()
				return ev, nil
			}
		}
		s.bus.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return types.Event{}, ctx.Err()
		}
	}
}
