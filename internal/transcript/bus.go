package transcript

import (
	"context"
	"sync"
)

// DefaultCapacity is the per-subscriber queue length used when none is given.
const DefaultCapacity = 16

// Bus fans transcript events out to any number of subscribers. Publish never
// waits for a subscriber: each one owns a fixed-size ring, and when a
// subscriber falls behind its oldest events are overwritten and it is told
// how many it missed on the next Recv.
type Bus struct {
	capacity int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Publish queues ev for every current subscriber and returns how many
// received it. With no subscribers the event is discarded.
func (b *Bus) Publish(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.push(ev)
	}
	return len(b.subs)
}

// Subscribe registers a new subscriber that sees events published from now on.
// Subscribing to a closed bus returns an already closed subscription.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:    b,
		ring:   make([]Event, b.capacity),
		notify: make(chan struct{}, 1),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription and rejects new ones.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()
	for s := range subs {
		s.markClosed()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Status tags the outcome of a Recv.
type Status int

const (
	// Delivered carries the next event in publish order.
	Delivered Status = iota
	// Lagged reports that Missed events were overwritten before they were read.
	Lagged
	// Closed means the subscription will deliver nothing more.
	Closed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Lagged:
		return "lagged"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Received is the tagged result of Subscription.Recv.
type Received struct {
	Status Status
	Event  Event  // set when Status is Delivered
	Missed uint64 // set when Status is Lagged
}

// Subscription is one consumer's view of a Bus.
type Subscription struct {
	bus    *Bus
	notify chan struct{}

	mu     sync.Mutex
	ring   []Event
	head   int
	count  int
	missed uint64
	closed bool
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.count == len(s.ring) {
		s.head = (s.head + 1) % len(s.ring)
		s.count--
		s.missed++
	}
	s.ring[(s.head+s.count)%len(s.ring)] = ev
	s.count++
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv waits for the next result. A pending lag report is returned before
// the oldest retained event. Queued events are still delivered after the
// subscription is closed; Closed is returned once they are drained. The
// error is non-nil only when ctx ends first.
func (s *Subscription) Recv(ctx context.Context) (Received, error) {
	for {
		if r, ok := s.poll(); ok {
			return r, nil
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return Received{Status: Closed}, ctx.Err()
		}
	}
}

// TryRecv is the non-blocking form of Recv. It reports false when nothing is
// ready.
func (s *Subscription) TryRecv() (Received, bool) {
	return s.poll()
}

func (s *Subscription) poll() (Received, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missed > 0 {
		n := s.missed
		s.missed = 0
		return Received{Status: Lagged, Missed: n}, true
	}
	if s.count > 0 {
		ev := s.ring[s.head]
		s.ring[s.head] = Event{}
		s.head = (s.head + 1) % len(s.ring)
		s.count--
		return Received{Status: Delivered, Event: ev}, true
	}
	if s.closed {
		return Received{Status: Closed}, true
	}
	return Received{}, false
}

// Close unsubscribes. Further publishes are not queued.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.markClosed()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}
