package bus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/latent-explorer/internal/types"
)

type subscriber struct {
	id          string
	delivered   atomic.Uint64
	overwritten atomic.Uint64

	// Set for Subscribe
	listener Listener

	// Set for SubscribeLatest
	holder *latestHolder
}

func (s *subscriber) deliver(result types.RenderResult) {
	if s.holder != nil {
		if replaced := s.holder.set(result); replaced {
			s.overwritten.Add(1)
		}
	} else {
		s.listener(result)
	}
	s.delivered.Add(1)
}

type bus struct {
	mu             sync.RWMutex
	subscribers    []*subscriber
	nextID         uint64
	totalPublished atomic.Uint64
	closed         bool
}

// New creates a new bus instance
func New() Bus {
	return &bus{}
}

// Subscribe registers a listener after all existing subscribers.
func (b *bus) Subscribe(listener Listener) (Subscription, error) {
	if listener == nil {
		return nil, ErrNilListener
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	// Generated ids skip any id already taken by SubscribeLatest.
	var id string
	for {
		b.nextID++
		id = fmt.Sprintf("listener-%d", b.nextID)
		if !b.hasIDLocked(id) {
			break
		}
	}
	sub := &subscriber{
		id:       id,
		listener: listener,
	}
	b.subscribers = append(b.subscribers, sub)
	return &subscription{bus: b, sub: sub}, nil
}

// SubscribeLatest registers a single-slot mailbox under id.
func (b *bus) SubscribeLatest(id string) (Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if b.hasIDLocked(id) {
		return nil, ErrSubscriberExists
	}

	sub := &subscriber{id: id}
	sub.holder = newLatestHolder(func() { b.remove(sub) })
	b.subscribers = append(b.subscribers, sub)
	return sub.holder, nil
}

// Publish delivers result to every subscriber in subscription order and
// returns once all listeners have run. Subscribers added or removed by a
// listener take effect from the next Publish.
func (b *bus) Publish(result types.RenderResult) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	b.totalPublished.Add(1)
	for _, s := range subs {
		s.deliver(result)
	}
}

// Stats returns a snapshot of bus metrics
func (b *bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BusStats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for _, s := range b.subscribers {
		stats.Subscribers[s.id] = SubscriberStats{
			Delivered:   s.delivered.Load(),
			Overwritten: s.overwritten.Load(),
		}
	}
	return stats
}

// Close shuts down the bus and wakes all latest receivers
func (b *bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	for _, s := range subs {
		if s.holder != nil {
			s.holder.shutdown()
		}
	}
}

func (b *bus) hasIDLocked(id string) bool {
	for _, s := range b.subscribers {
		if s.id == id {
			return true
		}
	}
	return false
}

func (b *bus) remove(target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s == target {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

type subscription struct {
	bus  *bus
	sub  *subscriber
	once sync.Once
}

func (s *subscription) ID() string {
	return s.sub.id
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.sub) })
}
