// Package broadcaster fans detected bottlenecks out to subscribers.
package broadcaster

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 100

// Event is a single bottleneck observation.
type Event struct {
	Bottleneck types.Bottleneck
	Time       time.Time
}

// Subscriber receives events at or above MinSeverity. An empty Types set
// means every bottleneck type.
type Subscriber struct {
	ID          string
	MinSeverity float64
	Types       []types.BottleneckType
	Events      chan *Event
}

// Broadcaster manages subscribers and distributes bottleneck events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	dropped     uint64
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber. It returns nil once the broadcaster
// is closed.
func (b *Broadcaster) Subscribe(minSeverity float64, only ...types.BottleneckType) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:          uuid.New().String(),
		MinSeverity: minSeverity,
		Types:       only,
		Events:      make(chan *Event, DefaultBuffer),
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends bn to every matching subscriber without blocking. Events
// for a subscriber whose buffer is full are dropped and counted.
func (b *Broadcaster) Notify(bn types.Bottleneck) {
	// Write lock: dropped is updated under it.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	now := time.Now()
	for _, sub := range b.subscribers {
		if !matches(sub, bn) {
			continue
		}
		select {
		case sub.Events <- &Event{Bottleneck: bn, Time: now}:
		default:
			b.dropped++
		}
	}
}

func matches(sub *Subscriber, bn types.Bottleneck) bool {
	if bn.Severity < sub.MinSeverity {
		return false
	}
	if len(sub.Types) == 0 {
		return true
	}
	for _, t := range sub.Types {
		if t == bn.Type {
			return true
		}
	}
	return false
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many events were discarded on full buffers.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
