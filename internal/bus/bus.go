package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize bounds the replay buffer.
	DefaultHistorySize = 500

	// DefaultChannelBuffer is the per-subscriber channel depth. A slow
	// subscriber drops events rather than blocking the publisher.
	DefaultChannelBuffer = 64
)

// SubscriptionID identifies one subscription.
type SubscriptionID string

// subscription is one registered handler with its delivery channel.
type subscription struct {
	id        SubscriptionID
	eventType EventType
	handler   func(Event)
	ch        chan Event
	done      chan struct{}
}

// Bus delivers engine events to subscribers. Handlers run on their own
// goroutine per subscription; Publish never blocks on a subscriber.
type Bus struct {
	mu         sync.RWMutex
	subs       map[SubscriptionID]*subscription
	typed      map[EventType]map[SubscriptionID]*subscription
	wildcard   map[SubscriptionID]*subscription
	subCounter uint64

	historyMu   sync.RWMutex
	history     []Event
	historySize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a bus with the default history size.
func New() *Bus {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory creates a bus retaining up to historySize events for replay.
func NewWithHistory(historySize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:        make(map[SubscriptionID]*subscription),
		typed:       make(map[EventType]map[SubscriptionID]*subscription),
		wildcard:    make(map[SubscriptionID]*subscription),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers a handler for one event type. EventType("") subscribes
// to all events.
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	if b.closed.Load() {
		return ""
	}

	b.mu.Lock()
	b.subCounter++
	id := SubscriptionID(fmt.Sprintf("sub_%d", b.subCounter))
	sub := &subscription{
		id:        id,
		eventType: eventType,
		handler:   handler,
		ch:        make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}
	b.subs[id] = sub
	if eventType == "" {
		b.wildcard[id] = sub
	} else {
		if b.typed[eventType] == nil {
			b.typed[eventType] = make(map[SubscriptionID]*subscription)
		}
		b.typed[eventType][id] = sub
	}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.deliver(sub)
	return id
}

func (b *Bus) deliver(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case ev := <-sub.ch:
			sub.handler(ev)
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.subs, id)
	if sub.eventType == "" {
		delete(b.wildcard, id)
	} else if typed, ok := b.typed[sub.eventType]; ok {
		delete(typed, id)
		if len(typed) == 0 {
			delete(b.typed, sub.eventType)
		}
	}
	b.mu.Unlock()

	close(sub.done)
	return nil
}

// Publish sends an event to every matching subscriber and records it in the
// replay history. Subscribers with a full channel miss the event.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	b.addToHistory(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.wildcard {
		select {
		case sub.ch <- event:
		default:
		}
	}
	for _, sub := range b.typed[event.Type] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (b *Bus) addToHistory(event Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// RecentHistory returns the last n retained events.
func (b *Bus) RecentHistory(n int) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()
	if n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts down delivery and clears all subscriptions.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("bus already closed")
	}

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[SubscriptionID]*subscription)
	b.typed = make(map[EventType]map[SubscriptionID]*subscription)
	b.wildcard = make(map[SubscriptionID]*subscription)
	b.mu.Unlock()
	return nil
}
