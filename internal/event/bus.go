package event

import (
	"sync"
)

const subscriberBuffer = 100

type subscriber struct {
	ch chan Event
	// types is nil for subscribers that receive everything.
	types   map[EventType]bool
	dropped uint64
}

func (s *subscriber) wants(t EventType) bool {
	return s.types == nil || s.types[t]
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event and the miss is counted.
type Bus struct {
	mu   sync.Mutex
	subs map[<-chan Event]*subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[<-chan Event]*subscriber)}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given.
func (b *Bus) Subscribe(types ...EventType) <-chan Event {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if len(types) > 0 {
		s.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s.ch] = s
	return s.ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(s.ch)
	}
}

func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if !s.wants(event.Type) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			s.dropped++
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped reports how many events ch has missed so far.
func (b *Bus) Dropped(ch <-chan Event) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[ch]; ok {
		return s.dropped
	}
	return 0
}
