package web

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"tiltgame/internal/game"
	"tiltgame/internal/motion"
)

const (
	EventFrame    = "frame"
	EventAdvisory = "advisory"
)

// Event is one message on the live stream. Exactly one of Frame and
// Advisory is set, matching Type.
type Event struct {
	Type     string           `json:"type"`
	Frame    *game.Frame      `json:"frame,omitempty"`
	Advisory *motion.Advisory `json:"advisory,omitempty"`
}

// Payload is the body sent for the event, without the type envelope.
func (e Event) Payload() any {
	if e.Advisory != nil {
		return e.Advisory
	}
	return e.Frame
}

// EventBroadcaster fans out frames and advisories to live stream subscribers.
// Publishing never blocks the game loop: a subscriber whose buffer is full
// misses that event.
type EventBroadcaster struct {
	mu        sync.RWMutex
	subs      map[string]chan Event
	lastFrame *game.Frame
	dropped   atomic.Uint64
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{subs: make(map[string]chan Event)}
}

// Subscribe registers a new subscriber. The latest frame, if any, is queued
// immediately so a fresh client can draw without waiting for the next tick.
func (b *EventBroadcaster) Subscribe(buffer int) (string, <-chan Event) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[id] = ch
	if b.lastFrame != nil {
		f := *b.lastFrame
		ch <- Event{Type: EventFrame, Frame: &f}
	}
	b.mu.Unlock()
	return id, ch
}

func (b *EventBroadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// PublishFrame implements game.FrameSink.
func (b *EventBroadcaster) PublishFrame(f game.Frame) {
	b.mu.Lock()
	b.lastFrame = &f
	b.mu.Unlock()
	b.publish(Event{Type: EventFrame, Frame: &f})
}

// PublishAdvisory implements game.AdvisorySink.
func (b *EventBroadcaster) PublishAdvisory(a motion.Advisory) {
	b.publish(Event{Type: EventAdvisory, Advisory: &a})
}

func (b *EventBroadcaster) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *EventBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts events not delivered to slow subscribers.
func (b *EventBroadcaster) Dropped() uint64 { return b.dropped.Load() }
