package events

import (
	"sync"

	"deedescrow/core/types"
)

type eventSource interface {
	Event() *types.Event
}

// Recorder buffers emitted events until the surrounding state change is
// committed. Events that do not expose a typed payload are dropped.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	src, ok := evt.(eventSource)
	if !ok {
		return
	}
	payload := src.Event()
	if payload == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, payload.Clone())
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	for i := range r.events {
		out[i] = r.events[i].Clone()
	}
	return out
}

// Len reports the number of buffered events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Truncate drops events recorded after the first n.
func (r *Recorder) Truncate(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n < len(r.events) {
		r.events = r.events[:n]
	}
}

// Reset clears the buffer.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
