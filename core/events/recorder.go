package events

import "sync"

// Recorder retains the most recent events in memory so read surfaces can
// expose them without a dedicated indexer. Oldest entries are dropped once
// the capacity is reached.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	buffer   []Event
}

// NewRecorder creates a recorder holding at most capacity events. A
// non-positive capacity falls back to 512.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 512
	}
	return &Recorder{capacity: capacity}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buffer) == r.capacity {
		copy(r.buffer, r.buffer[1:])
		r.buffer[len(r.buffer)-1] = evt
		return
	}
	r.buffer = append(r.buffer, evt)
}

// Events returns a snapshot of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.buffer))
	copy(out, r.buffer)
	return out
}
