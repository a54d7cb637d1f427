// SPDX-License-Identifier: MIT

package xfer

// MessageRing is an ordered, append-only buffer of recent capture data
// (MIDI messages or audio channel data) bounded by a configured capacity;
// the oldest entry is discarded on overflow. Unlike CaptureRing this is
// owned entirely by the Application Core's single thread, so no atomics are
// needed.
type MessageRing struct {
	cap   int
	items []CaptureFrame
}

// NewMessageRing creates a ring retaining at most capacity entries.
func NewMessageRing(capacity int) *MessageRing {
	if capacity < 1 {
		capacity = 1
	}
	return &MessageRing{cap: capacity}
}

// Push appends a frame, discarding the oldest entry if over capacity.
func (r *MessageRing) Push(f CaptureFrame) {
	r.items = append(r.items, f)
	if over := len(r.items) - r.cap; over > 0 {
		r.items = r.items[over:]
	}
}

// Take moves out the accumulated frames and clears the ring. Calling Take
// again with no intervening Push returns nil.
func (r *MessageRing) Take() []CaptureFrame {
	if len(r.items) == 0 {
		return nil
	}
	out := r.items
	r.items = nil
	return out
}

// Clear discards all buffered frames without returning them.
func (r *MessageRing) Clear() {
	r.items = nil
}

// Len reports the number of frames currently buffered.
func (r *MessageRing) Len() int {
	return len(r.items)
}

// Peek returns the currently buffered frames without consuming them, for
// a renderer that wants to redraw without disturbing TakeMessages().
func (r *MessageRing) Peek() []CaptureFrame {
	return r.items
}
