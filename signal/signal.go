// Package signal implements the named multi-slot callback dispatch used
// throughout the orchestrator to decouple stage completion, job lifecycle,
// and queue events from their listeners.
//
// A Signal never calls a slot directly: emitting a Signal posts one
// callback per connected slot onto a Poster (normally the event loop's
// FIFO), so slots always run on the loop thread and a slot's own work
// never nests inside the call stack of whatever triggered the emission.
// InlineSignal is the escape hatch for the handful of cases (loop start/stop)
// that require synchronous delivery.
//
// Go function values aren't comparable, so connect returns an opaque
// Token used for later disconnect/replace instead of comparing slots by
// identity.
package signal

// Poster accepts a callback to run later, preserving post-order. *loop.Loop
// satisfies this interface; tests may supply a fake that records calls.
type Poster interface {
	Post(func())
}

// Token identifies a previously connected slot.
type Token uint64

type slotEntry[T any] struct {
	id Token
	fn func(T)
}

// Signal holds an ordered list of slots and dispatches to them by posting
// one callback per slot onto a Poster. The zero value is not usable; build
// one with New.
type Signal[T any] struct {
	name   string
	poster Poster
	slots  []slotEntry[T]
	nextID Token
}

// New creates a Signal that dispatches through poster. name is used only
// for debugging/String output.
func New[T any](name string, poster Poster) *Signal[T] {
	return &Signal[T]{name: name, poster: poster}
}

// Name returns the signal's debug name.
func (s *Signal[T]) Name() string { return s.name }

// Connect appends slot to the dispatch list and returns a Token that can be
// used with Disconnect or Replace. Connect order is preserved across emits.
func (s *Signal[T]) Connect(slot func(T)) Token {
	s.nextID++
	id := s.nextID
	s.slots = append(s.slots, slotEntry[T]{id: id, fn: slot})
	return id
}

// Disconnect removes the slot identified by tok. Returns false if tok is
// not connected. A slot already posted by a prior Emit still runs — Emit
// captures the slot function at post time, not at delivery time, so slots
// must tolerate being invoked once after disconnect.
func (s *Signal[T]) Disconnect(tok Token) bool {
	for i, e := range s.slots {
		if e.id == tok {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the slot identified by tok for newSlot, preserving its
// position in the calling order.
func (s *Signal[T]) Replace(tok Token, newSlot func(T)) bool {
	for i, e := range s.slots {
		if e.id == tok {
			s.slots[i].fn = newSlot
			return true
		}
	}
	return false
}

// HasSlot reports whether tok is currently connected.
func (s *Signal[T]) HasSlot(tok Token) bool {
	for _, e := range s.slots {
		if e.id == tok {
			return true
		}
	}
	return false
}

// Len returns the number of connected slots.
func (s *Signal[T]) Len() int { return len(s.slots) }

// Emit posts one callback per connected slot onto the Poster, in
// connect-order. The slot list is snapshotted before posting so a slot that
// connects or disconnects another slot during its own invocation cannot
// perturb this emission's delivery set.
func (s *Signal[T]) Emit(v T) {
	slots := s.slots
	for _, e := range slots {
		fn := e.fn
		s.poster.Post(func() { fn(v) })
	}
}

// InlineSignal dispatches synchronously, in the caller's own stack frame.
// Reserved for the loop's own start/stop lifecycle, where waiting for a
// FIFO round-trip would be circular.
type InlineSignal[T any] struct {
	slots  []slotEntry[T]
	nextID Token
}

// NewInline creates an InlineSignal.
func NewInline[T any]() *InlineSignal[T] {
	return &InlineSignal[T]{}
}

// Connect appends slot to the dispatch list, returning a Token for later
// Disconnect/Replace.
func (s *InlineSignal[T]) Connect(slot func(T)) Token {
	s.nextID++
	id := s.nextID
	s.slots = append(s.slots, slotEntry[T]{id: id, fn: slot})
	return id
}

// Disconnect removes the slot identified by tok.
func (s *InlineSignal[T]) Disconnect(tok Token) bool {
	for i, e := range s.slots {
		if e.id == tok {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return true
		}
	}
	return false
}

// Emit calls every connected slot immediately, in connect-order.
func (s *InlineSignal[T]) Emit(v T) {
	for _, e := range s.slots {
		e.fn(v)
	}
}
