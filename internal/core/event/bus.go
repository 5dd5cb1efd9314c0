package event

import "sync"

// Event is an array-backed callback registry. Callbacks are invoked in
// registration order through a single invoker of the same shape T, which
// is rebuilt from an immutable snapshot on every Register.
type Event[T any] struct {
	mu        sync.Mutex // only protects registration
	callbacks []T
	combine   func([]T) T
	invoker   T
}

// NewArrayBacked creates an event whose invoker is produced by combine.
// combine must call the callbacks in slice order and must not retain the
// slice beyond the returned invoker.
func NewArrayBacked[T any](combine func(callbacks []T) T) *Event[T] {
	e := &Event[T]{combine: combine}
	e.invoker = combine(nil)
	return e
}

// Register appends cb. Duplicates are kept and run once per registration.
func (e *Event[T]) Register(cb T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]T, len(e.callbacks), len(e.callbacks)+1)
	copy(next, e.callbacks)
	next = append(next, cb)
	e.callbacks = next
	e.invoker = e.combine(next)
}

// Invoker returns the combined callback for the current registrations.
func (e *Event[T]) Invoker() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invoker
}

// Snapshot returns the invoker together with the number of callbacks it
// will run, read atomically with respect to Register.
func (e *Event[T]) Snapshot() (T, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invoker, len(e.callbacks)
}

// Len returns the number of registered callbacks.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.callbacks)
}
