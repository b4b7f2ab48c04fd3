// Package ringbuf provides a fixed-capacity circular buffer. When the
// buffer is full the oldest element is overwritten.
package ringbuf

// Ring is a circular buffer of T. Not safe for concurrent use.
type Ring[T any] struct {
	items []T
	size  int
	head  int // next slot to write
	count int
}

// New creates a Ring with the given capacity.
func New[T any](size int) *Ring[T] {
	if size <= 0 {
		panic("ringbuf: size must be positive")
	}
	return &Ring[T]{
		items: make([]T, size),
		size:  size,
	}
}

// Add appends an item, overwriting the oldest when full.
func (r *Ring[T]) Add(item T) {
	r.items[r.head] = item
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// Len returns the number of items currently held.
func (r *Ring[T]) Len() int {
	return r.count
}

// Wrapped reports whether the buffer has dropped old items.
func (r *Ring[T]) Wrapped() bool {
	return r.count == r.size
}

// Items returns a copy of the contents in insertion order, oldest first.
func (r *Ring[T]) Items() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)
	if r.count < r.size {
		copy(result, r.items[:r.head])
	} else {
		copied := copy(result, r.items[r.head:])
		copy(result[copied:], r.items[:r.head])
	}
	return result
}

// Oldest returns the oldest item and true, or the zero value and false
// when empty.
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	if r.count < r.size {
		return r.items[0], true
	}
	return r.items[r.head], true
}
