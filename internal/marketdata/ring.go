package marketdata

const defaultRingCapacity = 100

// RingBuffer is a fixed-capacity circular buffer. Once full, new values
// overwrite the oldest ones.
type RingBuffer[T any] struct {
	data  []T
	head  int // next write position
	count int
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &RingBuffer[T]{data: make([]T, capacity)}
}

// Push adds a value to the ring buffer.
func (rb *RingBuffer[T]) Push(v T) {
	rb.data[rb.head] = v
	rb.head = (rb.head + 1) % len(rb.data)
	if rb.count < len(rb.data) {
		rb.count++
	}
}

// Len returns the number of stored values.
func (rb *RingBuffer[T]) Len() int {
	return rb.count
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.data)
}

// GetAll returns all values in chronological order.
func (rb *RingBuffer[T]) GetAll() []T {
	if rb.count == 0 {
		return nil
	}

	result := make([]T, rb.count)
	start := (rb.head - rb.count + len(rb.data)) % len(rb.data)
	for i := 0; i < rb.count; i++ {
		result[i] = rb.data[(start+i)%len(rb.data)]
	}
	return result
}

// GetRecent returns the n most recent values in chronological order.
func (rb *RingBuffer[T]) GetRecent(n int) []T {
	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}

	result := make([]T, n)
	start := (rb.head - n + len(rb.data)) % len(rb.data)
	for i := 0; i < n; i++ {
		result[i] = rb.data[(start+i)%len(rb.data)]
	}
	return result
}

// Last returns the most recent value.
func (rb *RingBuffer[T]) Last() (T, bool) {
	var zero T
	if rb.count == 0 {
		return zero, false
	}
	idx := (rb.head - 1 + len(rb.data)) % len(rb.data)
	return rb.data[idx], true
}
