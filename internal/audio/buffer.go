package audio

import (
	"sync"
)

// RingBuffer smooths bursty capture reads into fixed-size chunks. When
// the buffer is full the oldest audio is overwritten: for live capture a
// fresh sample is always worth more than a stale one.
type RingBuffer struct {
	mu     sync.Mutex
	buffer []byte
	size   int
	read   int
	write  int
	count  int
}

// NewRingBuffer creates a ring buffer holding up to size bytes.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write appends data, overwriting the oldest bytes when full. It returns
// the number of bytes that were dropped to make room.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	dropped := 0
	for _, b := range data {
		if rb.count == rb.size {
			rb.read = (rb.read + 1) % rb.size
			rb.count--
			dropped++
		}
		rb.buffer[rb.write] = b
		rb.write = (rb.write + 1) % rb.size
		rb.count++
	}
	return dropped
}

// Read fills p with the oldest buffered bytes and returns how many were
// copied.
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := 0
	for n < len(p) && rb.count > 0 {
		p[n] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		rb.count--
		n++
	}
	return n
}

// Available returns the number of buffered bytes.
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Reset discards all buffered bytes.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read = 0
	rb.write = 0
	rb.count = 0
}
