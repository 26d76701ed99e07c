// ring_buffer.go defines the retention buffer holding the trailing audio
// window kept for privacy compliant export and deletion.
package capture

import (
	"sync"

	"github.com/frozo/ambientscribe/internal/errors"
)

// RetentionBuffer is a fixed-capacity circular store for PCM audio. Once
// full it overwrites the oldest data, so it always holds the most recent
// window of the stream. All operations are safe for concurrent use; the
// lock is held only for the duration of the copy or clear.
type RetentionBuffer struct {
	data       []byte
	writeIndex int
	buffered   int
	capacity   int
	lock       sync.Mutex
}

// NewRetentionBuffer creates a retention buffer sized from the retention
// window duration and audio format.
func NewRetentionBuffer(retentionSeconds, sampleRate, bytesPerSample int) (*RetentionBuffer, error) {
	if retentionSeconds <= 0 {
		return nil, errors.Newf("invalid retention duration: %d seconds", retentionSeconds).
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}
	if sampleRate <= 0 || bytesPerSample <= 0 {
		return nil, errors.Newf("invalid audio format: %d Hz, %d bytes per sample", sampleRate, bytesPerSample).
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}

	capacity := retentionSeconds * sampleRate * bytesPerSample
	// Guard against absurd allocations, same bound as other audio buffers.
	if capacity > 1<<30 {
		return nil, errors.Newf("requested retention buffer too large: %d bytes", capacity).
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}

	return &RetentionBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}, nil
}

// Write copies data into the buffer at the write cursor, wrapping at the
// capacity boundary. Writes larger than the capacity keep only the trailing
// capacity bytes, since everything earlier would be overwritten anyway.
// It returns true when the write wrapped past the end of the buffer.
func (rb *RetentionBuffer) Write(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	rb.lock.Lock()
	defer rb.lock.Unlock()

	if len(data) > rb.capacity {
		data = data[len(data)-rb.capacity:]
	}

	wrapped := false
	written := 0
	for written < len(data) {
		n := copy(rb.data[rb.writeIndex:], data[written:])
		written += n
		rb.writeIndex += n
		if rb.writeIndex == rb.capacity {
			rb.writeIndex = 0
			wrapped = true
		}
	}

	rb.buffered = min(rb.buffered+len(data), rb.capacity)
	return wrapped
}

// Snapshot returns the current contents in chronological order. Until the
// buffer has filled once the contents start at offset zero; after that they
// start at the write cursor, which points at the oldest byte.
func (rb *RetentionBuffer) Snapshot() []byte {
	rb.lock.Lock()
	defer rb.lock.Unlock()

	out := make([]byte, rb.buffered)
	if rb.buffered < rb.capacity {
		copy(out, rb.data[:rb.buffered])
		return out
	}

	n := copy(out, rb.data[rb.writeIndex:])
	copy(out[n:], rb.data[:rb.writeIndex])
	return out
}

// Purge zero-fills the buffer and resets it to empty. It returns the number
// of bytes that were buffered. Purge is synchronous with its caller: no
// write can interleave with the clear.
func (rb *RetentionBuffer) Purge() int {
	rb.lock.Lock()
	defer rb.lock.Unlock()

	purged := rb.buffered
	clear(rb.data)
	rb.writeIndex = 0
	rb.buffered = 0
	return purged
}

// IsEmpty reports whether the buffer holds no audio.
func (rb *RetentionBuffer) IsEmpty() bool {
	rb.lock.Lock()
	defer rb.lock.Unlock()
	return rb.buffered == 0
}

// Buffered returns the number of bytes currently held.
func (rb *RetentionBuffer) Buffered() int {
	rb.lock.Lock()
	defer rb.lock.Unlock()
	return rb.buffered
}

// Capacity returns the fixed capacity in bytes.
func (rb *RetentionBuffer) Capacity() int {
	return rb.capacity
}
