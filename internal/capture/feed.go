// feed.go implements the hand-off stream consumed by the external
// transcription collaborator.
package capture

import (
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/frozo/ambientscribe/internal/errors"
)

// ASRFeed buffers captured audio for the transcription collaborator. The
// producer side never blocks: when the consumer falls behind, the oldest
// buffered audio is discarded to make room.
type ASRFeed struct {
	rb      *ringbuffer.RingBuffer
	mu      sync.Mutex
	dropped atomic.Uint64
}

// NewASRFeed creates a feed with the given capacity in bytes.
func NewASRFeed(capacity int) (*ASRFeed, error) {
	if capacity <= 0 {
		return nil, errors.Newf("invalid feed capacity: %d", capacity).
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}
	return &ASRFeed{rb: ringbuffer.New(capacity)}, nil
}

// Write adds audio to the feed, discarding the oldest bytes when the
// consumer is not keeping up. It never blocks.
func (f *ASRFeed) Write(data []byte) {
	if len(data) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) > f.rb.Capacity() {
		data = data[len(data)-f.rb.Capacity():]
	}

	if deficit := len(data) - f.rb.Free(); deficit > 0 {
		// Evict the oldest bytes to make room for the new write.
		scratch := make([]byte, deficit)
		n, _ := f.rb.Read(scratch)
		f.dropped.Add(uint64(n))
	}

	// With the eviction above this write always fits.
	_, _ = f.rb.Write(data)
}

// Read copies buffered audio into p, returning the number of bytes read.
// A starved feed returns 0 rather than blocking.
func (f *ASRFeed) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rb.Length() == 0 {
		return 0, nil
	}

	n, err := f.rb.Read(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return n, err
	}
	return n, nil
}

// Buffered returns the number of bytes waiting for the consumer.
func (f *ASRFeed) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rb.Length()
}

// Dropped returns the total bytes evicted due to a slow consumer.
func (f *ASRFeed) Dropped() uint64 {
	return f.dropped.Load()
}

// Reset discards all buffered audio.
func (f *ASRFeed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rb.Reset()
}
