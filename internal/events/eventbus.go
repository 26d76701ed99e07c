package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/frozo/ambientscribe/internal/logging"
)

// Bus provides asynchronous event processing with non-blocking guarantees.
// Each Session owns its own Bus; there is no process-wide instance.
type Bus struct {
	eventChan chan Event

	bufferSize int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex
	// chanMu guards eventChan against publish racing with close during
	// shutdown. Publishers hold the read side so they never serialize
	// against each other.
	chanMu sync.RWMutex

	consumers []Consumer

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64

	logger *slog.Logger
}

// Config holds event bus configuration.
type Config struct {
	BufferSize int
}

// DefaultConfig returns the default event bus configuration.
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

// NewBus creates a new event bus. Call Start before publishing.
func NewBus(config Config) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	return &Bus{
		eventChan:  make(chan Event, config.BufferSize),
		bufferSize: config.BufferSize,
		consumers:  make([]Consumer, 0),
		logger:     logging.ForService("events"),
	}
}

// Subscribe registers a consumer. Consumers must be registered before Start.
func (b *Bus) Subscribe(consumer Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, consumer)
}

// Start launches the dispatch worker. Calling Start on a running bus is a no-op.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running.Store(true)

	b.wg.Add(1)
	go b.dispatch()
}

// Publish delivers an event to the bus without blocking. It returns false
// when the event was dropped because the bus is stopped or saturated.
func (b *Bus) Publish(event Event) bool {
	b.chanMu.RLock()
	defer b.chanMu.RUnlock()

	if !b.running.Load() {
		b.dropped.Add(1)
		return false
	}

	b.received.Add(1)

	select {
	case b.eventChan <- event:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Shutdown stops the dispatch worker after draining buffered events.
// It is safe to call multiple times.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running.Load() {
		return
	}

	b.chanMu.Lock()
	b.running.Store(false)
	close(b.eventChan)
	b.chanMu.Unlock()
	b.wg.Wait()
	b.cancel()
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() BusStats {
	return BusStats{
		EventsReceived:  b.received.Load(),
		EventsProcessed: b.processed.Load(),
		EventsDropped:   b.dropped.Load(),
		ConsumerErrors:  b.errors.Load(),
	}
}

func (b *Bus) dispatch() {
	defer b.wg.Done()

	// consumers is immutable once Start has been called.
	for event := range b.eventChan {
		for _, consumer := range b.consumers {
			if err := consumer.ProcessEvent(event); err != nil {
				b.errors.Add(1)
				b.logger.Warn("event consumer failed",
					"consumer", consumer.Name(),
					"kind", event.Kind(),
					"error", err,
				)
			}
		}
		b.processed.Add(1)
	}
}
