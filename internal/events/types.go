// Package events provides an asynchronous event bus for decoupling the
// capture and diarization core from metrics and audit consumers. Publishing
// never blocks the producer; events are dropped when the bus is saturated.
package events

import (
	"time"
)

// Event is the interface implemented by all bus events.
type Event interface {
	// Kind returns a short identifier of the event type
	Kind() string

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// Consumer represents a consumer that processes events from the bus.
type Consumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single event
	ProcessEvent(event Event) error
}

// BusStats contains runtime statistics for monitoring.
type BusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}

// AutotuneEvent records a proposed capture chunk size adjustment.
type AutotuneEvent struct {
	OldChunkBytes int
	NewChunkBytes int
	Reason        string // "underrun" or "overrun"
	Consecutive   int    // consecutive timing anomalies that triggered the proposal
	Time          time.Time
}

func (e AutotuneEvent) Kind() string         { return "autotune" }
func (e AutotuneEvent) Timestamp() time.Time { return e.Time }

// PurgeEvent records a purge of the retained audio window.
type PurgeEvent struct {
	BytesPurged int
	Trigger     string // "manual" or "automatic-on-stop"
	Time        time.Time
}

func (e PurgeEvent) Kind() string         { return "purge" }
func (e PurgeEvent) Timestamp() time.Time { return e.Time }

// QualityTransitionEvent records a diarization quality band change.
type QualityTransitionEvent struct {
	From      string
	To        string
	ErrorRate float64
	Time      time.Time
}

func (e QualityTransitionEvent) Kind() string         { return "quality-transition" }
func (e QualityTransitionEvent) Timestamp() time.Time { return e.Time }

// FallbackEvent records entry to or exit from single speaker fallback mode.
type FallbackEvent struct {
	Engaged bool
	Reason  string // "error-rate", "swap-accuracy" or "countdown-elapsed"
	Time    time.Time
}

func (e FallbackEvent) Kind() string         { return "fallback" }
func (e FallbackEvent) Timestamp() time.Time { return e.Time }

// SessionStatsEvent reports capture statistics at session end.
type SessionStatsEvent struct {
	Underruns     int
	Overruns      int
	FramesEmitted uint64
	FramesDropped uint64
	Time          time.Time
}

func (e SessionStatsEvent) Kind() string         { return "session-stats" }
func (e SessionStatsEvent) Timestamp() time.Time { return e.Time }
