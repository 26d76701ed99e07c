package capture

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frozo/ambientscribe/internal/errors"
	"github.com/frozo/ambientscribe/internal/events"
	"github.com/frozo/ambientscribe/internal/logging"
	"github.com/frozo/ambientscribe/internal/observability/metrics"
)

// Purge trigger labels reported in events and metrics.
const (
	PurgeTriggerManual    = "manual"
	PurgeTriggerAutomatic = "automatic-on-stop"
)

// VADState is the latest voice activity observation. Consumers only ever
// see the most recent value, never a backlog.
type VADState struct {
	Active bool
	Energy float64
	Time   time.Time
}

// EngineConfig configures a CaptureEngine.
type EngineConfig struct {
	ChunkBytes       int           // capture read size in bytes
	SampleRate       int           // canonical sample rate in Hz
	BytesPerSample   int           // bytes per sample, 2 for S16
	RetentionSeconds int           // trailing window kept for export/purge
	FrameDuration    time.Duration // VAD frame length
	VADThreshold     float64       // normalized RMS threshold for voice
	AutotuneEnabled  bool          // enable chunk size autotuning
	MaxAdjustments   int           // autotune proposals per session
	FrameQueueSize   int           // frame hand-off queue depth
	FeedSeconds      int           // ASR feed capacity in seconds of audio
}

func (c *EngineConfig) applyDefaults() {
	if c.FrameQueueSize <= 0 {
		c.FrameQueueSize = 64
	}
	if c.FeedSeconds <= 0 {
		c.FeedSeconds = 10
	}
	if c.MaxAdjustments <= 0 {
		c.MaxAdjustments = 5
	}
}

// CaptureEngine runs the producer loop: it pulls chunks from the
// microphone source on a dedicated OS thread, mirrors them into the
// retention buffer and the ASR feed, and emits VAD frames. The engine
// never blocks on a consumer.
type CaptureEngine struct {
	config EngineConfig
	source MicrophoneSource

	retention *RetentionBuffer
	feed      *ASRFeed
	accum     *FrameAccumulator
	tuner     *ChunkAutotuner

	frames   chan Frame
	vadChan  chan VADState
	errChan  chan error
	quit     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  atomic.Bool
	lastVAD  bool
	emitted  atomic.Uint64
	dropped  atomic.Uint64

	metrics *metrics.CaptureMetrics
	bus     *events.Bus
	logger  *slog.Logger
}

// NewCaptureEngine creates an engine reading from the given source.
// metrics and bus may be nil; the engine then runs without telemetry.
func NewCaptureEngine(source MicrophoneSource, config EngineConfig, m *metrics.CaptureMetrics, bus *events.Bus) (*CaptureEngine, error) {
	config.applyDefaults()

	if source == nil {
		return nil, errors.Newf("nil microphone source").
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}
	if config.ChunkBytes <= 0 || config.ChunkBytes%config.BytesPerSample != 0 {
		return nil, errors.Newf("invalid chunk size: %d", config.ChunkBytes).
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}

	retention, err := NewRetentionBuffer(config.RetentionSeconds, config.SampleRate, config.BytesPerSample)
	if err != nil {
		return nil, err
	}

	feed, err := NewASRFeed(config.FeedSeconds * config.SampleRate * config.BytesPerSample)
	if err != nil {
		return nil, err
	}

	return &CaptureEngine{
		config:    config,
		source:    source,
		retention: retention,
		feed:      feed,
		accum:     NewFrameAccumulator(config.FrameDuration, config.SampleRate, config.VADThreshold),
		metrics:   m,
		bus:       bus,
		logger:    logging.ForService("capture"),
	}, nil
}

// Start begins capture. If a previous run proposed a chunk size change, it
// takes effect now; the running source is never resized mid-stream.
func (e *CaptureEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return errors.Newf("capture engine already running").
			Component("capture").
			Category(errors.CategoryState).
			Build()
	}

	chunkBytes := e.config.ChunkBytes
	if e.tuner != nil && e.config.AutotuneEnabled {
		// Apply the chunk size proposed during the previous session.
		chunkBytes = e.tuner.PendingChunkBytes()
	}
	e.tuner = NewChunkAutotuner(chunkBytes, e.config.SampleRate, e.config.BytesPerSample, e.config.MaxAdjustments)

	if err := e.source.Start(); err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "source_start").
			Build()
	}

	e.frames = make(chan Frame, e.config.FrameQueueSize)
	e.vadChan = make(chan VADState, 1)
	e.errChan = make(chan error, 1)
	e.quit = make(chan struct{})
	e.accum.Reset()
	e.lastVAD = false
	e.emitted.Store(0)
	e.dropped.Store(0)
	e.running.Store(true)

	if e.metrics != nil {
		e.metrics.ChunkSize.Set(float64(chunkBytes))
	}
	e.logger.Info("capture engine starting",
		"chunk_bytes", chunkBytes,
		"sample_rate", e.config.SampleRate,
		"retention_seconds", e.config.RetentionSeconds,
	)

	e.wg.Add(1)
	go e.run(chunkBytes)

	return nil
}

// run is the producer loop. It stays on one OS thread for the lifetime of
// the session; the host is expected to schedule it at audio priority.
func (e *CaptureEngine) run(chunkBytes int) {
	defer e.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	buf := make([]byte, chunkBytes)
	var lastArrival time.Time

	for {
		select {
		case <-e.quit:
			return
		default:
		}

		n, err := e.source.Read(buf)
		if err != nil {
			if err == errStopped {
				return
			}
			// A read error terminates the session; retained audio stays
			// until the caller decides what to do with it.
			e.logger.Error("capture read failed", "error", err)
			select {
			case e.errChan <- err:
			default:
			}
			e.running.Store(false)
			return
		}
		if n == 0 {
			continue
		}

		arrival := time.Now()
		if e.metrics != nil && !lastArrival.IsZero() {
			e.metrics.ObserveReadInterval(arrival.Sub(lastArrival).Seconds())
		}
		lastArrival = arrival

		e.ingest(buf[:n], arrival)

		if e.config.AutotuneEnabled {
			e.observeTiming(arrival)
		}
	}
}

// ingest mirrors one chunk into the retention buffer and ASR feed, then
// emits any completed VAD frames.
func (e *CaptureEngine) ingest(chunk []byte, arrival time.Time) {
	wrapped := e.retention.Write(chunk)
	if e.metrics != nil {
		e.metrics.RecordWrite(len(chunk))
		if wrapped {
			e.metrics.RecordWraparound()
		}
		e.metrics.UpdateUtilization(float64(e.retention.Buffered()) / float64(e.retention.Capacity()))
	}

	e.feed.Write(chunk)

	for _, frame := range e.accum.Feed(chunk, arrival) {
		e.emitFrame(frame)
	}
}

// emitFrame hands a frame to consumers without ever blocking: when the
// queue is full the oldest frame is dropped in favor of the new one.
func (e *CaptureEngine) emitFrame(frame Frame) {
	select {
	case e.frames <- frame:
		e.emitted.Add(1)
		if e.metrics != nil {
			e.metrics.RecordFrame(false)
		}
	default:
		select {
		case <-e.frames:
		default:
		}
		select {
		case e.frames <- frame:
		default:
		}
		e.dropped.Add(1)
		if e.metrics != nil {
			e.metrics.RecordFrame(true)
		}
	}

	if frame.VoiceActive != e.lastVAD {
		e.lastVAD = frame.VoiceActive
		e.publishVAD(VADState{Active: frame.VoiceActive, Energy: frame.Energy, Time: frame.Timestamp})
		if e.metrics != nil {
			e.metrics.RecordVADTransition(frame.VoiceActive)
		}
	}
}

// publishVAD replaces any undelivered state so a slow consumer only ever
// sees the latest value.
func (e *CaptureEngine) publishVAD(state VADState) {
	select {
	case e.vadChan <- state:
	default:
		select {
		case <-e.vadChan:
		default:
		}
		select {
		case e.vadChan <- state:
		default:
		}
	}
}

// observeTiming feeds the autotuner and publishes any resulting proposal.
func (e *CaptureEngine) observeTiming(arrival time.Time) {
	underBefore, overBefore := e.tuner.Underruns(), e.tuner.Overruns()
	proposal := e.tuner.ObserveRead(arrival)

	if e.metrics != nil {
		switch {
		case e.tuner.Underruns() > underBefore:
			e.metrics.RecordTimingAnomaly(string(ReasonUnderrun))
		case e.tuner.Overruns() > overBefore:
			e.metrics.RecordTimingAnomaly(string(ReasonOverrun))
		}
	}

	if proposal == nil {
		return
	}

	e.logger.Warn("chunk size adjustment proposed, applies on next start",
		"old_bytes", proposal.OldChunkBytes,
		"new_bytes", proposal.NewChunkBytes,
		"reason", proposal.Reason,
		"consecutive", proposal.Consecutive,
	)
	if e.metrics != nil {
		e.metrics.RecordAutotuneProposal(string(proposal.Reason), proposal.NewChunkBytes)
	}
	if e.bus != nil {
		e.bus.Publish(events.AutotuneEvent{
			OldChunkBytes: proposal.OldChunkBytes,
			NewChunkBytes: proposal.NewChunkBytes,
			Reason:        string(proposal.Reason),
			Consecutive:   proposal.Consecutive,
			Time:          arrival,
		})
	}
}

// Stop halts the capture loop cooperatively. It is idempotent and safe to
// call from any goroutine.
func (e *CaptureEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.quit == nil {
		return
	}
	select {
	case <-e.quit:
		// already stopping
	default:
		close(e.quit)
	}

	// Stopping the source unblocks a pending Read.
	if err := e.source.Stop(); err != nil {
		e.logger.Warn("source stop failed", "error", err)
	}

	e.wg.Wait()
	e.running.Store(false)

	close(e.frames)
	close(e.errChan)
	e.quit = nil

	e.logger.Info("capture engine stopped",
		"underruns", e.tuner.Underruns(),
		"overruns", e.tuner.Overruns(),
		"frames_emitted", e.emitted.Load(),
		"frames_dropped", e.dropped.Load(),
	)
}

// IsRunning reports whether the capture loop is active.
func (e *CaptureEngine) IsRunning() bool {
	return e.running.Load()
}

// Frames returns the frame hand-off channel. It is closed when the engine
// stops.
func (e *CaptureEngine) Frames() <-chan Frame {
	return e.frames
}

// VADStates returns the latest-value-wins VAD channel.
func (e *CaptureEngine) VADStates() <-chan VADState {
	return e.vadChan
}

// Errors returns the channel carrying a terminal read error, if any.
func (e *CaptureEngine) Errors() <-chan error {
	return e.errChan
}

// Feed returns the audio stream for the transcription collaborator.
func (e *CaptureEngine) Feed() *ASRFeed {
	return e.feed
}

// SnapshotRetainedAudio returns the retained trailing window in
// chronological order.
func (e *CaptureEngine) SnapshotRetainedAudio() []byte {
	return e.retention.Snapshot()
}

// PurgeRetainedAudio irreversibly clears the retained window and reports
// the purge. trigger should be PurgeTriggerManual or PurgeTriggerAutomatic.
func (e *CaptureEngine) PurgeRetainedAudio(trigger string) int {
	purged := e.retention.Purge()

	e.logger.Info("retained audio purged", "bytes", purged, "trigger", trigger)
	if e.metrics != nil {
		e.metrics.RecordPurge(trigger)
		e.metrics.UpdateUtilization(0)
	}
	if e.bus != nil {
		e.bus.Publish(events.PurgeEvent{BytesPurged: purged, Trigger: trigger, Time: time.Now()})
	}
	return purged
}

// IsRetainedAudioEmpty verifies that no retained audio remains.
func (e *CaptureEngine) IsRetainedAudioEmpty() bool {
	return e.retention.IsEmpty()
}

// ExportRetainedWAV returns the retained window as a WAV container.
func (e *CaptureEngine) ExportRetainedWAV() ([]byte, error) {
	return EncodeWAV(e.retention.Snapshot(), e.config.SampleRate)
}

// PendingChunkBytes returns the chunk size that will apply on next start.
func (e *CaptureEngine) PendingChunkBytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tuner == nil {
		return e.config.ChunkBytes
	}
	return e.tuner.PendingChunkBytes()
}

// Underruns returns the underrun count for the current session.
func (e *CaptureEngine) Underruns() int {
	e.mu.Lock()
	t := e.tuner
	e.mu.Unlock()
	if t == nil {
		return 0
	}
	return t.Underruns()
}

// Overruns returns the overrun count for the current session.
func (e *CaptureEngine) Overruns() int {
	e.mu.Lock()
	t := e.tuner
	e.mu.Unlock()
	if t == nil {
		return 0
	}
	return t.Overruns()
}

// FramesEmitted returns the number of frames delivered to consumers.
func (e *CaptureEngine) FramesEmitted() uint64 {
	return e.emitted.Load()
}

// FramesDropped returns the number of frames dropped on a full queue.
func (e *CaptureEngine) FramesDropped() uint64 {
	return e.dropped.Load()
}
