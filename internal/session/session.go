// Package session wires the capture engine, diarizer and quality
// evaluator into one runnable scribe session and owns their lifecycle.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/frozo/ambientscribe/internal/capture"
	"github.com/frozo/ambientscribe/internal/conf"
	"github.com/frozo/ambientscribe/internal/diarization"
	"github.com/frozo/ambientscribe/internal/errors"
	"github.com/frozo/ambientscribe/internal/events"
	"github.com/frozo/ambientscribe/internal/logging"
	"github.com/frozo/ambientscribe/internal/observability"
)

// QualitySnapshot is a point-in-time view of diarization quality for
// display and audit consumers.
type QualitySnapshot struct {
	ErrorRate    float64
	SwapAccuracy float64
	Level        diarization.QualityLevel
	Fallback     bool
	Speaker      diarization.Speaker
}

// Session runs one recording session: audio flows from the source through
// the capture engine into the diarization pipeline, with quality feedback
// closing the loop back into the diarizer's fallback flag.
type Session struct {
	id       string
	settings *conf.Settings

	bus       *events.Bus
	metrics   *observability.Metrics
	engine    *capture.CaptureEngine
	diarizer  *diarization.SpeakerDiarizer
	evaluator *diarization.QualityEvaluator

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex

	logger *slog.Logger
}

// New builds a session from settings. source is the audio input; tests
// inject a scripted one, production uses the malgo microphone.
func New(settings *conf.Settings, source capture.MicrophoneSource) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(events.Config{})

	engine, err := capture.NewCaptureEngine(source, capture.EngineConfig{
		ChunkBytes:       settings.Capture.ChunkBytes,
		SampleRate:       conf.SampleRate,
		BytesPerSample:   conf.BytesPerSample,
		RetentionSeconds: settings.Capture.RetentionSeconds,
		FrameDuration:    time.Duration(settings.VAD.FrameDurationMs) * time.Millisecond,
		VADThreshold:     settings.VAD.Threshold,
		AutotuneEnabled:  settings.Capture.Autotune.Enabled,
		MaxAdjustments:   settings.Capture.Autotune.MaxAdjustments,
	}, m.Capture, bus)
	if err != nil {
		return nil, err
	}

	diarizer := diarization.NewSpeakerDiarizer(diarization.DiarizerConfig{
		MinUtterance:     time.Duration(settings.Diarization.MinUtteranceMs) * time.Millisecond,
		SwitchHysteresis: time.Duration(settings.Diarization.SwitchHysteresisMs) * time.Millisecond,
		SilenceThreshold: time.Duration(settings.Diarization.SilenceThresholdMs) * time.Millisecond,
		EnergyRatio:      settings.Diarization.EnergyRatio,
		RoleALabel:       settings.Diarization.RoleALabel,
		RoleBLabel:       settings.Diarization.RoleBLabel,
	}, m.Diarization)

	evaluator := diarization.NewQualityEvaluator(diarization.QualityConfig{
		Window:            time.Duration(settings.Quality.WindowMs) * time.Millisecond,
		HistorySize:       settings.Quality.HistorySize,
		MinSamples:        settings.Quality.MinSamples,
		GoodThreshold:     settings.Quality.GoodThreshold,
		ModerateThreshold: settings.Quality.ModerateThreshold,
		SwapAccuracyMin:   settings.Quality.SwapAccuracyMin,
		FallbackSamples:   settings.Quality.FallbackSamples,
	}, m.Diarization, bus)

	diarizer.SetSwapObservers(evaluator.RecordAutomaticSwap, evaluator.RecordManualSwap)

	id := uuid.New().String()
	return &Session{
		id:        id,
		settings:  settings,
		bus:       bus,
		metrics:   m,
		engine:    engine,
		diarizer:  diarizer,
		evaluator: evaluator,
		logger:    logging.ForService("session").With("session_id", id),
	}, nil
}

// ID returns the unique identifier of this session.
func (s *Session) ID() string {
	return s.id
}

// Start begins capture and diarization. The session runs until Stop or a
// terminal capture error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.Newf("session already running").
			Component("session").
			Category(errors.CategoryState).
			Build()
	}

	busCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.bus.Start(busCtx)

	if err := s.engine.Start(); err != nil {
		cancel()
		s.bus.Shutdown()
		return err
	}
	s.running.Store(true)

	s.wg.Add(2)
	go s.pump()
	go s.watchErrors()

	s.logger.Info("session started", "node", s.settings.Main.Name)
	return nil
}

// pump moves frames from the engine into the diarization pipeline and
// feeds quality results back into the fallback flag.
func (s *Session) pump() {
	defer s.wg.Done()

	for frame := range s.engine.Frames() {
		assignment := s.diarizer.ProcessFrame(frame)
		if assignment == nil {
			continue
		}
		s.evaluator.Observe(*assignment)
		s.diarizer.SetFallback(s.evaluator.FallbackActive())
	}
}

// watchErrors logs a terminal capture error. The engine has already shut
// its loop down by the time one arrives; the channel closes on Stop.
func (s *Session) watchErrors() {
	defer s.wg.Done()

	for err := range s.engine.Errors() {
		if err != nil {
			s.logger.Error("capture failed, session degraded", "error", err)
		}
	}
}

// Stop ends the session: capture halts, session statistics are published,
// and retained audio is purged when configured. Stop is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}
	s.running.Store(false)

	s.engine.Stop()

	s.bus.Publish(events.SessionStatsEvent{
		Underruns:     s.engine.Underruns(),
		Overruns:      s.engine.Overruns(),
		FramesEmitted: s.engine.FramesEmitted(),
		FramesDropped: s.engine.FramesDropped(),
		Time:          time.Now(),
	})

	if s.settings.Capture.PurgeOnStop {
		s.engine.PurgeRetainedAudio(capture.PurgeTriggerAutomatic)
	}

	s.cancel()
	s.wg.Wait()
	s.bus.Shutdown()

	s.logger.Info("session stopped",
		"underruns", s.engine.Underruns(),
		"overruns", s.engine.Overruns(),
		"frames_dropped", s.engine.FramesDropped(),
	)
}

// IsRunning reports whether the session is active.
func (s *Session) IsRunning() bool {
	return s.running.Load()
}

// SetSpeaker manually assigns the current speaker. Always succeeds.
func (s *Session) SetSpeaker(speaker diarization.Speaker) {
	s.diarizer.SetCurrentSpeaker(speaker)
}

// SwapRoles manually exchanges the two speaker roles. Always succeeds.
func (s *Session) SwapRoles() {
	s.diarizer.SwapRoles()
}

// Quality returns the current diarization quality view.
func (s *Session) Quality() QualitySnapshot {
	return QualitySnapshot{
		ErrorRate:    s.evaluator.ErrorRate(),
		SwapAccuracy: s.evaluator.SwapAccuracy(),
		Level:        s.evaluator.Level(),
		Fallback:     s.evaluator.FallbackActive(),
		Speaker:      s.diarizer.CurrentSpeaker(),
	}
}

// PurgeAudio irreversibly discards the retained audio window.
func (s *Session) PurgeAudio() int {
	return s.engine.PurgeRetainedAudio(capture.PurgeTriggerManual)
}

// ExportWAV writes the retained audio window to a timestamped WAV file in
// the configured export directory and returns the file path.
func (s *Session) ExportWAV() (string, error) {
	snapshot := s.engine.SnapshotRetainedAudio()
	if len(snapshot) == 0 {
		return "", errors.Newf("no retained audio to export").
			Component("session").
			Category(errors.CategoryExport).
			Build()
	}

	name := fmt.Sprintf("retained_%s_%s.wav", time.Now().Format("20060102_150405"), s.id[:8])
	path := filepath.Join(s.settings.Capture.Export.Path, name)

	if err := capture.SavePCMDataToWAV(path, snapshot, conf.SampleRate); err != nil {
		return "", err
	}

	if s.settings.Capture.Export.Debug {
		s.logger.Debug("retained audio exported", "path", path, "bytes", len(snapshot))
	}
	return path, nil
}

// Feed returns the audio stream for the transcription collaborator.
func (s *Session) Feed() *capture.ASRFeed {
	return s.engine.Feed()
}

// VADStates exposes the latest-value-wins voice activity channel.
func (s *Session) VADStates() <-chan capture.VADState {
	return s.engine.VADStates()
}

// Bus returns the session event bus for audit consumers.
func (s *Session) Bus() *events.Bus {
	return s.bus
}

// Metrics returns the session metrics for the telemetry endpoint.
func (s *Session) Metrics() *observability.Metrics {
	return s.metrics
}
