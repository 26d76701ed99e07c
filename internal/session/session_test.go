package session

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/frozo/ambientscribe/internal/capture"
	"github.com/frozo/ambientscribe/internal/conf"
	"github.com/frozo/ambientscribe/internal/diarization"
	"github.com/frozo/ambientscribe/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Capture.RetentionSeconds = 1
	s.Capture.ChunkBytes = 960
	s.Capture.PurgeOnStop = true
	s.VAD.FrameDurationMs = 30
	s.VAD.Threshold = 0.015
	s.Diarization.MinUtteranceMs = 300
	s.Diarization.SwitchHysteresisMs = 750
	s.Diarization.SilenceThresholdMs = 500
	s.Diarization.EnergyRatio = 1.4
	s.Diarization.RoleALabel = "Doctor"
	s.Diarization.RoleBLabel = "Patient"
	s.Quality.WindowMs = 500
	s.Quality.HistorySize = 100
	s.Quality.MinSamples = 20
	s.Quality.GoodThreshold = 0.18
	s.Quality.ModerateThreshold = 0.30
	s.Quality.SwapAccuracyMin = 0.95
	s.Quality.FallbackSamples = 50
	return s
}

// loudChunk is 30 ms of well-audible constant tone at 16 kHz.
func loudChunk() []byte {
	out := make([]byte, 960)
	for i := 0; i < len(out); i += 2 {
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(8000)))
	}
	return out
}

// pacedSource delivers count loud chunks at real-time pace, then blocks
// like a silent microphone until stopped.
type pacedSource struct {
	mu      sync.Mutex
	count   int
	served  int
	stopped chan struct{}
}

func (p *pacedSource) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.served = 0
	p.stopped = make(chan struct{})
	return nil
}

func (p *pacedSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.stopped:
	default:
		close(p.stopped)
	}
	return nil
}

func (p *pacedSource) Read(buf []byte) (int, error) {
	p.mu.Lock()
	stopped := p.stopped
	exhausted := p.served >= p.count
	if !exhausted {
		p.served++
	}
	p.mu.Unlock()

	if exhausted {
		<-stopped
		return 0, io.EOF
	}

	select {
	case <-time.After(30 * time.Millisecond):
		return copy(buf, loudChunk()), nil
	case <-stopped:
		return 0, io.EOF
	}
}

func (p *pacedSource) Format() capture.SourceFormat {
	return capture.SourceFormat{SampleRate: 16000, Channels: 1, BitDepth: 16, BytesPerSample: 2}
}

func TestSessionAssignsSpeakerAndPurgesOnStop(t *testing.T) {
	source := &pacedSource{count: 20}
	sess, err := New(testSettings(), source)
	require.NoError(t, err)

	sink := &eventSink{}
	sess.Bus().Subscribe(sink)

	require.NoError(t, sess.Start(context.Background()))

	// Enough paced voice accumulates the minimum utterance and seeds the
	// first speaker role.
	require.Eventually(t, func() bool {
		return sess.Quality().Speaker == diarization.SpeakerRoleA
	}, 5*time.Second, 20*time.Millisecond)

	sess.Stop()
	sess.Stop() // idempotent

	assert.Zero(t, sess.PurgeAudio(), "purge-on-stop already emptied the retained window")
	_, err = sess.ExportWAV()
	assert.Error(t, err, "nothing left to export after the purge")

	assert.Positive(t, sink.count("purge"), "automatic purge is audited")
	assert.Positive(t, sink.count("session-stats"), "session statistics are published on stop")
}

func TestSessionStartIsExclusive(t *testing.T) {
	sess, err := New(testSettings(), &pacedSource{count: 1})
	require.NoError(t, err)

	require.NoError(t, sess.Start(context.Background()))
	assert.Error(t, sess.Start(context.Background()))
	sess.Stop()
}

func TestSessionManualControls(t *testing.T) {
	sess, err := New(testSettings(), &pacedSource{count: 1})
	require.NoError(t, err)

	sess.SetSpeaker(diarization.SpeakerRoleB)
	assert.Equal(t, diarization.SpeakerRoleB, sess.Quality().Speaker)

	sess.SwapRoles()
	assert.Equal(t, diarization.SpeakerRoleA, sess.Quality().Speaker)
}

func TestSessionExportWAV(t *testing.T) {
	settings := testSettings()
	settings.Capture.PurgeOnStop = false
	settings.Capture.Export.Path = t.TempDir()

	source := &pacedSource{count: 5}
	sess, err := New(settings, source)
	require.NoError(t, err)
	require.NoError(t, sess.Start(context.Background()))

	require.Eventually(t, func() bool {
		path, exportErr := sess.ExportWAV()
		if exportErr != nil {
			return false
		}
		assert.FileExists(t, path)
		return true
	}, 3*time.Second, 50*time.Millisecond)

	sess.Stop()
}

func TestSessionRejectsInvalidSettings(t *testing.T) {
	settings := testSettings()
	settings.Capture.ChunkBytes = 0

	_, err := New(settings, &pacedSource{count: 1})
	assert.Error(t, err)
}

// eventSink records event kinds for assertions.
type eventSink struct {
	mu    sync.Mutex
	kinds []string
}

func (s *eventSink) Name() string { return "test-sink" }

func (s *eventSink) ProcessEvent(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, event.Kind())
	return nil
}

func (s *eventSink) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.kinds {
		if k == kind {
			n++
		}
	}
	return n
}
