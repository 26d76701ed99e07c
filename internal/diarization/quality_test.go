package diarization

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frozo/ambientscribe/internal/events"
)

func testQualityConfig() QualityConfig {
	return QualityConfig{
		Window:            500 * time.Millisecond,
		HistorySize:       100,
		MinSamples:        20,
		GoodThreshold:     0.18,
		ModerateThreshold: 0.30,
		SwapAccuracyMin:   0.95,
		FallbackSamples:   50,
	}
}

func assignment(ts time.Time, speaker Speaker, energy float64, manual bool) Assignment {
	return Assignment{
		Speaker:        speaker,
		Energy:         energy,
		Timestamp:      ts,
		ManualOverride: manual,
	}
}

func TestQualityBelowMinSamplesStaysUnknown(t *testing.T) {
	t.Parallel()

	q := NewQualityEvaluator(testQualityConfig(), nil, nil)
	base := time.Now()

	for i := 0; i < 19; i++ {
		q.Observe(assignment(base.Add(time.Duration(i)*frameStep), SpeakerRoleA, 0.5, false))
	}

	assert.Equal(t, QualityUnknown, q.Level())
	assert.Zero(t, q.ErrorRate())
	assert.False(t, q.FallbackActive())
}

func TestQualityGoodOnConsistentStream(t *testing.T) {
	t.Parallel()

	q := NewQualityEvaluator(testQualityConfig(), nil, nil)
	base := time.Now()

	for i := 0; i < 30; i++ {
		q.Observe(assignment(base.Add(time.Duration(i)*frameStep), SpeakerRoleA, 0.5, false))
	}

	assert.Equal(t, QualityGood, q.Level())
	assert.Zero(t, q.ErrorRate())
	assert.False(t, q.FallbackActive())
}

func TestAlternatingLabelsTriggerFallback(t *testing.T) {
	t.Parallel()

	q := NewQualityEvaluator(testQualityConfig(), nil, nil)
	base := time.Unix(1000, 0)

	// Near-50/50 alternation means every window disagrees with itself.
	for i := 0; i < 24; i++ {
		speaker := SpeakerRoleA
		if i%2 == 1 {
			speaker = SpeakerRoleB
		}
		q.Observe(assignment(base.Add(time.Duration(i)*frameStep), speaker, 0.5, false))
	}

	assert.Greater(t, q.ErrorRate(), 0.30)
	assert.Equal(t, QualityPoor, q.Level())
	assert.True(t, q.FallbackActive())
}

func TestManualSampleDominatesItsWindow(t *testing.T) {
	t.Parallel()

	q := NewQualityEvaluator(testQualityConfig(), nil, nil)
	base := time.Unix(1000, 0)

	// 19 loud automatic RoleA samples and one quiet manual RoleB in the
	// same window: the manual assignment is the reference regardless of
	// energy.
	for i := 0; i < 19; i++ {
		q.Observe(assignment(base.Add(time.Duration(i)*20*time.Millisecond), SpeakerRoleA, 0.9, false))
	}
	q.Observe(assignment(base.Add(380*time.Millisecond), SpeakerRoleB, 0.1, true))

	assert.Greater(t, q.ErrorRate(), 0.9)
	assert.Equal(t, QualityPoor, q.Level())
}

func TestSwapReversalWithinWindowLowersAccuracy(t *testing.T) {
	t.Parallel()

	q := NewQualityEvaluator(testQualityConfig(), nil, nil)
	base := time.Now()

	q.RecordAutomaticSwap(SpeakerRoleA, SpeakerRoleB, base)
	assert.Equal(t, 1.0, q.SwapAccuracy())

	q.RecordManualSwap(base.Add(2 * time.Second))

	assert.Zero(t, q.SwapAccuracy())
	assert.True(t, q.FallbackActive(), "accuracy below the minimum engages fallback")
}

func TestSwapReversalOutsideWindowIgnored(t *testing.T) {
	t.Parallel()

	q := NewQualityEvaluator(testQualityConfig(), nil, nil)
	base := time.Now()

	q.RecordAutomaticSwap(SpeakerRoleA, SpeakerRoleB, base)
	q.RecordManualSwap(base.Add(6 * time.Second))

	assert.Equal(t, 1.0, q.SwapAccuracy())
	assert.False(t, q.FallbackActive())
}

func TestManualSwapWithoutAutomaticHistory(t *testing.T) {
	t.Parallel()

	q := NewQualityEvaluator(testQualityConfig(), nil, nil)

	q.RecordManualSwap(time.Now())
	assert.Equal(t, 1.0, q.SwapAccuracy())
	assert.False(t, q.FallbackActive())
}

func TestFallbackCountdownReenablesAutomatically(t *testing.T) {
	t.Parallel()

	cfg := testQualityConfig()
	cfg.FallbackSamples = 10
	q := NewQualityEvaluator(cfg, nil, nil)
	base := time.Now()

	for i := 0; i < 24; i++ {
		speaker := SpeakerRoleA
		if i%2 == 1 {
			speaker = SpeakerRoleB
		}
		q.Observe(assignment(base.Add(time.Duration(i)*frameStep), speaker, 0.5, false))
	}
	require.True(t, q.FallbackActive())

	// Ten further samples run the countdown out; the release is
	// unconditional and starts a fresh history.
	ts := base.Add(time.Second)
	for i := 0; i < 10; i++ {
		q.Observe(assignment(ts.Add(time.Duration(i)*frameStep), SpeakerRoleA, 0.5, false))
	}

	assert.False(t, q.FallbackActive())
	assert.Equal(t, QualityUnknown, q.Level())
	assert.Less(t, q.SampleCount(), 20)
}

func TestQualityEventsPublished(t *testing.T) {
	bus := events.NewBus(events.Config{BufferSize: 64})
	sink := &eventSink{}
	bus.Subscribe(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Shutdown()

	q := NewQualityEvaluator(testQualityConfig(), nil, bus)
	base := time.Now()

	for i := 0; i < 24; i++ {
		speaker := SpeakerRoleA
		if i%2 == 1 {
			speaker = SpeakerRoleB
		}
		q.Observe(assignment(base.Add(time.Duration(i)*frameStep), speaker, 0.5, false))
	}

	require.Eventually(t, func() bool {
		return sink.count("quality-transition") > 0 && sink.count("fallback") > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResetRestoresInitialState(t *testing.T) {
	t.Parallel()

	q := NewQualityEvaluator(testQualityConfig(), nil, nil)
	base := time.Now()

	for i := 0; i < 24; i++ {
		speaker := SpeakerRoleA
		if i%2 == 1 {
			speaker = SpeakerRoleB
		}
		q.Observe(assignment(base.Add(time.Duration(i)*frameStep), speaker, 0.5, false))
	}
	q.RecordAutomaticSwap(SpeakerRoleA, SpeakerRoleB, base)
	q.RecordManualSwap(base.Add(time.Second))

	q.Reset()

	assert.Equal(t, QualityUnknown, q.Level())
	assert.Zero(t, q.ErrorRate())
	assert.Equal(t, 1.0, q.SwapAccuracy())
	assert.False(t, q.FallbackActive())
	assert.Zero(t, q.SampleCount())
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
