package diarization

import (
	"log/slog"
	"sync"
	"time"

	"github.com/frozo/ambientscribe/internal/capture"
	"github.com/frozo/ambientscribe/internal/logging"
	"github.com/frozo/ambientscribe/internal/observability/metrics"
)

// dominanceFactor is how much one profile's similarity must exceed the
// other's before it alone justifies a speaker switch.
const dominanceFactor = 1.2

// baselineWindow is the number of recent frame energies kept as the
// short-window rolling baseline.
const baselineWindow = 10

// silenceResetFactor scales the silence threshold into the gap that
// abandons the current assignment.
const silenceResetFactor = 3

// DiarizerConfig tunes the two-speaker state machine.
type DiarizerConfig struct {
	MinUtterance     time.Duration // shortest voice run that seeds a speaker
	SwitchHysteresis time.Duration // minimum dwell between automatic switches
	SilenceThreshold time.Duration // base silence unit, reset fires at 3x
	EnergyRatio      float64       // baseline ratio that justifies a switch
	RoleALabel       string
	RoleBLabel       string
}

// SpeakerDiarizer assigns voice frames to one of two roles by comparing
// frame energy against learned per-role profiles. Automatic switching is
// subject to hysteresis and is suspended entirely while fallback mode is
// engaged; manual corrections are never blocked.
type SpeakerDiarizer struct {
	config DiarizerConfig

	mu             sync.Mutex
	profiles       map[Speaker]*SpeakerProfile
	current        Speaker
	manualOverride bool
	fallback       bool
	lastSwitch     time.Time
	lastVoice      time.Time
	segmentStart   time.Time
	baseline       []float64

	onAutoSwap   func(from, to Speaker, at time.Time)
	onManualSwap func(at time.Time)

	metrics *metrics.DiarizationMetrics
	logger  *slog.Logger
}

// NewSpeakerDiarizer creates a diarizer. m may be nil.
func NewSpeakerDiarizer(config DiarizerConfig, m *metrics.DiarizationMetrics) *SpeakerDiarizer {
	if config.RoleALabel == "" {
		config.RoleALabel = "Doctor"
	}
	if config.RoleBLabel == "" {
		config.RoleBLabel = "Patient"
	}
	return &SpeakerDiarizer{
		config: config,
		profiles: map[Speaker]*SpeakerProfile{
			SpeakerRoleA: {},
			SpeakerRoleB: {},
		},
		current: SpeakerUnknown,
		metrics: m,
		logger:  logging.ForService("diarization"),
	}
}

// SetSwapObservers registers callbacks fired on automatic and manual role
// swaps. The quality evaluator uses these to measure swap accuracy.
func (d *SpeakerDiarizer) SetSwapObservers(onAuto func(from, to Speaker, at time.Time), onManual func(at time.Time)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onAutoSwap = onAuto
	d.onManualSwap = onManual
}

// ProcessFrame consumes one frame and returns the resulting assignment,
// or nil when the frame does not qualify (silence, or an utterance still
// too short to seed a speaker). Diarization never fails; worst case the
// prior assignment is retained.
func (d *SpeakerDiarizer) ProcessFrame(frame capture.Frame) *Assignment {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !frame.VoiceActive {
		d.observeSilence(frame.Timestamp)
		return nil
	}

	if d.segmentStart.IsZero() {
		d.segmentStart = frame.Timestamp
	}
	d.lastVoice = frame.Timestamp

	ratio := d.baselineRatio(frame.Energy)

	if d.current == SpeakerUnknown {
		d.pushBaseline(frame.Energy)
		if frame.Timestamp.Sub(d.segmentStart)+frame.Duration < d.config.MinUtterance {
			return nil
		}
		d.acquireSpeaker(frame)
	} else {
		switched, suspect := d.maybeSwitch(frame, ratio)
		switch {
		case switched:
			// The baseline tracked the previous speaker; re-anchor it.
			d.baseline = append(d.baseline[:0], frame.Energy)
		case suspect:
			// The frame resembles the other speaker but the switch was
			// blocked. Keep the current assignment without folding the
			// frame into the current profile or baseline.
		default:
			d.profiles[d.current].Update(frame.Energy)
			d.pushBaseline(frame.Energy)
		}
	}

	assignment := &Assignment{
		Speaker:        d.current,
		Label:          d.label(d.current),
		Energy:         frame.Energy,
		Confidence:     d.confidence(frame.Energy),
		Timestamp:      frame.Timestamp,
		ManualOverride: d.manualOverride,
	}
	if d.metrics != nil {
		d.metrics.RecordAssignment(d.current.String(), assignment.Confidence)
	}
	return assignment
}

// observeSilence abandons the current assignment after a prolonged gap,
// reflecting loss of conversational continuity. Manual overrides survive
// silence.
func (d *SpeakerDiarizer) observeSilence(now time.Time) {
	d.segmentStart = time.Time{}

	if d.current == SpeakerUnknown || d.manualOverride || d.lastVoice.IsZero() {
		return
	}
	if now.Sub(d.lastVoice) <= silenceResetFactor*d.config.SilenceThreshold {
		return
	}

	d.logger.Debug("silence gap, assignment reset",
		"previous", d.current.String(),
		"gap", now.Sub(d.lastVoice),
	)
	d.current = SpeakerUnknown
	if d.metrics != nil {
		d.metrics.RecordSwitch("reset")
	}
}

// acquireSpeaker assigns a role to the first qualifying utterance. With no
// learned profiles the first speaker is RoleA by convention; after a
// silence reset the better-matching profile wins.
func (d *SpeakerDiarizer) acquireSpeaker(frame capture.Frame) {
	speaker := SpeakerRoleA
	simA := d.profiles[SpeakerRoleA].Similarity(frame.Energy)
	simB := d.profiles[SpeakerRoleB].Similarity(frame.Energy)
	if simB > simA {
		speaker = SpeakerRoleB
	}

	d.current = speaker
	// Dwell is measured from the start of the utterance, not from the
	// moment it qualified.
	d.lastSwitch = d.segmentStart
	d.profiles[speaker].Update(frame.Energy)
	d.logger.Debug("speaker acquired", "speaker", speaker.String(), "energy", frame.Energy)
}

// maybeSwitch applies the automatic switch rules: no manual override, no
// fallback mode, hysteresis elapsed, and either a clearly dominant profile
// match for the other role or an energy excursion versus the baseline.
// Ambiguity retains the current speaker. It reports whether a switch
// happened, and whether the frame warranted one that was blocked.
func (d *SpeakerDiarizer) maybeSwitch(frame capture.Frame, baselineRatio float64) (switched, suspect bool) {
	other := d.current.Other()
	simCurrent := d.profiles[d.current].Similarity(frame.Energy)
	simOther := d.profiles[other].Similarity(frame.Energy)

	dominated := simOther > dominanceFactor*simCurrent
	excursion := baselineRatio > 0 &&
		(baselineRatio > d.config.EnergyRatio || baselineRatio < 1/d.config.EnergyRatio)

	if !dominated && !excursion {
		return false, false
	}
	if d.manualOverride || d.fallback {
		return false, true
	}
	if frame.Timestamp.Sub(d.lastSwitch) < d.config.SwitchHysteresis {
		return false, true
	}

	from := d.current
	d.current = other
	d.lastSwitch = frame.Timestamp
	d.profiles[other].Update(frame.Energy)

	d.logger.Debug("automatic speaker switch",
		"from", from.String(),
		"to", other.String(),
		"similarity_current", simCurrent,
		"similarity_other", simOther,
		"baseline_ratio", baselineRatio,
	)
	if d.metrics != nil {
		d.metrics.RecordSwitch("automatic")
	}
	if d.onAutoSwap != nil {
		d.onAutoSwap(from, other, frame.Timestamp)
	}
	return true, false
}

// SetCurrentSpeaker is an unconditional manual override. It always
// succeeds, bypasses hysteresis and fallback gating, and marks subsequent
// assignments as manually overridden.
func (d *SpeakerDiarizer) SetCurrentSpeaker(speaker Speaker) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.current = speaker
	d.manualOverride = true
	d.lastSwitch = time.Now()

	d.logger.Info("manual speaker assignment", "speaker", speaker.String())
	if d.metrics != nil {
		d.metrics.RecordManualOverride("set")
		d.metrics.RecordSwitch("manual")
	}
}

// SwapRoles exchanges the two role identities, profiles included, and is
// unconditional like SetCurrentSpeaker. A swap shortly after an automatic
// switch counts against swap accuracy.
func (d *SpeakerDiarizer) SwapRoles() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.profiles[SpeakerRoleA], d.profiles[SpeakerRoleB] =
		d.profiles[SpeakerRoleB], d.profiles[SpeakerRoleA]
	if d.current != SpeakerUnknown {
		d.current = d.current.Other()
	}
	d.manualOverride = true
	now := time.Now()
	d.lastSwitch = now

	d.logger.Info("roles swapped", "current", d.current.String())
	if d.metrics != nil {
		d.metrics.RecordManualOverride("swap")
		d.metrics.RecordSwitch("manual")
	}
	if d.onManualSwap != nil {
		d.onManualSwap(now)
	}
}

// ClearManualOverride re-enables automatic switching.
func (d *SpeakerDiarizer) ClearManualOverride() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manualOverride = false
}

// SetFallback engages or releases degraded single-speaker mode. While
// engaged, automatic switching is suspended; manual overrides still work.
func (d *SpeakerDiarizer) SetFallback(engaged bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = engaged
}

// CurrentSpeaker returns the active assignment.
func (d *SpeakerDiarizer) CurrentSpeaker() Speaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Profile returns a copy of the learned profile for the given role.
func (d *SpeakerDiarizer) Profile(speaker Speaker) SpeakerProfile {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.profiles[speaker]; ok {
		return *p
	}
	return SpeakerProfile{}
}

// ManualOverrideActive reports whether a manual correction is in force.
func (d *SpeakerDiarizer) ManualOverrideActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manualOverride
}

// Reset returns the diarizer to its initial state for a new session.
func (d *SpeakerDiarizer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.profiles = map[Speaker]*SpeakerProfile{
		SpeakerRoleA: {},
		SpeakerRoleB: {},
	}
	d.current = SpeakerUnknown
	d.manualOverride = false
	d.fallback = false
	d.lastSwitch = time.Time{}
	d.lastVoice = time.Time{}
	d.segmentStart = time.Time{}
	d.baseline = d.baseline[:0]
}

func (d *SpeakerDiarizer) label(speaker Speaker) string {
	switch speaker {
	case SpeakerRoleA:
		return d.config.RoleALabel
	case SpeakerRoleB:
		return d.config.RoleBLabel
	default:
		return "Unknown"
	}
}

// confidence reflects how well the energy matches the current profile.
func (d *SpeakerDiarizer) confidence(energy float64) float64 {
	if d.current == SpeakerUnknown {
		return 0
	}
	sim := d.profiles[d.current].Similarity(energy)
	if sim > 1 {
		sim = 1
	}
	return sim
}

// baselineRatio compares an energy to the rolling baseline mean. Zero
// means no baseline yet.
func (d *SpeakerDiarizer) baselineRatio(energy float64) float64 {
	if len(d.baseline) == 0 {
		return 0
	}
	var sum float64
	for _, e := range d.baseline {
		sum += e
	}
	mean := sum / float64(len(d.baseline))
	if mean <= 0 {
		return 0
	}
	return energy / mean
}

func (d *SpeakerDiarizer) pushBaseline(energy float64) {
	d.baseline = append(d.baseline, energy)
	if len(d.baseline) > baselineWindow {
		d.baseline = d.baseline[1:]
	}
}
