// Package diarization assigns captured voice frames to one of two
// conversation roles using energy profiles, and continuously judges its
// own reliability so the caller can fall back to single-speaker mode.
package diarization

import (
	"time"
)

// Speaker identifies a conversation role. The engine models exactly two
// participants; everything else is Unknown.
type Speaker int

const (
	SpeakerUnknown Speaker = iota
	SpeakerRoleA
	SpeakerRoleB
)

func (s Speaker) String() string {
	switch s {
	case SpeakerRoleA:
		return "role_a"
	case SpeakerRoleB:
		return "role_b"
	default:
		return "unknown"
	}
}

// Other returns the opposite role, or Unknown for Unknown.
func (s Speaker) Other() Speaker {
	switch s {
	case SpeakerRoleA:
		return SpeakerRoleB
	case SpeakerRoleB:
		return SpeakerRoleA
	default:
		return SpeakerUnknown
	}
}

// SpeakerProfile is the learned energy fingerprint of one role. Updates
// happen in place under the diarizer's lock; readers never see a profile
// mid-update.
type SpeakerProfile struct {
	Mean    float64
	Peak    float64
	Min     float64
	Samples int
}

// Update folds one energy observation into the profile using a streaming
// mean and running extrema.
func (p *SpeakerProfile) Update(energy float64) {
	if p.Samples == 0 {
		p.Mean = energy
		p.Peak = energy
		p.Min = energy
		p.Samples = 1
		return
	}
	p.Mean = (p.Mean*float64(p.Samples) + energy) / float64(p.Samples+1)
	p.Samples++
	if energy > p.Peak {
		p.Peak = energy
	}
	if energy < p.Min {
		p.Min = energy
	}
}

// Similarity scores how well an observed energy matches the profile mean.
// Identical energy scores 1.0; the score decays symmetrically in either
// direction. An empty profile matches nothing.
func (p *SpeakerProfile) Similarity(energy float64) float64 {
	if p.Samples == 0 || p.Mean <= 0 || energy <= 0 {
		return 0
	}
	if energy < p.Mean {
		return energy / p.Mean
	}
	return p.Mean / energy
}

// Assignment is one diarization decision for a voice-active frame.
type Assignment struct {
	Speaker        Speaker
	Label          string
	Energy         float64
	Confidence     float64
	Timestamp      time.Time
	ManualOverride bool
}
