package capture

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmBytes encodes samples as S16LE.
func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// constantSamples returns n samples of the given amplitude.
func constantSamples(n int, amplitude int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

func TestFrameAccumulatorEmitsFixedFrames(t *testing.T) {
	t.Parallel()

	fa := NewFrameAccumulator(30*time.Millisecond, 16000, 0.015)
	require.Equal(t, 480, fa.SamplesPerFrame())

	now := time.Now()
	// Two and a half frames worth of samples in one chunk.
	frames := fa.Feed(pcmBytes(constantSamples(1200, 1000)), now)
	require.Len(t, frames, 2)

	// The remaining half frame completes on the next chunk.
	frames = fa.Feed(pcmBytes(constantSamples(240, 1000)), now)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0].Samples, 480)
}

func TestFrameAccumulatorOddByteCarry(t *testing.T) {
	t.Parallel()

	fa := NewFrameAccumulator(time.Millisecond, 1000, 0.5)
	require.Equal(t, 1, fa.SamplesPerFrame())

	data := pcmBytes([]int16{12345})
	frames := fa.Feed(data[:1], time.Now())
	assert.Empty(t, frames, "half a sample must not emit a frame")

	frames = fa.Feed(data[1:], time.Now())
	require.Len(t, frames, 1)
	assert.Equal(t, int16(12345), frames[0].Samples[0])
}

func TestFrameEnergyAndVAD(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		amplitude  int16
		threshold  float64
		wantActive bool
	}{
		{"silence below threshold", 0, 0.015, false},
		{"quiet noise below threshold", 100, 0.015, false},
		{"speech above threshold", 3000, 0.015, true},
		{"loud speech", 16000, 0.015, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fa := NewFrameAccumulator(30*time.Millisecond, 16000, tt.threshold)
			frames := fa.Feed(pcmBytes(constantSamples(480, tt.amplitude)), time.Now())
			require.Len(t, frames, 1)

			wantEnergy := math.Abs(float64(tt.amplitude)) / 32768.0
			assert.InDelta(t, wantEnergy, frames[0].Energy, 1e-9)
			assert.Equal(t, tt.wantActive, frames[0].VoiceActive)
		})
	}
}

func TestFrameEnergyNormalization(t *testing.T) {
	t.Parallel()

	fa := NewFrameAccumulator(30*time.Millisecond, 16000, 0.015)

	// Full-scale negative samples give energy 1.0.
	frames := fa.Feed(pcmBytes(constantSamples(480, -32768)), time.Now())
	require.Len(t, frames, 1)
	assert.InDelta(t, 1.0, frames[0].Energy, 1e-9)
}

func TestFrameAccumulatorReset(t *testing.T) {
	t.Parallel()

	fa := NewFrameAccumulator(30*time.Millisecond, 16000, 0.015)
	fa.Feed(pcmBytes(constantSamples(400, 500)), time.Now())
	fa.Reset()

	// After reset the partial frame is gone; a full frame of new samples
	// is needed before anything is emitted.
	frames := fa.Feed(pcmBytes(constantSamples(400, 500)), time.Now())
	assert.Empty(t, frames)
	frames = fa.Feed(pcmBytes(constantSamples(80, 500)), time.Now())
	assert.Len(t, frames, 1)
}
