package capture

import (
	"encoding/binary"
	"math"
	"time"
)

// maxSampleMagnitude normalizes RMS energy for signed 16-bit audio.
const maxSampleMagnitude = 32768.0

// Frame is one fixed-duration window of captured audio with its VAD
// classification. Frames are immutable after creation.
type Frame struct {
	Samples     []int16       // signed 16-bit samples, frame duration worth
	Timestamp   time.Time     // monotonic capture timestamp of the frame end
	Duration    time.Duration // audio time covered by the frame
	Energy      float64       // RMS energy normalized to [0,1]
	VoiceActive bool          // energy above the VAD threshold
}

// FrameAccumulator slices the raw byte stream into fixed-duration frames
// and computes their RMS energy. It is not safe for concurrent use; the
// capture loop is its only caller.
type FrameAccumulator struct {
	samplesPerFrame int
	frameDuration   time.Duration
	threshold       float64
	pending         []int16
	oddByte         byte
	hasOddByte      bool
}

// NewFrameAccumulator creates an accumulator emitting frames of the given
// duration at the given sample rate.
func NewFrameAccumulator(frameDuration time.Duration, sampleRate int, vadThreshold float64) *FrameAccumulator {
	samplesPerFrame := int(frameDuration.Seconds() * float64(sampleRate))
	if samplesPerFrame < 1 {
		samplesPerFrame = 1
	}
	return &FrameAccumulator{
		samplesPerFrame: samplesPerFrame,
		frameDuration:   time.Duration(samplesPerFrame) * time.Second / time.Duration(sampleRate),
		threshold:       vadThreshold,
		pending:         make([]int16, 0, samplesPerFrame),
	}
}

// Feed appends raw S16LE bytes and returns the frames completed by this
// chunk, zero or more. A trailing odd byte is held until the next call.
func (fa *FrameAccumulator) Feed(data []byte, now time.Time) []Frame {
	if len(data) == 0 {
		return nil
	}

	if fa.hasOddByte {
		data = append([]byte{fa.oddByte}, data...)
		fa.hasOddByte = false
	}
	if len(data)%2 != 0 {
		fa.oddByte = data[len(data)-1]
		fa.hasOddByte = true
		data = data[:len(data)-1]
	}

	var frames []Frame
	for i := 0; i+1 < len(data); i += 2 {
		fa.pending = append(fa.pending, int16(binary.LittleEndian.Uint16(data[i:i+2])))
		if len(fa.pending) == fa.samplesPerFrame {
			frames = append(frames, fa.emit(now))
		}
	}
	return frames
}

// Reset discards any partially accumulated frame.
func (fa *FrameAccumulator) Reset() {
	fa.pending = fa.pending[:0]
	fa.hasOddByte = false
}

// SamplesPerFrame returns the number of samples in one frame.
func (fa *FrameAccumulator) SamplesPerFrame() int {
	return fa.samplesPerFrame
}

func (fa *FrameAccumulator) emit(now time.Time) Frame {
	samples := make([]int16, len(fa.pending))
	copy(samples, fa.pending)
	fa.pending = fa.pending[:0]

	energy := rmsEnergy(samples)
	return Frame{
		Samples:     samples,
		Timestamp:   now,
		Duration:    fa.frameDuration,
		Energy:      energy,
		VoiceActive: energy > fa.threshold,
	}
}

// rmsEnergy computes the RMS of the samples normalized by the maximum
// sample magnitude, yielding a value in [0,1].
func rmsEnergy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / maxSampleMagnitude
}
