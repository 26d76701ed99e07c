package capture

import (
	"sync"
	"time"
)

// Timing anomaly thresholds relative to the expected read interval.
const (
	underrunFactor = 1.5
	overrunFactor  = 0.5

	// consecutiveTrigger is the number of consecutive anomalies of the
	// same kind needed before a chunk size proposal is made.
	consecutiveTrigger = 3

	chunkGrowthFactor = 1.5
	chunkShrinkFactor = 0.75
)

// TuneReason identifies which timing anomaly triggered a proposal.
type TuneReason string

const (
	ReasonUnderrun TuneReason = "underrun"
	ReasonOverrun  TuneReason = "overrun"
)

// TuneProposal is a proposed capture chunk size change. Proposals take
// effect only on the next engine start; the live audio source is never
// resized mid-stream.
type TuneProposal struct {
	OldChunkBytes int
	NewChunkBytes int
	Reason        TuneReason
	Consecutive   int
}

// ChunkAutotuner observes the cadence of capture reads and proposes chunk
// size adjustments when the loop consistently runs late (underrun) or early
// (overrun). The capture loop drives it; accessors may be called from
// other goroutines.
type ChunkAutotuner struct {
	mu             sync.Mutex
	initialChunk   int
	currentChunk   int
	pendingChunk   int
	expected       time.Duration
	lastArrival    time.Time
	consecUnder    int
	consecOver     int
	adjustments    int
	maxAdjustments int
	totalUnderruns int
	totalOverruns  int
}

// NewChunkAutotuner creates an autotuner for the given chunk size and audio
// format. maxAdjustments caps proposals per session.
func NewChunkAutotuner(chunkBytes, sampleRate, bytesPerSample, maxAdjustments int) *ChunkAutotuner {
	t := &ChunkAutotuner{
		initialChunk:   chunkBytes,
		currentChunk:   chunkBytes,
		pendingChunk:   chunkBytes,
		maxAdjustments: maxAdjustments,
	}
	t.expected = expectedInterval(chunkBytes, sampleRate, bytesPerSample)
	return t
}

// expectedInterval is the theoretical duration of one chunk of audio.
func expectedInterval(chunkBytes, sampleRate, bytesPerSample int) time.Duration {
	seconds := float64(chunkBytes) / float64(bytesPerSample) / float64(sampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// ObserveRead records the arrival time of a completed read and returns a
// proposal when a chunk size change is warranted, nil otherwise.
func (t *ChunkAutotuner) ObserveRead(arrival time.Time) *TuneProposal {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastArrival.IsZero() {
		t.lastArrival = arrival
		return nil
	}

	interval := arrival.Sub(t.lastArrival)
	t.lastArrival = arrival

	switch {
	case interval > time.Duration(float64(t.expected)*underrunFactor):
		t.consecUnder++
		t.consecOver = 0
		t.totalUnderruns++
	case interval < time.Duration(float64(t.expected)*overrunFactor):
		t.consecOver++
		t.consecUnder = 0
		t.totalOverruns++
	default:
		t.consecUnder = 0
		t.consecOver = 0
		return nil
	}

	if t.consecUnder >= consecutiveTrigger {
		consecutive := t.consecUnder
		t.consecUnder = 0
		return t.propose(int(float64(t.pendingChunk)*chunkGrowthFactor), ReasonUnderrun, consecutive)
	}
	if t.consecOver >= consecutiveTrigger {
		consecutive := t.consecOver
		t.consecOver = 0
		proposed := int(float64(t.pendingChunk) * chunkShrinkFactor)
		// The chunk never shrinks below half its initial size.
		proposed = max(proposed, t.initialChunk/2)
		return t.propose(proposed, ReasonOverrun, consecutive)
	}
	return nil
}

func (t *ChunkAutotuner) propose(newChunk int, reason TuneReason, consecutive int) *TuneProposal {
	if t.adjustments >= t.maxAdjustments {
		return nil
	}
	// Align to sample boundary.
	newChunk -= newChunk % 2
	if newChunk == t.pendingChunk {
		return nil
	}

	old := t.pendingChunk
	t.pendingChunk = newChunk
	t.adjustments++

	return &TuneProposal{
		OldChunkBytes: old,
		NewChunkBytes: newChunk,
		Reason:        reason,
		Consecutive:   consecutive,
	}
}

// CurrentChunkBytes returns the chunk size in effect for this session.
func (t *ChunkAutotuner) CurrentChunkBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentChunk
}

// PendingChunkBytes returns the chunk size that will apply on the next
// engine start.
func (t *ChunkAutotuner) PendingChunkBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingChunk
}

// Underruns returns the total number of underruns observed this session.
func (t *ChunkAutotuner) Underruns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalUnderruns
}

// Overruns returns the total number of overruns observed this session.
func (t *ChunkAutotuner) Overruns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalOverruns
}

// Adjustments returns the number of proposals made this session.
func (t *ChunkAutotuner) Adjustments() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.adjustments
}
