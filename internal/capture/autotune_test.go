package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedIntervals drives the tuner with reads at a fixed multiple of the
// expected interval and returns any proposals produced.
func feedIntervals(t *ChunkAutotuner, factor float64, count int, start time.Time) []*TuneProposal {
	interval := time.Duration(float64(t.expected) * factor)
	var proposals []*TuneProposal
	arrival := start
	for i := 0; i < count; i++ {
		arrival = arrival.Add(interval)
		if p := t.ObserveRead(arrival); p != nil {
			proposals = append(proposals, p)
		}
	}
	return proposals
}

func TestExpectedInterval(t *testing.T) {
	t.Parallel()

	// 2048 bytes of 16 kHz mono S16LE is 64 ms.
	assert.Equal(t, 64*time.Millisecond, expectedInterval(2048, 16000, 2))
}

func TestAutotunerUnderrunProposal(t *testing.T) {
	t.Parallel()

	tuner := NewChunkAutotuner(2048, 16000, 2, 5)
	start := time.Now()
	tuner.ObserveRead(start) // establish baseline

	// Three consecutive reads at 2x expected latency: exactly one
	// proposal for a 1.5x increase, reason underrun.
	proposals := feedIntervals(tuner, 2.0, 3, start)
	require.Len(t, proposals, 1)
	p := proposals[0]
	assert.Equal(t, ReasonUnderrun, p.Reason)
	assert.Equal(t, 2048, p.OldChunkBytes)
	assert.Equal(t, 3072, p.NewChunkBytes)
	assert.Equal(t, 3, p.Consecutive)

	assert.Equal(t, 2048, tuner.CurrentChunkBytes(), "live chunk size must not change mid-session")
	assert.Equal(t, 3072, tuner.PendingChunkBytes())
	assert.Equal(t, 3, tuner.Underruns())
}

func TestAutotunerOverrunProposalAndFloor(t *testing.T) {
	t.Parallel()

	tuner := NewChunkAutotuner(2048, 16000, 2, 5)
	start := time.Now()
	tuner.ObserveRead(start)

	proposals := feedIntervals(tuner, 0.25, 3, start)
	require.Len(t, proposals, 1)
	assert.Equal(t, ReasonOverrun, proposals[0].Reason)
	assert.Equal(t, 1536, proposals[0].NewChunkBytes)

	// Keep shrinking: the pending size never goes below half the initial.
	feedIntervals(tuner, 0.25, 30, start.Add(time.Hour))
	assert.GreaterOrEqual(t, tuner.PendingChunkBytes(), 1024)
}

func TestAutotunerNormalCadenceResetsCounters(t *testing.T) {
	t.Parallel()

	tuner := NewChunkAutotuner(2048, 16000, 2, 5)
	start := time.Now()
	tuner.ObserveRead(start)

	// Two underruns, one normal read, two more underruns: no proposal
	// because the run of anomalies was broken.
	arrival := start
	interval := time.Duration(float64(tuner.expected) * 2)
	for i := 0; i < 2; i++ {
		arrival = arrival.Add(interval)
		require.Nil(t, tuner.ObserveRead(arrival))
	}
	arrival = arrival.Add(tuner.expected)
	require.Nil(t, tuner.ObserveRead(arrival))
	for i := 0; i < 2; i++ {
		arrival = arrival.Add(interval)
		require.Nil(t, tuner.ObserveRead(arrival))
	}
}

func TestAutotunerAdjustmentCap(t *testing.T) {
	t.Parallel()

	tuner := NewChunkAutotuner(2048, 16000, 2, 5)
	start := time.Now()
	tuner.ObserveRead(start)

	// Endless underruns: proposals stop after the per-session cap.
	proposals := feedIntervals(tuner, 2.0, 100, start)
	assert.Len(t, proposals, 5)
	assert.Equal(t, 5, tuner.Adjustments())
}

func TestAutotunerFirstReadEstablishesBaseline(t *testing.T) {
	t.Parallel()

	tuner := NewChunkAutotuner(2048, 16000, 2, 5)
	assert.Nil(t, tuner.ObserveRead(time.Now()), "first read has no interval to judge")
	assert.Equal(t, 0, tuner.Underruns())
	assert.Equal(t, 0, tuner.Overruns())
}
