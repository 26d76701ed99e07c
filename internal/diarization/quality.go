package diarization

import (
	"log/slog"
	"sync"
	"time"

	"github.com/frozo/ambientscribe/internal/events"
	"github.com/frozo/ambientscribe/internal/logging"
	"github.com/frozo/ambientscribe/internal/observability/metrics"
)

// swapReversalWindow bounds how soon a manual swap after an automatic one
// counts as a correction of that automatic swap.
const swapReversalWindow = 5 * time.Second

// QualityLevel bands the rolling error rate.
type QualityLevel int

const (
	QualityUnknown QualityLevel = iota
	QualityGood
	QualityModerate
	QualityPoor
)

func (l QualityLevel) String() string {
	switch l {
	case QualityGood:
		return "good"
	case QualityModerate:
		return "moderate"
	case QualityPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// QualityConfig tunes the evaluator.
type QualityConfig struct {
	Window            time.Duration // grouping window for dominant-speaker voting
	HistorySize       int           // bounded assignment history, oldest evicted
	MinSamples        int           // samples required before the error rate is computed
	GoodThreshold     float64       // error rate at or below this is Good
	ModerateThreshold float64       // error rate at or below this is Moderate, above is Poor
	SwapAccuracyMin   float64       // swap accuracy below this engages fallback
	FallbackSamples   int           // samples until fallback auto-clears
}

// QualityEvaluator watches the assignment stream and estimates how
// trustworthy automatic diarization currently is. The error rate is a DER
// proxy: within each time window the dominant speaker is taken as ground
// truth and disagreeing samples count as errors. Sustained poor quality or
// repeated manual reversal of automatic swaps engages fallback mode.
type QualityEvaluator struct {
	config QualityConfig

	mu            sync.Mutex
	history       []Assignment
	errorRate     float64
	level         QualityLevel
	fallback      bool
	countdown     int
	autoSwaps     int
	reversedSwaps int
	lastAutoSwap  time.Time
	swapAccuracy  float64

	metrics *metrics.DiarizationMetrics
	bus     *events.Bus
	logger  *slog.Logger
}

// NewQualityEvaluator creates an evaluator. m and bus may be nil.
func NewQualityEvaluator(config QualityConfig, m *metrics.DiarizationMetrics, bus *events.Bus) *QualityEvaluator {
	return &QualityEvaluator{
		config:       config,
		history:      make([]Assignment, 0, config.HistorySize),
		level:        QualityUnknown,
		swapAccuracy: 1.0,
		metrics:      m,
		bus:          bus,
		logger:       logging.ForService("diarization"),
	}
}

// Observe folds one assignment into the rolling history and re-evaluates
// quality. While fallback is engaged it also advances the countdown that
// eventually re-enables automatic diarization.
func (q *QualityEvaluator) Observe(assignment Assignment) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.fallback {
		q.countdown--
		if q.countdown <= 0 {
			q.exitFallback("countdown-elapsed")
			// The re-enable is unconditional; stale history would only
			// re-trigger on the very next sample, so start fresh.
			q.history = q.history[:0]
			q.errorRate = 0
			q.level = QualityUnknown
		}
	}

	q.history = append(q.history, assignment)
	if len(q.history) > q.config.HistorySize {
		q.history = q.history[1:]
	}

	if len(q.history) < q.config.MinSamples {
		return
	}

	q.errorRate = q.computeErrorRate()
	if q.metrics != nil {
		q.metrics.UpdateErrorRate(q.errorRate)
	}
	q.updateLevel(assignment.Timestamp)
}

// computeErrorRate is the DER proxy over the current history. Within each
// window the dominant speaker is the manually assigned one if any sample
// was manual, otherwise the speaker with the highest summed energy.
func (q *QualityEvaluator) computeErrorRate() float64 {
	type windowStats struct {
		manual    Speaker
		hasManual bool
		energy    map[Speaker]float64
		samples   []Speaker
	}

	windows := make(map[int64]*windowStats)
	for _, a := range q.history {
		key := a.Timestamp.UnixNano() / int64(q.config.Window)
		w := windows[key]
		if w == nil {
			w = &windowStats{energy: make(map[Speaker]float64)}
			windows[key] = w
		}
		if a.ManualOverride {
			w.manual = a.Speaker
			w.hasManual = true
		}
		w.energy[a.Speaker] += a.Energy
		w.samples = append(w.samples, a.Speaker)
	}

	var errs, total int
	for _, w := range windows {
		dominant := w.manual
		if !w.hasManual {
			var best float64
			for speaker, energy := range w.energy {
				if energy > best || (energy == best && speaker < dominant) {
					best = energy
					dominant = speaker
				}
			}
		}
		for _, speaker := range w.samples {
			total++
			if speaker != dominant {
				errs++
			}
		}
	}

	if total == 0 {
		return 0
	}
	return float64(errs) / float64(total)
}

// updateLevel bands the error rate and reacts to transitions.
func (q *QualityEvaluator) updateLevel(at time.Time) {
	level := QualityPoor
	switch {
	case q.errorRate <= q.config.GoodThreshold:
		level = QualityGood
	case q.errorRate <= q.config.ModerateThreshold:
		level = QualityModerate
	}

	if level != q.level {
		q.logger.Info("diarization quality transition",
			"from", q.level.String(),
			"to", level.String(),
			"error_rate", q.errorRate,
		)
		if q.metrics != nil {
			q.metrics.RecordQualityChange(level.String(), int(level))
		}
		if q.bus != nil {
			q.bus.Publish(events.QualityTransitionEvent{
				From:      q.level.String(),
				To:        level.String(),
				ErrorRate: q.errorRate,
				Time:      at,
			})
		}
		q.level = level
	}

	if level == QualityPoor {
		q.enterFallback("error-rate")
	}
}

// RecordAutomaticSwap notes an automatic role switch for accuracy tracking.
func (q *QualityEvaluator) RecordAutomaticSwap(from, to Speaker, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.autoSwaps++
	q.lastAutoSwap = at
	q.recomputeSwapAccuracy()
	q.logger.Debug("automatic swap recorded",
		"from", from.String(),
		"to", to.String(),
		"accuracy", q.swapAccuracy,
	)
}

// RecordManualSwap notes a manual role swap. A manual swap arriving within
// the reversal window of an automatic one counts as a correction of it;
// too many corrections engage fallback.
func (q *QualityEvaluator) RecordManualSwap(at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.lastAutoSwap.IsZero() && at.Sub(q.lastAutoSwap) <= swapReversalWindow {
		q.reversedSwaps++
		q.lastAutoSwap = time.Time{}
	}
	q.recomputeSwapAccuracy()

	if q.autoSwaps > 0 && q.swapAccuracy < q.config.SwapAccuracyMin {
		q.enterFallback("swap-accuracy")
	}
}

func (q *QualityEvaluator) recomputeSwapAccuracy() {
	if q.autoSwaps == 0 {
		q.swapAccuracy = 1.0
	} else {
		q.swapAccuracy = float64(q.autoSwaps-q.reversedSwaps) / float64(q.autoSwaps)
	}
	if q.metrics != nil {
		q.metrics.UpdateSwapAccuracy(q.swapAccuracy)
	}
}

// enterFallback engages degraded mode and arms the auto-clear countdown.
// Callers hold the lock.
func (q *QualityEvaluator) enterFallback(reason string) {
	if q.fallback {
		return
	}
	q.fallback = true
	q.countdown = q.config.FallbackSamples

	q.logger.Warn("fallback mode engaged",
		"reason", reason,
		"error_rate", q.errorRate,
		"swap_accuracy", q.swapAccuracy,
	)
	if q.metrics != nil {
		q.metrics.UpdateFallback(true)
	}
	if q.bus != nil {
		q.bus.Publish(events.FallbackEvent{Engaged: true, Reason: reason, Time: time.Now()})
	}
}

// exitFallback releases degraded mode. Callers hold the lock.
func (q *QualityEvaluator) exitFallback(reason string) {
	q.fallback = false
	q.countdown = 0

	q.logger.Info("fallback mode released", "reason", reason)
	if q.metrics != nil {
		q.metrics.UpdateFallback(false)
	}
	if q.bus != nil {
		q.bus.Publish(events.FallbackEvent{Engaged: false, Reason: reason, Time: time.Now()})
	}
}

// ErrorRate returns the current DER proxy.
func (q *QualityEvaluator) ErrorRate() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.errorRate
}

// SwapAccuracy returns the fraction of automatic swaps not manually
// reversed. It is 1.0 until the first automatic swap.
func (q *QualityEvaluator) SwapAccuracy() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.swapAccuracy
}

// Level returns the current quality band.
func (q *QualityEvaluator) Level() QualityLevel {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.level
}

// FallbackActive reports whether degraded mode is engaged.
func (q *QualityEvaluator) FallbackActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fallback
}

// SampleCount returns the number of assignments in the rolling history.
func (q *QualityEvaluator) SampleCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.history)
}

// Reset clears all rolling state for a new session.
func (q *QualityEvaluator) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.history = q.history[:0]
	q.errorRate = 0
	q.level = QualityUnknown
	q.fallback = false
	q.countdown = 0
	q.autoSwaps = 0
	q.reversedSwaps = 0
	q.lastAutoSwap = time.Time{}
	q.swapAccuracy = 1.0
	if q.metrics != nil {
		q.metrics.UpdateFallback(false)
	}
}
