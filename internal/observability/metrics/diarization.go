package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DiarizationMetrics contains all Prometheus metrics related to speaker
// diarization and its quality evaluation.
type DiarizationMetrics struct {
	Assignments     *prometheus.CounterVec
	SpeakerSwitches *prometheus.CounterVec
	ManualOverrides *prometheus.CounterVec
	ErrorRate       prometheus.Gauge
	SwapAccuracy    prometheus.Gauge
	QualityLevel    prometheus.Gauge
	QualityChanges  *prometheus.CounterVec
	FallbackEntries prometheus.Counter
	FallbackActive  prometheus.Gauge
	Confidence      prometheus.Histogram
	registry        *prometheus.Registry
}

// NewDiarizationMetrics creates a new instance of DiarizationMetrics and
// registers it with the given Prometheus registry.
func NewDiarizationMetrics(registry *prometheus.Registry) (*DiarizationMetrics, error) {
	m := &DiarizationMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize diarization metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register diarization metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for DiarizationMetrics.
func (m *DiarizationMetrics) initMetrics() error {
	m.Assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diarization_assignments_total",
		Help: "Total number of speaker assignments emitted",
	}, []string{"speaker"}) // speaker: unknown, role_a, role_b

	m.SpeakerSwitches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diarization_speaker_switches_total",
		Help: "Total number of speaker switches",
	}, []string{"kind"}) // kind: automatic, manual

	m.ManualOverrides = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diarization_manual_overrides_total",
		Help: "Total number of manual speaker overrides",
	}, []string{"operation"}) // operation: set_speaker, swap_roles

	m.ErrorRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diarization_error_rate",
		Help: "Rolling diarization error rate estimate",
	})

	m.SwapAccuracy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diarization_swap_accuracy",
		Help: "Rolling accuracy of automatic role swaps",
	})

	m.QualityLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diarization_quality_level",
		Help: "Current quality level (0 unknown, 1 good, 2 moderate, 3 poor)",
	})

	m.QualityChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diarization_quality_changes_total",
		Help: "Total number of quality band transitions",
	}, []string{"to"}) // to: good, moderate, poor

	m.FallbackEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diarization_fallback_entries_total",
		Help: "Total number of times fallback mode was engaged",
	})

	m.FallbackActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diarization_fallback_active",
		Help: "Whether single speaker fallback mode is engaged (1) or not (0)",
	})

	m.Confidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "diarization_assignment_confidence",
		Help:    "Confidence of speaker assignments",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	return nil
}

// RecordAssignment records a speaker assignment with its confidence.
func (m *DiarizationMetrics) RecordAssignment(speaker string, confidence float64) {
	m.Assignments.WithLabelValues(speaker).Inc()
	m.Confidence.Observe(confidence)
}

// RecordSwitch records an automatic or manual speaker switch.
func (m *DiarizationMetrics) RecordSwitch(kind string) {
	m.SpeakerSwitches.WithLabelValues(kind).Inc()
}

// RecordManualOverride records a manual override operation.
func (m *DiarizationMetrics) RecordManualOverride(operation string) {
	m.ManualOverrides.WithLabelValues(operation).Inc()
}

// UpdateErrorRate sets the rolling error rate gauge.
func (m *DiarizationMetrics) UpdateErrorRate(rate float64) {
	m.ErrorRate.Set(rate)
}

// UpdateSwapAccuracy sets the rolling swap accuracy gauge.
func (m *DiarizationMetrics) UpdateSwapAccuracy(accuracy float64) {
	m.SwapAccuracy.Set(accuracy)
}

// RecordQualityChange records a quality band transition.
func (m *DiarizationMetrics) RecordQualityChange(to string, level int) {
	m.QualityChanges.WithLabelValues(to).Inc()
	m.QualityLevel.Set(float64(level))
}

// UpdateFallback records fallback mode state changes.
func (m *DiarizationMetrics) UpdateFallback(engaged bool) {
	if engaged {
		m.FallbackEntries.Inc()
		m.FallbackActive.Set(1)
	} else {
		m.FallbackActive.Set(0)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *DiarizationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Assignments.Collect(ch)
	m.SpeakerSwitches.Collect(ch)
	m.ManualOverrides.Collect(ch)
	ch <- m.ErrorRate
	ch <- m.SwapAccuracy
	ch <- m.QualityLevel
	m.QualityChanges.Collect(ch)
	ch <- m.FallbackEntries
	ch <- m.FallbackActive
	ch <- m.Confidence
}

// Describe implements the prometheus.Collector interface.
func (m *DiarizationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Assignments.Describe(ch)
	m.SpeakerSwitches.Describe(ch)
	m.ManualOverrides.Describe(ch)
	ch <- m.ErrorRate.Desc()
	ch <- m.SwapAccuracy.Desc()
	ch <- m.QualityLevel.Desc()
	m.QualityChanges.Describe(ch)
	ch <- m.FallbackEntries.Desc()
	ch <- m.FallbackActive.Desc()
	ch <- m.Confidence.Desc()
}
