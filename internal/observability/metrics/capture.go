// Package metrics provides custom Prometheus metrics for the ambientscribe
// capture and diarization components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics contains all Prometheus metrics related to audio capture.
type CaptureMetrics struct {
	BufferWrites      prometheus.Counter
	BufferWriteBytes  prometheus.Counter
	BufferWraparounds prometheus.Counter
	BufferPurges      *prometheus.CounterVec
	BufferUtilization prometheus.Gauge
	Underruns         prometheus.Counter
	Overruns          prometheus.Counter
	AutotuneProposals *prometheus.CounterVec
	ChunkSize         prometheus.Gauge
	FramesEmitted     prometheus.Counter
	FramesDropped     prometheus.Counter
	VADTransitions    *prometheus.CounterVec
	ReadInterval      prometheus.Histogram
	registry          *prometheus.Registry
}

// NewCaptureMetrics creates a new instance of CaptureMetrics and registers
// it with the given Prometheus registry.
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize capture metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for CaptureMetrics.
func (m *CaptureMetrics) initMetrics() error {
	m.BufferWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_buffer_writes_total",
		Help: "Total number of writes to the retention buffer",
	})

	m.BufferWriteBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_buffer_write_bytes_total",
		Help: "Total bytes written to the retention buffer",
	})

	m.BufferWraparounds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_buffer_wraparounds_total",
		Help: "Total number of retention buffer wraparounds",
	})

	m.BufferPurges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_buffer_purges_total",
		Help: "Total number of retention buffer purges",
	}, []string{"trigger"}) // trigger: manual, automatic-on-stop

	m.BufferUtilization = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capture_buffer_utilization_ratio",
		Help: "Fraction of the retention buffer currently holding audio",
	})

	m.Underruns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_underruns_total",
		Help: "Total number of detected read cycle underruns",
	})

	m.Overruns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_overruns_total",
		Help: "Total number of detected read cycle overruns",
	})

	m.AutotuneProposals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_autotune_proposals_total",
		Help: "Total number of chunk size adjustment proposals",
	}, []string{"reason"}) // reason: underrun, overrun

	m.ChunkSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capture_chunk_size_bytes",
		Help: "Capture read chunk size currently in effect",
	})

	m.FramesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_frames_emitted_total",
		Help: "Total number of VAD frames emitted to consumers",
	})

	m.FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_frames_dropped_total",
		Help: "Total number of VAD frames dropped due to slow consumers",
	})

	m.VADTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_vad_transitions_total",
		Help: "Total number of voice activity state transitions",
	}, []string{"to"}) // to: active, inactive

	m.ReadInterval = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "capture_read_interval_seconds",
		Help:    "Observed interval between capture reads",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	return nil
}

// RecordWrite records a retention buffer write of the given size.
func (m *CaptureMetrics) RecordWrite(bytes int) {
	m.BufferWrites.Inc()
	m.BufferWriteBytes.Add(float64(bytes))
}

// RecordWraparound increments the wraparound counter.
func (m *CaptureMetrics) RecordWraparound() {
	m.BufferWraparounds.Inc()
}

// RecordPurge records a retention buffer purge with the given trigger.
func (m *CaptureMetrics) RecordPurge(trigger string) {
	m.BufferPurges.WithLabelValues(trigger).Inc()
}

// UpdateUtilization sets the retention buffer utilization gauge.
func (m *CaptureMetrics) UpdateUtilization(ratio float64) {
	m.BufferUtilization.Set(ratio)
}

// RecordTimingAnomaly increments the underrun or overrun counter.
func (m *CaptureMetrics) RecordTimingAnomaly(reason string) {
	switch reason {
	case "underrun":
		m.Underruns.Inc()
	case "overrun":
		m.Overruns.Inc()
	}
}

// RecordAutotuneProposal records a chunk size proposal and its reason.
func (m *CaptureMetrics) RecordAutotuneProposal(reason string, newChunkBytes int) {
	m.AutotuneProposals.WithLabelValues(reason).Inc()
	m.ChunkSize.Set(float64(newChunkBytes))
}

// RecordFrame records an emitted frame, or a dropped one.
func (m *CaptureMetrics) RecordFrame(dropped bool) {
	if dropped {
		m.FramesDropped.Inc()
	} else {
		m.FramesEmitted.Inc()
	}
}

// RecordVADTransition records a VAD state change.
func (m *CaptureMetrics) RecordVADTransition(active bool) {
	if active {
		m.VADTransitions.WithLabelValues("active").Inc()
	} else {
		m.VADTransitions.WithLabelValues("inactive").Inc()
	}
}

// ObserveReadInterval records the observed interval between capture reads.
func (m *CaptureMetrics) ObserveReadInterval(seconds float64) {
	m.ReadInterval.Observe(seconds)
}

// Collect implements the prometheus.Collector interface.
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.BufferWrites
	ch <- m.BufferWriteBytes
	ch <- m.BufferWraparounds
	m.BufferPurges.Collect(ch)
	ch <- m.BufferUtilization
	ch <- m.Underruns
	ch <- m.Overruns
	m.AutotuneProposals.Collect(ch)
	ch <- m.ChunkSize
	ch <- m.FramesEmitted
	ch <- m.FramesDropped
	m.VADTransitions.Collect(ch)
	ch <- m.ReadInterval
}

// Describe implements the prometheus.Collector interface.
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.BufferWrites.Desc()
	ch <- m.BufferWriteBytes.Desc()
	ch <- m.BufferWraparounds.Desc()
	m.BufferPurges.Describe(ch)
	ch <- m.BufferUtilization.Desc()
	ch <- m.Underruns.Desc()
	ch <- m.Overruns.Desc()
	m.AutotuneProposals.Describe(ch)
	ch <- m.ChunkSize.Desc()
	ch <- m.FramesEmitted.Desc()
	ch <- m.FramesDropped.Desc()
	m.VADTransitions.Describe(ch)
	ch <- m.ReadInterval.Desc()
}
