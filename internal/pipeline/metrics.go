package pipeline

import (
	"errors"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	filesTotal       *prometheus.CounterVec
	fileDuration     prometheus.Histogram
	batchesTotal     *prometheus.CounterVec
	batchDuration    prometheus.Histogram
	stageOutcomes    *prometheus.CounterVec
	activeFiles      prometheus.Gauge
	historyFailures  prometheus.Counter
	pixelsProcessed  prometheus.Counter
	outputBytesTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbatch_files_total",
			Help: "Total files processed by final status.",
		}, []string{"status"}),
		fileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelbatch_file_duration_seconds",
			Help:    "Processing duration for a single file.",
			Buckets: prometheus.DefBuckets,
		}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbatch_batches_total",
			Help: "Total batches by outcome.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelbatch_batch_duration_seconds",
			Help:    "Processing duration for a whole batch including the archive.",
			Buckets: prometheus.DefBuckets,
		}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbatch_stage_outcomes_total",
			Help: "Transform stage outcomes by stage and status.",
		}, []string{"stage", "status"}),
		activeFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelbatch_active_files",
			Help: "Files currently being processed.",
		}),
		historyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelbatch_history_write_failures_total",
			Help: "History records that could not be persisted.",
		}),
		pixelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelbatch_pixels_processed_total",
			Help: "Total output pixels produced by successful files.",
		}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelbatch_output_bytes_total",
			Help: "Total encoded output bytes written.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.filesTotal,
			m.fileDuration,
			m.batchesTotal,
			m.batchDuration,
			m.stageOutcomes,
			m.activeFiles,
			m.historyFailures,
			m.pixelsProcessed,
			m.outputBytesTotal,
		)
	}
	return m
}

func (m *Metrics) fileStarted() {
	if m == nil {
		return
	}
	m.activeFiles.Inc()
}

func (m *Metrics) fileFinished(res Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeFiles.Dec()
	m.filesTotal.WithLabelValues(statusLabel(res.Err)).Inc()
	m.fileDuration.Observe(elapsed.Seconds())
	for _, stage := range res.Stages {
		m.stageOutcomes.WithLabelValues(stage.Stage, string(stage.Status)).Inc()
	}
	if res.Success() {
		m.pixelsProcessed.Add(float64(res.Width * res.Height))
		m.outputBytesTotal.Add(float64(res.Bytes))
	}
}

func (m *Metrics) batchFinished(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "completed"
	if err != nil {
		status = "rejected"
	}
	m.batchesTotal.WithLabelValues(status).Inc()
	m.batchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) historyFailed() {
	if m == nil {
		return
	}
	m.historyFailures.Inc()
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, domain.ErrUnreadableImage):
		return "unreadable"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "failed"
	}
}

