package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the coach client and backend.
// Each instance owns its registry so several can coexist in one process.
// The Record methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	RecordingsStarted  prometheus.Counter
	RecordingsFinished prometheus.Counter
	RecordingsEmpty    prometheus.Counter
	DeviceErrors       prometheus.Counter
	FramesCaptured     prometheus.Counter
	FramesDropped      prometheus.Counter
	RecordingDuration  prometheus.Histogram
	RecordingSize      prometheus.Histogram

	// Client-side exchange metrics
	ExchangeRequests *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec

	// Feedback flow metrics
	FeedbackOutcomes *prometheus.CounterVec
	FeedbackChoices  *prometheus.CounterVec

	// Backend metrics
	Recognitions        *prometheus.CounterVec
	RecognitionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates a registry and registers all metrics on it
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "coach_recordings_started_total",
			Help: "Total number of capture sessions started",
		}),
		RecordingsFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "coach_recordings_finished_total",
			Help: "Total number of capture sessions that produced a WAV file",
		}),
		RecordingsEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "coach_recordings_empty_total",
			Help: "Total number of capture sessions stopped before any frame arrived",
		}),
		DeviceErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "coach_device_errors_total",
			Help: "Total number of failures to acquire the audio input device",
		}),
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "coach_frames_captured_total",
			Help: "Total number of audio frames appended to a capture buffer",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "coach_frames_dropped_total",
			Help: "Total number of audio frames ignored because a stop was requested",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coach_recording_duration_seconds",
			Help:    "Duration of captured audio in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		}),
		RecordingSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coach_recording_size_bytes",
			Help:    "Size of encoded WAV files in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10), // 16KB to ~8MB
		}),

		ExchangeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_exchange_requests_total",
			Help: "Total number of backend exchanges issued by the client",
		}, []string{"exchange", "outcome"}),
		ExchangeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coach_exchange_duration_seconds",
			Help:    "Duration of backend exchanges issued by the client",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"exchange"}),

		FeedbackOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_feedback_outcomes_total",
			Help: "Total number of transcription results reaching a terminal stage",
		}, []string{"stage"}),
		FeedbackChoices: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_feedback_choices_total",
			Help: "Total number of options chosen by the user",
		}, []string{"option"}),

		Recognitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_recognitions_total",
			Help: "Total number of recognition attempts made by the backend",
		}, []string{"result"}),
		RecognitionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coach_recognition_duration_seconds",
			Help:    "Duration of speech recognition calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coach_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRecordingStarted increments the capture sessions counter
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordRecordingFinished records a capture session that produced audio
func (m *Metrics) RecordRecordingFinished(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.RecordingsFinished.Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.RecordingSize.Observe(float64(sizeBytes))
}

// RecordRecordingEmpty records a capture session that held no frames
func (m *Metrics) RecordRecordingEmpty() {
	if m == nil {
		return
	}
	m.RecordingsEmpty.Inc()
}

// RecordDeviceError increments the device error counter
func (m *Metrics) RecordDeviceError() {
	if m == nil {
		return
	}
	m.DeviceErrors.Inc()
}

// RecordFrame counts a frame as captured or dropped
func (m *Metrics) RecordFrame(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.FramesCaptured.Inc()
	} else {
		m.FramesDropped.Inc()
	}
}

// RecordExchange records one client exchange with the backend
func (m *Metrics) RecordExchange(exchange, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ExchangeRequests.WithLabelValues(exchange, outcome).Inc()
	m.ExchangeDuration.WithLabelValues(exchange).Observe(durationSeconds)
}

// RecordFeedbackOutcome records a result reaching a terminal stage
func (m *Metrics) RecordFeedbackOutcome(stage string) {
	if m == nil {
		return
	}
	m.FeedbackOutcomes.WithLabelValues(stage).Inc()
}

// RecordFeedbackChoice records an option chosen by the user
func (m *Metrics) RecordFeedbackChoice(option string) {
	if m == nil {
		return
	}
	m.FeedbackChoices.WithLabelValues(option).Inc()
}

// RecordRecognition records a backend recognition attempt
func (m *Metrics) RecordRecognition(result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Recognitions.WithLabelValues(result).Inc()
	m.RecognitionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
