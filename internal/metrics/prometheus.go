package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter
	SessionDuration prometheus.Histogram

	// Upload metrics
	Uploads    *prometheus.CounterVec
	UploadSize prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter
	StaleResults           prometheus.Counter
	SpeakersDetected       prometheus.Histogram

	// Transcript editing and export
	SpeakerUpdates prometheus.Counter
	Exports        *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "transcribe_active_sessions",
			Help: "Current number of live workflow sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_sessions_expired_total",
			Help: "Total number of sessions removed for inactivity",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_session_duration_seconds",
			Help:    "Lifetime of sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10s to ~11 hours
		}),

		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribe_uploads_total",
			Help: "Upload attempts by outcome",
		}, []string{"outcome"}),
		UploadSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_upload_size_bytes",
			Help:    "Size of accepted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KB to ~256MB
		}),

		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_transcription_requests_total",
			Help: "Total number of transcriptions started",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_transcription_failures_total",
			Help: "Total number of failed transcriptions",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17 minutes
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_transcription_retries_total",
			Help: "Total number of provider request retries",
		}),
		StaleResults: f.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_stale_results_total",
			Help: "Transcription results discarded because a newer generation superseded them",
		}),
		SpeakersDetected: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_speakers_detected",
			Help:    "Number of speakers per completed transcription",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),

		SpeakerUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_speaker_updates_total",
			Help: "Total number of speaker profile edits",
		}),
		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribe_exports_total",
			Help: "Transcript exports by format",
		}, []string{"format"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribe_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionRemoved records the lifetime of a removed session
func (m *Metrics) RecordSessionRemoved(durationSeconds float64, expired bool) {
	if expired {
		m.SessionsExpired.Inc()
	}
	m.SessionDuration.Observe(durationSeconds)
}

// RecordUpload records an upload attempt; outcome is "ok", "failed" or "aborted"
func (m *Metrics) RecordUpload(outcome string, sizeBytes int64) {
	m.Uploads.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.UploadSize.Observe(float64(sizeBytes))
	}
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64, speakers int) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
	m.SpeakersDetected.Observe(float64(speakers))
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordStaleResult increments the discarded results counter
func (m *Metrics) RecordStaleResult() {
	m.StaleResults.Inc()
}

// RecordSpeakerUpdate increments the speaker edit counter
func (m *Metrics) RecordSpeakerUpdate() {
	m.SpeakerUpdates.Inc()
}

// RecordExport records a transcript export in format
func (m *Metrics) RecordExport(format string) {
	m.Exports.WithLabelValues(format).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
