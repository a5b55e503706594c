package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meeting_gateway_active_sessions",
		Help: "Number of active transcription sessions",
	})

	totalSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_gateway_sessions_total",
		Help: "Total number of sessions started",
	}, []string{"source"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meeting_gateway_session_duration_seconds",
		Help:    "Duration of transcription sessions in seconds",
		Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200},
	})

	// Transcript metrics
	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_gateway_segments_total",
		Help: "Total transcript segments emitted",
	}, []string{"source"})

	// Subscriber metrics
	activeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meeting_gateway_active_subscribers",
		Help: "Number of live subscriber connections",
	})

	broadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meeting_gateway_broadcast_failures_total",
		Help: "Total subscriber deliveries that failed",
	})

	// Automation metrics
	automationForwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_gateway_automation_forwards_total",
		Help: "Total segment forwards to the automation workflow",
	}, []string{"status"})

	// Connector metrics
	connectorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meeting_gateway_connector_state",
		Help: "Connector state per session (0=idle, 1=connecting, 2=streaming, 3=reconnecting, 4=polling, 5=error, 6=closed)",
	}, []string{"session_id"})

	// Inbound webhook metrics
	webhookVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_gateway_webhook_verifications_total",
		Help: "Inbound webhook signature verification results",
	}, []string{"result"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// SessionMetrics tracks metrics for a single session.
type SessionMetrics struct {
	sessionID string
	startTime time.Time
}

// NewSessionMetrics creates a metrics tracker for one session.
func NewSessionMetrics(sessionID, source string) *SessionMetrics {
	activeSessions.Inc()
	totalSessions.WithLabelValues(source).Inc()
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionEnd records the end of a session.
func (m *SessionMetrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
	connectorState.DeleteLabelValues(m.sessionID)
}

// RecordSegment records one emitted segment.
func (m *SessionMetrics) RecordSegment(source string) {
	segmentsTotal.WithLabelValues(source).Inc()
}

// RecordConnectorState updates the connector state gauge.
func (m *SessionMetrics) RecordConnectorState(state int) {
	connectorState.WithLabelValues(m.sessionID).Set(float64(state))
}

// RecordForward records one forward to the automation workflow.
func (m *SessionMetrics) RecordForward(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	automationForwards.WithLabelValues(status).Inc()
}

// RecordError records an error.
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// SubscriberAdded records a new live subscriber connection.
func SubscriberAdded() {
	activeSubscribers.Inc()
}

// SubscriberRemoved records a closed subscriber connection.
func SubscriberRemoved() {
	activeSubscribers.Dec()
}

// RecordBroadcastFailure records one failed subscriber delivery.
func RecordBroadcastFailure() {
	broadcastFailures.Inc()
}

// RecordWebhookVerification records an inbound signature check result.
func RecordWebhookVerification(result string) {
	webhookVerifications.WithLabelValues(result).Inc()
}
