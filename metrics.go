package mqtt

import "time"

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics is the instrumentation interface the engine records into. The
// Prometheus adapter is the production implementation; the zero-value
// NoOpMetrics discards everything.
type Metrics interface {
	Counter(name string, labels MetricLabels) Counter
	Gauge(name string, labels MetricLabels) Gauge
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

// Histogram tracks the distribution of values.
type Histogram interface {
	Observe(value float64)
	ObserveDuration(d time.Duration)
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter { return &noOpCounter{} }

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge { return &noOpGauge{} }

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram { return &noOpHistogram{} }

type noOpCounter struct{}

func (n *noOpCounter) Inc()          {}
func (n *noOpCounter) Add(_ float64) {}

type noOpGauge struct{}

func (n *noOpGauge) Set(_ float64) {}
func (n *noOpGauge) Inc()          {}
func (n *noOpGauge) Dec()          {}

type noOpHistogram struct{}

func (n *noOpHistogram) Observe(_ float64)               {}
func (n *noOpHistogram) ObserveDuration(_ time.Duration) {}

// Standard metric names for the protocol engine.
const (
	MetricConnections      = "mqtt_connections"
	MetricConnectionsTotal = "mqtt_connections_total"
	MetricPacketsReceived  = "mqtt_packets_received_total"
	MetricPacketsSent      = "mqtt_packets_sent_total"
	MetricBytesReceived    = "mqtt_bytes_received_total"
	MetricBytesSent        = "mqtt_bytes_sent_total"
	MetricInFlight         = "mqtt_inflight_messages"
	MetricPublishLatency   = "mqtt_publish_latency_seconds"
	MetricProtocolErrors   = "mqtt_protocol_errors_total"
)

// Standard metric labels.
const (
	LabelPacketType = "packet_type"
	LabelQoS        = "qos"
	LabelVersion    = "version"
)

// EngineMetrics wraps a Metrics with helpers for what the dispatcher
// records.
type EngineMetrics struct {
	metrics Metrics
}

// NewEngineMetrics creates an EngineMetrics. A nil inner collector means
// no-op.
func NewEngineMetrics(m Metrics) *EngineMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &EngineMetrics{metrics: m}
}

// ConnectionOpened records a new connection.
func (e *EngineMetrics) ConnectionOpened() {
	e.metrics.Gauge(MetricConnections, nil).Inc()
	e.metrics.Counter(MetricConnectionsTotal, nil).Inc()
}

// ConnectionClosed records a closed connection.
func (e *EngineMetrics) ConnectionClosed() {
	e.metrics.Gauge(MetricConnections, nil).Dec()
}

// PacketReceived records an inbound packet and its size.
func (e *EngineMetrics) PacketReceived(t PacketType, bytes int) {
	labels := MetricLabels{LabelPacketType: t.String()}
	e.metrics.Counter(MetricPacketsReceived, labels).Inc()
	e.metrics.Counter(MetricBytesReceived, nil).Add(float64(bytes))
}

// PacketSent records an outbound packet and its size.
func (e *EngineMetrics) PacketSent(t PacketType, bytes int) {
	labels := MetricLabels{LabelPacketType: t.String()}
	e.metrics.Counter(MetricPacketsSent, labels).Inc()
	e.metrics.Counter(MetricBytesSent, nil).Add(float64(bytes))
}

// InFlightChanged records the current in-flight count.
func (e *EngineMetrics) InFlightChanged(count int) {
	e.metrics.Gauge(MetricInFlight, nil).Set(float64(count))
}

// PublishLatency records the time from PUBLISH to final acknowledgement.
func (e *EngineMetrics) PublishLatency(qos byte, d time.Duration) {
	labels := MetricLabels{LabelQoS: string(rune('0' + qos))}
	e.metrics.Histogram(MetricPublishLatency, labels).ObserveDuration(d)
}

// ProtocolError records a malformed packet or protocol violation.
func (e *EngineMetrics) ProtocolError() {
	e.metrics.Counter(MetricProtocolErrors, nil).Inc()
}
