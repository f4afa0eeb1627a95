package zframe

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Direction names one side-to-side flow through a relay.
type Direction string

const (
	// DirectionFrontendToBackend is ROUTER to DEALER for a Broker and
	// XSUB to XPUB for an XPubSubProxy.
	DirectionFrontendToBackend Direction = "frontend_to_backend"
	// DirectionBackendToFrontend is DEALER to ROUTER. Proxies never use it.
	DirectionBackendToFrontend Direction = "backend_to_frontend"
)

// DirectionSnapshot holds the counters of one relay direction.
type DirectionSnapshot struct {
	Units           int   `json:"units"`
	Frames          int   `json:"frames"`
	Bytes           int64 `json:"bytes"`
	SendFailures    int   `json:"send_failures"`
	ReceiveFailures int   `json:"receive_failures"`
}

// RelayMetricsSnapshot represents a point-in-time snapshot of relay metrics
type RelayMetricsSnapshot struct {
	Relay string `json:"relay"`

	Forward  DirectionSnapshot `json:"frontend_to_backend"`
	Backward DirectionSnapshot `json:"backend_to_frontend"`

	// Loop
	Iterations int `json:"iterations"`
	MaxBatch   int `json:"max_batch"`

	// Per-unit relay latency (milliseconds)
	LatencyAvgMs float64 `json:"latency_avg_ms"`
	LatencyP50Ms float64 `json:"latency_p50_ms"`
	LatencyP95Ms float64 `json:"latency_p95_ms"`
	LatencyP99Ms float64 `json:"latency_p99_ms"`
	LatencyMinMs float64 `json:"latency_min_ms"`
	LatencyMaxMs float64 `json:"latency_max_ms"`

	Timestamp time.Time `json:"timestamp"`
}

// RelayMetrics is a thread-safe traffic collector for a Broker or
// XPubSubProxy. It also implements prometheus.Collector.
type RelayMetrics struct {
	mu sync.RWMutex

	relay             string
	maxLatencySamples int
	descs             relayDescs

	forward  DirectionSnapshot
	backward DirectionSnapshot

	iterations int
	maxBatch   int

	// latency samples (circular buffer via slice)
	latencies []float64
}

// NewRelayMetrics creates a collector labelled with relay. A non-positive
// maxLatencySamples keeps the last 1000 samples.
func NewRelayMetrics(relay string, maxLatencySamples int) *RelayMetrics {
	if maxLatencySamples <= 0 {
		maxLatencySamples = 1000
	}
	return &RelayMetrics{
		relay:             relay,
		maxLatencySamples: maxLatencySamples,
		descs:             newRelayDescs(relay),
		latencies:         make([]float64, 0, maxLatencySamples),
	}
}

// Relay returns the relay label.
func (m *RelayMetrics) Relay() string {
	return m.relay
}

func (m *RelayMetrics) direction(dir Direction) *DirectionSnapshot {
	if dir == DirectionBackendToFrontend {
		return &m.backward
	}
	return &m.forward
}

// RecordUnit records one forwarded unit.
func (m *RelayMetrics) RecordUnit(dir Direction, frames, bytes int, latency time.Duration) {
	latencyMs := float64(latency.Microseconds()) / 1000

	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.direction(dir)
	d.Units++
	d.Frames += frames
	d.Bytes += int64(bytes)

	if len(m.latencies) >= m.maxLatencySamples {
		m.latencies = m.latencies[1:]
	}
	m.latencies = append(m.latencies, latencyMs)
}

// RecordSendFailure records a unit that was received but not forwarded.
func (m *RelayMetrics) RecordSendFailure(dir Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direction(dir).SendFailures++
}

// RecordReceiveFailure records a failed receive.
func (m *RelayMetrics) RecordReceiveFailure(dir Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direction(dir).ReceiveFailures++
}

// RecordIteration records one relay loop pass that moved batch units.
func (m *RelayMetrics) RecordIteration(batch int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.iterations++
	if batch > m.maxBatch {
		m.maxBatch = batch
	}
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *RelayMetrics) Snapshot() RelayMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := RelayMetricsSnapshot{
		Relay:      m.relay,
		Forward:    m.forward,
		Backward:   m.backward,
		Iterations: m.iterations,
		MaxBatch:   m.maxBatch,
		Timestamp:  time.Now(),
	}

	if len(m.latencies) > 0 {
		latencies := make([]float64, len(m.latencies))
		copy(latencies, m.latencies)
		sort.Float64s(latencies)

		n := len(latencies)
		snapshot.LatencyMinMs = latencies[0]
		snapshot.LatencyMaxMs = latencies[n-1]

		sum := 0.0
		for _, v := range latencies {
			sum += v
		}
		snapshot.LatencyAvgMs = sum / float64(n)

		snapshot.LatencyP50Ms = latencies[n*50/100]
		snapshot.LatencyP95Ms = latencies[n*95/100]
		snapshot.LatencyP99Ms = latencies[n*99/100]
	}

	return snapshot
}

// Reset resets all metrics
func (m *RelayMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.forward = DirectionSnapshot{}
	m.backward = DirectionSnapshot{}
	m.iterations = 0
	m.maxBatch = 0
	m.latencies = make([]float64, 0, m.maxLatencySamples)
}

// relayDescs carries the relay name as a const label so several relays can
// share one prometheus.Registry.
type relayDescs struct {
	units, frames, bytes, sendFailures, receiveFailures *prometheus.Desc
	iterations, latency                                 *prometheus.Desc
}

func newRelayDescs(relay string) relayDescs {
	labels := prometheus.Labels{"relay": relay}
	dir := []string{"direction"}
	return relayDescs{
		units:           prometheus.NewDesc("zframe_relay_units_total", "Units forwarded by the relay.", dir, labels),
		frames:          prometheus.NewDesc("zframe_relay_frames_total", "Frames forwarded by the relay.", dir, labels),
		bytes:           prometheus.NewDesc("zframe_relay_bytes_total", "Payload bytes forwarded by the relay.", dir, labels),
		sendFailures:    prometheus.NewDesc("zframe_relay_send_failures_total", "Units received but not forwarded.", dir, labels),
		receiveFailures: prometheus.NewDesc("zframe_relay_receive_failures_total", "Failed receives on the relay.", dir, labels),
		iterations:      prometheus.NewDesc("zframe_relay_loop_iterations_total", "Relay loop passes.", nil, labels),
		latency:         prometheus.NewDesc("zframe_relay_latency_p99_seconds", "99th percentile per-unit relay latency over the sample window.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (m *RelayMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.descs.units
	ch <- m.descs.frames
	ch <- m.descs.bytes
	ch <- m.descs.sendFailures
	ch <- m.descs.receiveFailures
	ch <- m.descs.iterations
	ch <- m.descs.latency
}

// Collect implements prometheus.Collector.
func (m *RelayMetrics) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()

	for _, d := range []struct {
		dir  Direction
		snap DirectionSnapshot
	}{
		{DirectionFrontendToBackend, s.Forward},
		{DirectionBackendToFrontend, s.Backward},
	} {
		dir := string(d.dir)
		ch <- prometheus.MustNewConstMetric(m.descs.units, prometheus.CounterValue, float64(d.snap.Units), dir)
		ch <- prometheus.MustNewConstMetric(m.descs.frames, prometheus.CounterValue, float64(d.snap.Frames), dir)
		ch <- prometheus.MustNewConstMetric(m.descs.bytes, prometheus.CounterValue, float64(d.snap.Bytes), dir)
		ch <- prometheus.MustNewConstMetric(m.descs.sendFailures, prometheus.CounterValue, float64(d.snap.SendFailures), dir)
		ch <- prometheus.MustNewConstMetric(m.descs.receiveFailures, prometheus.CounterValue, float64(d.snap.ReceiveFailures), dir)
	}
	ch <- prometheus.MustNewConstMetric(m.descs.iterations, prometheus.CounterValue, float64(s.Iterations))
	ch <- prometheus.MustNewConstMetric(m.descs.latency, prometheus.GaugeValue, s.LatencyP99Ms/1000)
}

var _ prometheus.Collector = (*RelayMetrics)(nil)
