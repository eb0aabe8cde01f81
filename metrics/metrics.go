// Package metrics exposes a Prometheus-backed Metrics type used to observe
// a running Mesher node: chunk processing outcomes, transport activity, and
// the hardware acceleration available to the underlying crypto primitives.
//
// Per the oracle-avoidance principle the mesher core follows, chunk metrics
// carry only a coarse "stage" label (verify, decrypt, deserialize) — never a
// scheme, URL, or anything derived from chunk content.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/cpu"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Metrics holds every metric a Mesher node emits.
type Metrics struct {
	chunksProcessed      prometheus.Counter
	chunksDropped        *prometheus.CounterVec
	packetsParsed        prometheus.Counter
	packetsSent          *prometheus.CounterVec
	packetsReceived      *prometheus.CounterVec
	transportSendErrors  *prometheus.CounterVec
	replyBlocksActive    prometheus.Gauge
	hardwareAcceleration *prometheus.GaugeVec
	goroutines           prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry creates a Metrics instance against a caller-supplied
// registry, so tests can avoid collisions with the global default registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		chunksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mesher_chunks_processed_total",
			Help: "Total number of chunks successfully decrypted and classified.",
		}),
		chunksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mesher_chunks_dropped_total",
			Help: "Total number of chunks dropped during parsing, by stage.",
		}, []string{"stage"}),
		packetsParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mesher_packets_parsed_total",
			Help: "Total number of packets handed to the parser.",
		}),
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mesher_packets_sent_total",
			Help: "Total number of packets sent, by transport scheme.",
		}, []string{"scheme"}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mesher_packets_received_total",
			Help: "Total number of packets received, by transport scheme.",
		}, []string{"scheme"}),
		transportSendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mesher_transport_send_errors_total",
			Help: "Total number of packet send failures, by transport scheme.",
		}, []string{"scheme"}),
		replyBlocksActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mesher_reply_blocks_active",
			Help: "Number of distinct reply blocks made available by the most recent Receive call.",
		}),
		hardwareAcceleration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mesher_hardware_acceleration_enabled",
			Help: "Hardware acceleration availability for the crypto primitives in use (1=enabled, 0=disabled).",
		}, []string{"type"}),
		goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mesher_goroutines",
			Help: "Number of goroutines, sampled on demand.",
		}),
	}
}

// RecordChunkProcessed implements packet.MetricsSink.
func (m *Metrics) RecordChunkProcessed() {
	m.chunksProcessed.Inc()
}

// RecordChunkDropped implements packet.MetricsSink. stage is one of
// "verify", "decrypt", or "deserialize" and carries no other detail about
// the dropped chunk.
func (m *Metrics) RecordChunkDropped(stage string) {
	m.chunksDropped.WithLabelValues(stage).Inc()
}

// RecordPacketParsed records that a packet was handed to the parser,
// regardless of how many chunks inside it were ultimately kept or dropped.
func (m *Metrics) RecordPacketParsed() {
	m.packetsParsed.Inc()
}

// RecordPacketSent records a successful Transport.Send for scheme.
func (m *Metrics) RecordPacketSent(scheme string) {
	m.packetsSent.WithLabelValues(scheme).Inc()
}

// RecordPacketReceived records a packet delivered by a Transport for scheme.
func (m *Metrics) RecordPacketReceived(scheme string) {
	m.packetsReceived.WithLabelValues(scheme).Inc()
}

// RecordTransportSendError records a Transport.Send failure for scheme.
func (m *Metrics) RecordTransportSendError(scheme string) {
	m.transportSendErrors.WithLabelValues(scheme).Inc()
}

// SetReplyBlocksActive sets the current count of distinct reply blocks a
// Receive call just handed back to the caller.
func (m *Metrics) SetReplyBlocksActive(n int) {
	m.replyBlocksActive.Set(float64(n))
}

// SetHardwareAccelerationStatus sets the hardware acceleration gauge for
// a named primitive (e.g. "aes", "x25519").
func (m *Metrics) SetHardwareAccelerationStatus(accelType string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.hardwareAcceleration.WithLabelValues(accelType).Set(val)
}

// UpdateGoroutineCount samples runtime.NumGoroutine into the goroutines gauge.
func (m *Metrics) UpdateGoroutineCount() {
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns promhttp.Handler(), which serves the default Prometheus
// registry in the exposition format. Metrics registered on a registry
// passed to NewMetricsWithRegistry are not served by it.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// HasAESHardwareSupport reports whether the current CPU exposes AES
// acceleration. crypto/nacl/box itself is X25519/XSalsa20-Poly1305-based
// and has no AES-NI fast path, but node operators running other ciphers
// alongside the mesher (e.g. a Transport's own TLS termination) care about
// this, so it is surfaced the same way the crypto package it was grounded on
// surfaces it.
func HasAESHardwareSupport() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}
