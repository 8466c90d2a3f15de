// Package metrics implements the daemon's Prometheus metric collector.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "rfc5444d"
	subsystem = "codec"
)

// Label names.
const (
	labelInterface = "interface"
	labelReason    = "reason"
	labelMsgType   = "msg_type"
	labelResult    = "result"
	labelProtocol  = "protocol"
)

// -------------------------------------------------------------------------
// Collector — Prometheus RFC 5444 Metrics
// -------------------------------------------------------------------------

// Collector holds all RFC 5444 codec and distribution Prometheus metrics.
//
//   - Packet counters track rx/tx/drop volume per interface.
//   - Message counters track processed/forwarded/dropped volume per
//     message type, for alerting on unexpectedly high forwarding load.
//   - DuplicateDecisions exposes the sliding-window classifier's verdict
//     distribution, the primary signal for tuning hold-time/vtime.
//   - Targets is a gauge of currently active send targets per
//     protocol/interface.
type Collector struct {
	// PacketsReceived counts packets successfully decoded off the wire,
	// per interface.
	PacketsReceived *prometheus.CounterVec

	// PacketsSent counts packets successfully handed to a Sender, per
	// interface.
	PacketsSent *prometheus.CounterVec

	// PacketsDropped counts packets rejected before or during decode
	// (bad version, truncated, TLV overflow), per interface and reason.
	PacketsDropped *prometheus.CounterVec

	// MessagesProcessed counts messages decoded from received packets,
	// per message type.
	MessagesProcessed *prometheus.CounterVec

	// MessagesForwarded counts messages re-flooded by ShouldForward/
	// PrepareForward, per message type.
	MessagesForwarded *prometheus.CounterVec

	// MessagesDropped counts messages that could not be prepared or
	// enqueued for forwarding, per message type.
	MessagesDropped *prometheus.CounterVec

	// DuplicateDecisions counts each DupResult verdict returned by a
	// DuplicateSet, per message type and result.
	DuplicateDecisions *prometheus.CounterVec

	// Targets tracks the number of currently active send targets, per
	// protocol and interface.
	Targets *prometheus.GaugeVec
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PacketsReceived,
		c.PacketsSent,
		c.PacketsDropped,
		c.MessagesProcessed,
		c.MessagesForwarded,
		c.MessagesDropped,
		c.DuplicateDecisions,
		c.Targets,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	ifaceLabels := []string{labelInterface}
	ifaceReasonLabels := []string{labelInterface, labelReason}
	msgTypeLabels := []string{labelMsgType}
	dupLabels := []string{labelMsgType, labelResult}
	targetLabels := []string{labelProtocol, labelInterface}

	return &Collector{
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total RFC 5444 packets successfully decoded off the wire.",
		}, ifaceLabels),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total RFC 5444 packets handed to a Sender for transmission.",
		}, ifaceLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total RFC 5444 packets dropped before or during decode.",
		}, ifaceReasonLabels),

		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_processed_total",
			Help:      "Total messages decoded from received packets.",
		}, msgTypeLabels),

		MessagesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_forwarded_total",
			Help:      "Total messages re-flooded via ShouldForward/PrepareForward.",
		}, msgTypeLabels),

		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Total messages that could not be prepared or enqueued for forwarding.",
		}, msgTypeLabels),

		DuplicateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duplicate_decisions_total",
			Help:      "Total duplicate-set classification verdicts, by message type and result.",
		}, dupLabels),

		Targets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "targets",
			Help:      "Number of currently active send targets.",
		}, targetLabels),
	}
}

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsReceived increments the received packets counter for iface.
func (c *Collector) IncPacketsReceived(iface string) {
	c.PacketsReceived.WithLabelValues(iface).Inc()
}

// IncPacketsSent increments the transmitted packets counter for iface.
func (c *Collector) IncPacketsSent(iface string) {
	c.PacketsSent.WithLabelValues(iface).Inc()
}

// IncPacketsDropped increments the dropped packets counter for iface
// with the given reason (e.g. "bad_version", "truncated", "tlv_overflow").
func (c *Collector) IncPacketsDropped(iface, reason string) {
	c.PacketsDropped.WithLabelValues(iface, reason).Inc()
}

// -------------------------------------------------------------------------
// Message Counters
// -------------------------------------------------------------------------

// IncMessagesProcessed increments the processed messages counter for msgType.
func (c *Collector) IncMessagesProcessed(msgType uint8) {
	c.MessagesProcessed.WithLabelValues(msgTypeLabel(msgType)).Inc()
}

// IncMessagesForwarded increments the forwarded messages counter for msgType.
func (c *Collector) IncMessagesForwarded(msgType uint8) {
	c.MessagesForwarded.WithLabelValues(msgTypeLabel(msgType)).Inc()
}

// IncMessagesDropped increments the dropped messages counter for msgType.
func (c *Collector) IncMessagesDropped(msgType uint8) {
	c.MessagesDropped.WithLabelValues(msgTypeLabel(msgType)).Inc()
}

// -------------------------------------------------------------------------
// Duplicate Set
// -------------------------------------------------------------------------

// RecordDuplicateDecision increments the duplicate-decision counter for
// msgType with the given result label (e.g. "newest", "new", "current",
// "duplicate", "too_old").
func (c *Collector) RecordDuplicateDecision(msgType uint8, result string) {
	c.DuplicateDecisions.WithLabelValues(msgTypeLabel(msgType), result).Inc()
}

// -------------------------------------------------------------------------
// Targets
// -------------------------------------------------------------------------

// SetTargets sets the active target gauge for protocol/iface.
func (c *Collector) SetTargets(protocol, iface string, count int) {
	c.Targets.WithLabelValues(protocol, iface).Set(float64(count))
}

func msgTypeLabel(msgType uint8) string {
	return strconv.FormatUint(uint64(msgType), 10)
}
