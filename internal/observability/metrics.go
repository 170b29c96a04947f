package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerelay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgerelay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerelay",
			Subsystem: "packets",
			Name:      "sent_total",
			Help:      "Packets committed for relay.",
		},
		[]string{"chain", "channel"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerelay",
			Subsystem: "packets",
			Name:      "received_total",
			Help:      "Packets delivered to a contract, by acknowledgement outcome.",
		},
		[]string{"chain", "channel", "outcome"},
	)
	acksHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerelay",
			Subsystem: "packets",
			Name:      "acks_total",
			Help:      "Acknowledgements delivered back to the sending contract.",
		},
		[]string{"chain", "channel", "outcome"},
	)
	timeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerelay",
			Subsystem: "packets",
			Name:      "timeouts_total",
			Help:      "Packets that expired before delivery.",
		},
		[]string{"chain", "channel"},
	)
	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerelay",
			Subsystem: "replies",
			Name:      "routed_total",
			Help:      "Sub-call completions routed to a reply handler.",
		},
		[]string{"chain", "contract", "success"},
	)
	relayRounds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgerelay",
			Subsystem: "relayer",
			Name:      "round_duration_seconds",
			Help:      "Duration of one relay round across a link.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"link"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			packetsSent, packetsReceived, acksHandled, timeouts,
			replies, relayRounds,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacketSent(chain, channel string) {
	RegisterMetrics()
	packetsSent.WithLabelValues(chain, channel).Inc()
}

// RecordPacketReceived outcome is one of success, error or pending.
func RecordPacketReceived(chain, channel, outcome string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(chain, channel, outcome).Inc()
}

func RecordAck(chain, channel, outcome string) {
	RegisterMetrics()
	acksHandled.WithLabelValues(chain, channel, outcome).Inc()
}

func RecordTimeout(chain, channel string) {
	RegisterMetrics()
	timeouts.WithLabelValues(chain, channel).Inc()
}

func RecordReply(chain, contract string, success bool) {
	RegisterMetrics()
	replies.WithLabelValues(chain, contract, strconv.FormatBool(success)).Inc()
}

func RecordRelayRound(link string, duration time.Duration) {
	RegisterMetrics()
	relayRounds.WithLabelValues(link).Observe(duration.Seconds())
}
