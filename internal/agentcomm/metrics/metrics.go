package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the agent communicator.
type Metrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	RepliesDropped   prometheus.Counter
	PendingExpired   prometheus.Counter
	SendDuration     prometheus.Histogram
}

// New creates and registers communicator metrics.
func New() *Metrics {
	return &Metrics{
		MessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustplane_agent_messages_sent_total",
			Help: "Agent messages sent, by channel and message type",
		}, []string{"channel", "type"}),
		MessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustplane_agent_messages_received_total",
			Help: "Agent messages received, by message type",
		}, []string{"type"}),
		RepliesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustplane_agent_replies_dropped_total",
			Help: "Correlated replies dropped because no waiter was registered or its slot was full",
		}),
		PendingExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustplane_agent_pending_expired_total",
			Help: "Pending acknowledged messages removed by the TTL sweep",
		}),
		SendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustplane_agent_send_duration_seconds",
			Help:    "Latency of channel sends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}
