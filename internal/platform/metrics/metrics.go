// Package metrics registers process-level gauges sampled from live components
// at scrape time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegisterProcessGauges exposes agent registry size and in-flight message
// count as gauges. The callbacks are invoked on every scrape and must be safe
// for concurrent use.
func RegisterProcessGauges(registeredAgents, pendingMessages func() int) {
	if registeredAgents != nil {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "trustplane_agents_registered",
			Help: "Number of evaluation agents currently registered",
		}, func() float64 { return float64(registeredAgents()) })
	}
	if pendingMessages != nil {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "trustplane_messages_in_flight",
			Help: "Number of agent messages awaiting acknowledgement",
		}, func() float64 { return float64(pendingMessages()) })
	}
}
