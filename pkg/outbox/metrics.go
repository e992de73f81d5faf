package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueued   *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	dead       *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	queue      *prometheus.GaugeVec
	leader     *prometheus.GaugeVec
}

var getMetrics = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talent",
			Subsystem: "outbox",
			Name:      "enqueued_total",
			Help:      "Events written to the outbox.",
		}, []string{"table", "topic"}),
		dispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talent",
			Subsystem: "outbox",
			Name:      "dispatched_total",
			Help:      "Dispatch attempts by result.",
		}, []string{"table", "topic", "result"}),
		dead: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talent",
			Subsystem: "outbox",
			Name:      "dead_total",
			Help:      "Events that exhausted their delivery attempts.",
		}, []string{"table", "topic"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "talent",
			Subsystem: "outbox",
			Name:      "dispatch_seconds",
			Help:      "Dispatch latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12),
		}, []string{"table", "result"}),
		queue: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "talent",
			Subsystem: "outbox",
			Name:      "queue",
			Help:      "Unpublished events by state.",
		}, []string{"table", "state"}),
		leader: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "talent",
			Subsystem: "outbox",
			Name:      "relay_leader",
			Help:      "1 while this process relays the table.",
		}, []string{"table"}),
	}
})
