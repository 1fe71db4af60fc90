package background

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	ranTotal     *prometheus.CounterVec
	droppedTotal *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		ranTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "background",
			Name:      "tasks_total",
			Help:      "Total number of background tasks run.",
		}, []string{"task", "result"}),
		droppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "background",
			Name:      "tasks_dropped_total",
			Help:      "Total number of background tasks dropped due to a full queue.",
		}, []string{"task"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "background",
			Name:      "task_latency_seconds",
			Help:      "Latency distribution for background tasks.",
			Buckets: []float64{
				0.001, 0.005,
				0.01, 0.05,
				0.1, 0.5,
				1, 5, 10,
			},
		}, []string{"task", "result"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
