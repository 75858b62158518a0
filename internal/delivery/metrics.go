package delivery

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxmail",
			Subsystem: "delivery",
			Name:      "outcomes",
			Help:      "Number of single-recipient local delivery attempts by outcome",
		},
		[]string{"outcome"},
	)
	bouncesProduced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxmail",
			Subsystem: "delivery",
			Name:      "bounces",
			Help:      "Number of bounce messages enqueued by kind",
		},
		[]string{"kind"},
	)
	bouncesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oxmail",
			Subsystem: "delivery",
			Name:      "bounces_suppressed",
			Help:      "Number of bounce messages suppressed by the per-recipient audit",
		},
	)
)

func init() {
	prometheus.MustRegister(deliveryOutcomes)
	prometheus.MustRegister(bouncesProduced)
	prometheus.MustRegister(bouncesSuppressed)
}
