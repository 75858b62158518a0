package asyncwait

import "github.com/prometheus/client_golang/prometheus"

var (
	parkedWaiters = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "oxmail",
			Subsystem: "asyncwait",
			Name:      "parked",
			Help:      "Number of currently parked notification waiters",
		},
	)
	firedWaiters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxmail",
			Subsystem: "asyncwait",
			Name:      "fired",
			Help:      "Number of waiter activations by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(parkedWaiters)
	prometheus.MustRegister(firedWaiters)
}
