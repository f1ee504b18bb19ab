package filter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricInferences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_inferences_total",
		Help: "Classifier inferences run during event confirmation.",
	})

	metricClassifierFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_classifier_failures_total",
		Help: "Inferences that returned an error and were treated as no detection.",
	})

	metricEventsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_events_confirmed_total",
		Help: "Events confirmed to contain an animal.",
	})

	metricEventsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_events_discarded_total",
		Help: "Events discarded as empty or vetoed by a human detection.",
	})
)
