package fixity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fixity_checks_total",
		Help: "Completed fixity checks by outcome",
	}, []string{"outcome"})

	checkDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fixity_check_duration_seconds",
		Help:    "Time from start of check to recorded outcome",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800},
	})

	persistenceFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fixity_persistence_failures_total",
		Help: "Checks whose record could not be appended to the history store",
	})

	// BacklogObjects is the number of objects due for a check as of
	// the last scheduling pass.
	BacklogObjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fixity_backlog_objects",
		Help: "Objects due for a fixity check at the last scheduling pass",
	})
)
