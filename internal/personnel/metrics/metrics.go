package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for personnel lifecycle activity.
type Metrics struct {
	PersonnelCreated   prometheus.Counter
	InternsConverted   prometheus.Counter
	InternshipsExpired prometheus.Counter
	SweepRuns          prometheus.Counter
}

// New creates and registers all personnel metrics.
func New() *Metrics {
	return &Metrics{
		PersonnelCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prismid_personnel_created_total",
			Help: "Total number of personnel records created.",
		}),
		InternsConverted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prismid_interns_converted_total",
			Help: "Total number of interns converted to employees.",
		}),
		InternshipsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prismid_internships_expired_total",
			Help: "Total number of internships transitioned to expired.",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prismid_expiry_sweep_runs_total",
			Help: "Total number of completed expiry sweep runs.",
		}),
	}
}
