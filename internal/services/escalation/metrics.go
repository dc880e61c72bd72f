package escalation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type sweepMetrics struct {
	runs             prometheus.Counter
	durations        prometheus.Observer
	rulesEvaluated   prometheus.Counter
	eventsEmitted    prometheus.Counter
	suppressed       prometheus.Counter
	domainsSkipped   *prometheus.CounterVec
	dispatchFailures prometheus.Counter
	openEvents       prometheus.Gauge
}

var (
	sweepMetricsOnce sync.Once
	sweepMetricsInst *sweepMetrics
)

func globalSweepMetrics() *sweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetricsInst = newSweepMetrics()
	})
	return sweepMetricsInst
}

func newSweepMetrics() *sweepMetrics {
	return &sweepMetrics{
		runs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "propdesk",
			Subsystem: "escalation",
			Name:      "sweep_runs_total",
			Help:      "Total evaluation sweeps started",
		}),
		durations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "propdesk",
			Subsystem: "escalation",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of evaluation sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		rulesEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "propdesk",
			Subsystem: "escalation",
			Name:      "rules_evaluated_total",
			Help:      "Active rules evaluated across all sweeps",
		}),
		eventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "propdesk",
			Subsystem: "escalation",
			Name:      "events_emitted_total",
			Help:      "Escalation events durably created",
		}),
		suppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "propdesk",
			Subsystem: "escalation",
			Name:      "events_suppressed_total",
			Help:      "Matches suppressed by the open-event dedup constraint",
		}),
		domainsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propdesk",
			Subsystem: "escalation",
			Name:      "domains_skipped_total",
			Help:      "Entity-type fetches skipped in a sweep, labeled by entity type",
		}, []string{"entity_type"}),
		dispatchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "propdesk",
			Subsystem: "escalation",
			Name:      "dispatch_failures_total",
			Help:      "Notification deliveries that failed after event creation",
		}),
		openEvents: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "propdesk",
			Subsystem: "escalation",
			Name:      "open_events",
			Help:      "Unacknowledged escalation events observed after the latest sweep",
		}),
	}
}
