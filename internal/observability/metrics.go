package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "strikeguard_evaluations_total",
	Help: "Messages evaluated, by resulting action",
}, []string{"action"})

var suppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "strikeguard_suppressed_total",
	Help: "Evaluations that ended without action, by reason",
}, []string{"reason"})

var dependencyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "strikeguard_dependency_failures_total",
	Help: "Guard and store failures that forced a safe default",
}, []string{"component"})

var evaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "strikeguard_evaluation_duration_seconds",
	Help:    "Time spent evaluating a message",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
}, []string{"tier"})

var enforcementFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "strikeguard_enforcement_failures_total",
	Help: "Telegram calls that failed while applying a directive",
}, []string{"step"})

var rulesReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "strikeguard_rules_reloads_total",
	Help: "Rules snapshots published or rejected",
}, []string{"result"})

func RecordEvaluation(action string, tier string, elapsed time.Duration) {
	evaluationsTotal.WithLabelValues(action).Inc()
	evaluationDuration.WithLabelValues(tier).Observe(elapsed.Seconds())
}

func RecordSuppressed(reason string) {
	suppressedTotal.WithLabelValues(reason).Inc()
}

func RecordDependencyFailure(component string) {
	dependencyFailuresTotal.WithLabelValues(component).Inc()
}

func RecordEnforcementFailure(step string) {
	enforcementFailuresTotal.WithLabelValues(step).Inc()
}

func RecordRulesReload(accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	rulesReloadsTotal.WithLabelValues(result).Inc()
}
