package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/watchkeep/watchkeep/internal/config"
	"go.uber.org/fx"
)

// Module provides the application instruments on the default registry.
var Module = fx.Provide(func(cfg config.Config) *Metrics {
	if !cfg.MetricsEnabled {
		return nil
	}
	return New(prometheus.DefaultRegisterer)
})

// Metrics exposes application-level instruments.
type Metrics struct {
	AlertsCreated      *prometheus.CounterVec
	AlertsRateLimited  prometheus.Counter
	MetricSamples      prometheus.Counter
	RuleTriggers       *prometheus.CounterVec
	MonitorCycles      prometheus.Counter
	MonitorCycleTime   prometheus.Histogram
	RevenueEvents      *prometheus.CounterVec
	ReferralBonuses    prometheus.Counter
	ProfilesCreated    prometheus.Counter
	FoundingAssigned   prometheus.Counter
	ManagerOps         *prometheus.CounterVec
	ManagerOpTime      *prometheus.HistogramVec
}

// New registers the instruments against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchkeep_alerts_created_total",
			Help: "Alerts persisted, by type and severity.",
		}, []string{"type", "severity"}),
		AlertsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchkeep_alerts_rate_limited_total",
			Help: "Alert creations rejected by the per-source rate limit.",
		}),
		MetricSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchkeep_metric_samples_total",
			Help: "Metric samples recorded.",
		}),
		RuleTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchkeep_rule_triggers_total",
			Help: "Threshold rule firings, by rule name.",
		}, []string{"rule"}),
		MonitorCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchkeep_monitor_cycles_total",
			Help: "Completed monitor collect/evaluate cycles.",
		}),
		MonitorCycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchkeep_monitor_cycle_seconds",
			Help:    "Duration of one monitor cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		RevenueEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchkeep_revenue_events_total",
			Help: "Revenue events recorded, by event type.",
		}, []string{"event_type"}),
		ReferralBonuses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchkeep_referral_bonuses_total",
			Help: "Referral attributions written.",
		}),
		ProfilesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchkeep_profiles_created_total",
			Help: "User profiles created.",
		}),
		FoundingAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchkeep_founding_members_total",
			Help: "Profiles granted the founding member flag.",
		}),
		ManagerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchkeep_manager_operations_total",
			Help: "Facade operations, by operation and outcome.",
		}, []string{"op", "outcome"}),
		ManagerOpTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watchkeep_manager_operation_seconds",
			Help:    "Duration of facade operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.AlertsCreated,
		m.AlertsRateLimited,
		m.MetricSamples,
		m.RuleTriggers,
		m.MonitorCycles,
		m.MonitorCycleTime,
		m.RevenueEvents,
		m.ReferralBonuses,
		m.ProfilesCreated,
		m.FoundingAssigned,
		m.ManagerOps,
		m.ManagerOpTime,
	)
	return m
}
