package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
	"github.com/watchkeep/watchkeep/internal/clock"
	"github.com/watchkeep/watchkeep/internal/config"
	obsmetrics "github.com/watchkeep/watchkeep/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const metricSource = "monitor"

var ErrInvalidConfig = errors.New("monitor: invalid configuration")

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	AlertSvc   alertdomain.Service
	Rules      *RulesHolder
	Collector  Collector           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Monitor collects host metrics on an interval, persists them and raises
// threshold alerts. Cooldown state lives on the persisted rules, so a
// restart does not re-fire rules that are still inside their window.
type Monitor struct {
	log        *zap.Logger
	clock      clock.Clock
	interval   time.Duration
	alertSvc   alertdomain.Service
	rules      *RulesHolder
	collector  Collector
	obsMetrics *obsmetrics.Metrics

	syncedVersion int64
}

func New(p Params) (*Monitor, error) {
	if p.Log == nil || p.Clock == nil || p.AlertSvc == nil || p.Rules == nil {
		return nil, ErrInvalidConfig
	}
	collector := p.Collector
	if collector == nil {
		collector = NewSystemCollector("/")
	}
	return &Monitor{
		log:        p.Log.Named("monitor"),
		clock:      p.Clock,
		interval:   p.Config.MonitorInterval,
		alertSvc:   p.AlertSvc,
		rules:      p.Rules,
		collector:  collector,
		obsMetrics: p.ObsMetrics,
	}, nil
}

// SyncRules persists the holder's current rule set. The upsert keeps each
// rule's last_fired_at, so re-syncing never resets a cooldown.
func (m *Monitor) SyncRules(ctx context.Context) error {
	version := m.rules.Version()
	for _, rule := range m.rules.Rules() {
		if err := m.alertSvc.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("sync rule %q: %w", rule.Name, err)
		}
	}
	m.syncedVersion = version
	return nil
}

// CollectMetrics gathers one round of samples and persists each of them.
// A sample that fails to persist is logged and skipped.
func (m *Monitor) CollectMetrics(ctx context.Context) ([]Sample, error) {
	samples, err := m.collector.Collect(ctx)
	if err != nil {
		if len(samples) == 0 {
			return nil, err
		}
		m.log.Warn("partial metric collection", zap.Error(err))
	}

	for _, s := range samples {
		if err := m.alertSvc.RecordMetric(ctx, s.Type, s.Value, s.Unit, metricSource); err != nil {
			m.log.Warn("failed to persist metric sample",
				zap.String("metric_type", s.Type), zap.Error(err))
			continue
		}
		if m.obsMetrics != nil {
			m.obsMetrics.MetricSamples.Inc()
		}
	}
	return samples, nil
}

// EvaluateRules checks every enabled persisted rule against the given
// samples and raises an alert for each rule that matches outside its
// cooldown. Returns the number of rules fired. One rule's failure never
// blocks the others.
func (m *Monitor) EvaluateRules(ctx context.Context, samples []Sample) (int, error) {
	rules, err := m.alertSvc.ListRules(ctx, true)
	if err != nil {
		return 0, err
	}

	values := make(map[string]float64, len(samples))
	for _, s := range samples {
		values[s.Type] = s.Value
	}

	now := m.clock.Now()
	fired := 0
	var errs []error
	for _, rule := range rules {
		value, ok := values[rule.MetricType]
		if !ok {
			continue
		}
		if !rule.Operator.Compare(value, rule.Threshold) {
			continue
		}
		if rule.LastFiredAt != nil && now.Sub(*rule.LastFiredAt) < rule.Cooldown() {
			continue
		}

		_, err := m.alertSvc.CreateAlert(ctx, alertdomain.CreateAlertRequest{
			Type:     alertdomain.TypeThreshold,
			Severity: rule.Severity,
			Source:   metricSource,
			Title:    fmt.Sprintf("Threshold exceeded: %s", rule.Name),
			Message: fmt.Sprintf("%s = %.2f (rule: %s %s %.2f)",
				rule.MetricType, value, rule.MetricType, rule.Operator, rule.Threshold),
			Metadata: map[string]any{
				"rule":        rule.Name,
				"metric_type": rule.MetricType,
				"value":       value,
				"threshold":   rule.Threshold,
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, err))
			continue
		}
		if err := m.alertSvc.MarkRuleFired(ctx, rule.Name, now); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, err))
			continue
		}
		if m.obsMetrics != nil {
			m.obsMetrics.RuleTriggers.WithLabelValues(rule.Name).Inc()
		}
		fired++
	}
	return fired, errors.Join(errs...)
}

// RunOnce is one full cycle: re-sync rules if the file changed, collect,
// persist, evaluate.
func (m *Monitor) RunOnce(ctx context.Context) error {
	start := time.Now()

	if m.rules.Version() != m.syncedVersion {
		if err := m.SyncRules(ctx); err != nil {
			return err
		}
	}

	samples, err := m.CollectMetrics(ctx)
	if err != nil {
		return err
	}
	fired, err := m.EvaluateRules(ctx, samples)

	if m.obsMetrics != nil {
		m.obsMetrics.MonitorCycles.Inc()
		m.obsMetrics.MonitorCycleTime.Observe(time.Since(start).Seconds())
	}
	m.log.Debug("monitor cycle complete",
		zap.Int("samples", len(samples)),
		zap.Int("fired", fired),
		zap.Duration("took", time.Since(start)),
	)
	return err
}

// RunForever runs cycles on the configured interval until ctx is canceled.
// A failed cycle is logged and the loop keeps going.
func (m *Monitor) RunForever(ctx context.Context) {
	interval := m.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := m.RunOnce(ctx); err != nil {
		m.log.Error("monitor cycle failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RunOnce(ctx); err != nil {
				m.log.Error("monitor cycle failed", zap.Error(err))
			}
		}
	}
}
