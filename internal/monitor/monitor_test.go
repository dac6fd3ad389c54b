package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
	alertrepo "github.com/watchkeep/watchkeep/internal/alert/repository"
	alertservice "github.com/watchkeep/watchkeep/internal/alert/service"
	"github.com/watchkeep/watchkeep/internal/clock"
	"github.com/watchkeep/watchkeep/internal/config"
	"github.com/watchkeep/watchkeep/internal/security"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeCollector struct {
	samples []Sample
	err     error
}

func (c *fakeCollector) Collect(context.Context) ([]Sample, error) {
	return c.samples, c.err
}

type monitorEnv struct {
	monitor   *Monitor
	alertSvc  alertdomain.Service
	clk       *clock.FakeClock
	collector *fakeCollector
	db        *gorm.DB
}

func newMonitorEnv(t *testing.T, rules []alertdomain.ThresholdRule) *monitorEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&alertdomain.Alert{},
		&alertdomain.AlertAction{},
		&alertdomain.ThresholdRule{},
		&alertdomain.MetricSample{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	alertSvc := alertservice.NewService(alertservice.Params{
		DB:      gdb,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    alertrepo.Provide(),
		Limiter: security.NewRateLimiter(clk, 1000, time.Minute),
	})

	holder := &RulesHolder{log: zap.NewNop()}
	holder.current.Store(rules)
	holder.version.Store(1)

	collector := &fakeCollector{}
	m, err := New(Params{
		Log:       zap.NewNop(),
		Clock:     clk,
		Config:    config.Config{MonitorInterval: time.Minute},
		AlertSvc:  alertSvc,
		Rules:     holder,
		Collector: collector,
	})
	require.NoError(t, err)

	return &monitorEnv{monitor: m, alertSvc: alertSvc, clk: clk, collector: collector, db: gdb}
}

func cpuRule(threshold float64, cooldown int) alertdomain.ThresholdRule {
	return alertdomain.ThresholdRule{
		Name:            "cpu_high",
		MetricType:      "cpu_percent",
		Operator:        alertdomain.OpGreater,
		Threshold:       threshold,
		Severity:        alertdomain.SeverityNormal,
		CooldownSeconds: cooldown,
		Enabled:         true,
	}
}

func TestRunOncePersistsSamplesAndFires(t *testing.T) {
	env := newMonitorEnv(t, []alertdomain.ThresholdRule{cpuRule(80, 300)})
	ctx := context.Background()

	env.collector.samples = []Sample{
		{Type: "cpu_percent", Value: 91.5, Unit: "percent"},
		{Type: "memory_percent", Value: 40, Unit: "percent"},
	}
	require.NoError(t, env.monitor.RunOnce(ctx))

	var sampleCount int64
	require.NoError(t, env.db.Raw(`SELECT count(*) FROM alert_metrics`).Scan(&sampleCount).Error)
	assert.EqualValues(t, 2, sampleCount)

	alerts, err := env.alertSvc.Query(ctx, alertdomain.QueryRequest{Type: alertdomain.TypeThreshold})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alertdomain.SeverityNormal, alerts[0].Severity)
	assert.Equal(t, "monitor", alerts[0].Source)
	assert.Contains(t, alerts[0].Message, "cpu_percent = 91.50")
}

func TestCooldownSuppressesRepeatFiring(t *testing.T) {
	env := newMonitorEnv(t, []alertdomain.ThresholdRule{cpuRule(80, 300)})
	ctx := context.Background()

	env.collector.samples = []Sample{{Type: "cpu_percent", Value: 99, Unit: "percent"}}

	require.NoError(t, env.monitor.RunOnce(ctx))
	env.clk.Advance(60 * time.Second)
	require.NoError(t, env.monitor.RunOnce(ctx))

	alerts, err := env.alertSvc.Query(ctx, alertdomain.QueryRequest{Type: alertdomain.TypeThreshold})
	require.NoError(t, err)
	assert.Len(t, alerts, 1, "second cycle inside cooldown must not fire")

	env.clk.Advance(241 * time.Second)
	require.NoError(t, env.monitor.RunOnce(ctx))

	alerts, err = env.alertSvc.Query(ctx, alertdomain.QueryRequest{Type: alertdomain.TypeThreshold})
	require.NoError(t, err)
	assert.Len(t, alerts, 2, "cooldown elapsed, rule fires again")
}

func TestCooldownSurvivesRestart(t *testing.T) {
	env := newMonitorEnv(t, []alertdomain.ThresholdRule{cpuRule(80, 300)})
	ctx := context.Background()

	env.collector.samples = []Sample{{Type: "cpu_percent", Value: 99, Unit: "percent"}}
	require.NoError(t, env.monitor.RunOnce(ctx))

	// A fresh monitor over the same store re-syncs its rules; the upsert
	// keeps last_fired_at, so the cooldown still holds.
	restarted, err := New(Params{
		Log:       zap.NewNop(),
		Clock:     env.clk,
		Config:    config.Config{MonitorInterval: time.Minute},
		AlertSvc:  env.alertSvc,
		Rules:     env.monitor.rules,
		Collector: env.collector,
	})
	require.NoError(t, err)

	env.clk.Advance(30 * time.Second)
	require.NoError(t, restarted.RunOnce(ctx))

	alerts, err := env.alertSvc.Query(ctx, alertdomain.QueryRequest{Type: alertdomain.TypeThreshold})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestRuleBelowThresholdDoesNotFire(t *testing.T) {
	env := newMonitorEnv(t, []alertdomain.ThresholdRule{cpuRule(80, 300)})
	ctx := context.Background()

	env.collector.samples = []Sample{{Type: "cpu_percent", Value: 79.9, Unit: "percent"}}
	require.NoError(t, env.monitor.RunOnce(ctx))

	alerts, err := env.alertSvc.Query(ctx, alertdomain.QueryRequest{Type: alertdomain.TypeThreshold})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestDisabledRuleSkipped(t *testing.T) {
	rule := cpuRule(80, 300)
	rule.Enabled = false
	env := newMonitorEnv(t, []alertdomain.ThresholdRule{rule})
	ctx := context.Background()

	env.collector.samples = []Sample{{Type: "cpu_percent", Value: 99, Unit: "percent"}}
	require.NoError(t, env.monitor.RunOnce(ctx))

	alerts, err := env.alertSvc.Query(ctx, alertdomain.QueryRequest{Type: alertdomain.TypeThreshold})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateRulesMissingMetricSkipped(t *testing.T) {
	env := newMonitorEnv(t, []alertdomain.ThresholdRule{cpuRule(80, 300)})
	ctx := context.Background()
	require.NoError(t, env.monitor.SyncRules(ctx))

	fired, err := env.monitor.EvaluateRules(ctx, []Sample{{Type: "memory_percent", Value: 99}})
	require.NoError(t, err)
	assert.Zero(t, fired)
}

func threshold(v float64) *float64 { return &v }

func TestMergeRulesOverridesAndAdds(t *testing.T) {
	defaults := DefaultRules()
	disabled := false
	merged, err := mergeRules(defaults, []RuleOverride{
		{Name: "cpu_high", Threshold: threshold(70)},
		{Name: "disk_low", Enabled: &disabled},
		{Name: "swap_high", MetricType: "swap_percent", Operator: ">", Threshold: threshold(50), Severity: "low", CooldownSeconds: 60},
	})
	require.NoError(t, err)
	require.Len(t, merged, len(defaults)+1)

	byName := map[string]alertdomain.ThresholdRule{}
	for _, r := range merged {
		byName[r.Name] = r
	}
	assert.Equal(t, 70.0, byName["cpu_high"].Threshold)
	assert.Equal(t, 300, byName["cpu_high"].CooldownSeconds, "unset override fields keep defaults")
	assert.False(t, byName["disk_low"].Enabled)
	assert.Equal(t, "swap_percent", byName["swap_high"].MetricType)
	assert.True(t, byName["swap_high"].Enabled)
}

func TestMergeRulesZeroThresholdOverride(t *testing.T) {
	merged, err := mergeRules(DefaultRules(), []RuleOverride{
		{Name: "disk_low", Threshold: threshold(0)},
		{Name: "memory_high"},
	})
	require.NoError(t, err)

	byName := map[string]alertdomain.ThresholdRule{}
	for _, r := range merged {
		byName[r.Name] = r
	}
	assert.Equal(t, 0.0, byName["disk_low"].Threshold)
	assert.Equal(t, 85.0, byName["memory_high"].Threshold, "absent threshold keeps the default")
}

func TestMergeRulesRejectsInvalid(t *testing.T) {
	_, err := mergeRules(DefaultRules(), []RuleOverride{
		{Name: "bad", MetricType: "x", Operator: "~", Threshold: threshold(1), Severity: "low"},
	})
	assert.Error(t, err)

	_, err = mergeRules(DefaultRules(), []RuleOverride{
		{MetricType: "x", Operator: ">", Threshold: threshold(1), Severity: "low"},
	})
	assert.Error(t, err)
}
