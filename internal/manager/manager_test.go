package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
	alertrepo "github.com/watchkeep/watchkeep/internal/alert/repository"
	alertservice "github.com/watchkeep/watchkeep/internal/alert/service"
	"github.com/watchkeep/watchkeep/internal/clock"
	obsmetrics "github.com/watchkeep/watchkeep/internal/observability/metrics"
	"github.com/watchkeep/watchkeep/internal/security"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestManager(t *testing.T) (*Manager, *prometheus.Registry) {
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

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	alertSvc := alertservice.NewService(alertservice.Params{
		DB:      gdb,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    alertrepo.Provide(),
		Limiter: security.NewRateLimiter(clk, 1000, time.Minute),
	})

	reg := prometheus.NewRegistry()
	obs := obsmetrics.New(reg)

	mgr := New(Params{
		Log:        zap.NewNop(),
		Clock:      clk,
		AlertSvc:   alertSvc,
		ObsMetrics: obs,
	})
	return mgr, reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, m := range fam.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metric
				}
			}
			return metricValue(m)
		}
	}
	return 0
}

func metricValue(m *dto.Metric) float64 {
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

func TestManagerCreateQueryUpdate(t *testing.T) {
	mgr, reg := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.CreateAlert(ctx, alertdomain.CreateAlertRequest{
		Type:     alertdomain.TypeSecurity,
		Severity: alertdomain.SeverityCritical,
		Source:   "doctor",
		Title:    "Certificate expiring",
		Message:  "TLS certificate expires in 3 days",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	alerts, err := mgr.Query(ctx, alertdomain.QueryRequest{Status: alertdomain.StatusNew})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, id, alerts[0].ID)

	found, err := mgr.UpdateStatus(ctx, id, alertdomain.StatusAcknowledged, "on it")
	require.NoError(t, err)
	assert.True(t, found)

	stats, err := mgr.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)

	assert.Equal(t, 1.0, counterValue(t, reg, "watchkeep_manager_operations_total",
		map[string]string{"op": "create_alert", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "watchkeep_manager_operations_total",
		map[string]string{"op": "update_status", "outcome": "ok"}))
}

func TestManagerRecordMetric(t *testing.T) {
	mgr, reg := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.RecordMetric(ctx, "cpu_percent", 42.5, "percent", "doctor"))

	err := mgr.RecordMetric(ctx, "", 1, "", "doctor")
	assert.ErrorIs(t, err, alertdomain.ErrValidation)

	assert.Equal(t, 1.0, counterValue(t, reg, "watchkeep_manager_operations_total",
		map[string]string{"op": "record_metric", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "watchkeep_manager_operations_total",
		map[string]string{"op": "record_metric", "outcome": "error"}))
}
