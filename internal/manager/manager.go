package manager

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
	"github.com/watchkeep/watchkeep/internal/clock"
	obsmetrics "github.com/watchkeep/watchkeep/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	AlertSvc   alertdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Manager is the public boundary for alert operations. It is constructed
// once at process start and handed to callers; there is no package-level
// accessor. Cross-cutting behavior is composed as explicit middleware
// around each operation.
type Manager struct {
	log      *zap.Logger
	clock    clock.Clock
	alertSvc alertdomain.Service

	middleware []Middleware
}

// Middleware wraps one facade operation. op names the operation, fn runs it.
type Middleware func(ctx context.Context, op string, fn func(context.Context) error) error

func New(p Params) *Manager {
	m := &Manager{
		log:      p.Log.Named("manager"),
		clock:    p.Clock,
		alertSvc: p.AlertSvc,
	}
	m.middleware = []Middleware{
		auditLog(m.log),
	}
	if p.ObsMetrics != nil {
		m.middleware = append([]Middleware{instrument(p.ObsMetrics)}, m.middleware...)
	}
	return m
}

func (m *Manager) run(ctx context.Context, op string, fn func(context.Context) error) error {
	wrapped := fn
	for i := len(m.middleware) - 1; i >= 0; i-- {
		mw := m.middleware[i]
		next := wrapped
		wrapped = func(ctx context.Context) error {
			return mw(ctx, op, next)
		}
	}
	return wrapped(ctx)
}

// instrument records operation counts and latency.
func instrument(obs *obsmetrics.Metrics) Middleware {
	return func(ctx context.Context, op string, fn func(context.Context) error) error {
		start := time.Now()
		err := fn(ctx)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		obs.ManagerOps.WithLabelValues(op, outcome).Inc()
		obs.ManagerOpTime.WithLabelValues(op).Observe(time.Since(start).Seconds())
		return err
	}
}

// auditLog emits one structured entry per operation.
func auditLog(log *zap.Logger) Middleware {
	return func(ctx context.Context, op string, fn func(context.Context) error) error {
		err := fn(ctx)
		if err != nil {
			log.Warn("operation failed", zap.String("op", op), zap.Error(err))
			return err
		}
		log.Debug("operation complete", zap.String("op", op))
		return nil
	}
}

func (m *Manager) CreateAlert(ctx context.Context, req alertdomain.CreateAlertRequest) (snowflake.ID, error) {
	var id snowflake.ID
	err := m.run(ctx, "create_alert", func(ctx context.Context) error {
		var err error
		id, err = m.alertSvc.CreateAlert(ctx, req)
		return err
	})
	return id, err
}

func (m *Manager) RecordMetric(ctx context.Context, metricType string, value float64, unit, source string) error {
	return m.run(ctx, "record_metric", func(ctx context.Context) error {
		return m.alertSvc.RecordMetric(ctx, metricType, value, unit, source)
	})
}

func (m *Manager) Query(ctx context.Context, req alertdomain.QueryRequest) ([]alertdomain.Alert, error) {
	var alerts []alertdomain.Alert
	err := m.run(ctx, "query", func(ctx context.Context) error {
		var err error
		alerts, err = m.alertSvc.Query(ctx, req)
		return err
	})
	return alerts, err
}

func (m *Manager) UpdateStatus(ctx context.Context, id snowflake.ID, status alertdomain.Status, comment string) (bool, error) {
	var found bool
	err := m.run(ctx, "update_status", func(ctx context.Context) error {
		var err error
		found, err = m.alertSvc.UpdateStatus(ctx, id, status, comment)
		return err
	})
	return found, err
}

func (m *Manager) Stats(ctx context.Context) (alertdomain.Stats, error) {
	var stats alertdomain.Stats
	err := m.run(ctx, "stats", func(ctx context.Context) error {
		var err error
		stats, err = m.alertSvc.Stats(ctx)
		return err
	})
	return stats, err
}
