package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAlert(ctx context.Context, db *gorm.DB, alert *Alert) error
	InsertAction(ctx context.Context, db *gorm.DB, action *AlertAction) error
	FindAlertByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Alert, error)
	SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, at time.Time) error
	Query(ctx context.Context, db *gorm.DB, req QueryRequest) ([]Alert, error)

	InsertMetric(ctx context.Context, db *gorm.DB, sample *MetricSample) error

	CountAlerts(ctx context.Context, db *gorm.DB) (int64, error)
	CountAlertsSince(ctx context.Context, db *gorm.DB, since time.Time) (int64, error)
	CountAlertsGrouped(ctx context.Context, db *gorm.DB, column string) (map[string]int64, error)
	DeleteResolvedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)

	ListRules(ctx context.Context, db *gorm.DB, enabledOnly bool) ([]ThresholdRule, error)
	UpsertRule(ctx context.Context, db *gorm.DB, rule *ThresholdRule) error
	SetRuleLastFired(ctx context.Context, db *gorm.DB, name string, firedAt time.Time) error
}
