package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/watchkeep/watchkeep/internal/alert/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAlert(ctx context.Context, db *gorm.DB, alert *domain.Alert) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO alerts (
			id, type, severity, status, source, title, message, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.Type,
		alert.Severity,
		alert.Status,
		alert.Source,
		alert.Title,
		alert.Message,
		alert.Metadata,
		alert.CreatedAt,
		alert.UpdatedAt,
	).Error
}

func (r *repo) InsertAction(ctx context.Context, db *gorm.DB, action *domain.AlertAction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO alert_actions (
			id, alert_id, from_status, to_status, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		action.ID,
		action.AlertID,
		action.FromStatus,
		action.ToStatus,
		action.Comment,
		action.CreatedAt,
	).Error
}

func (r *repo) FindAlertByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Alert, error) {
	var alert domain.Alert
	err := db.WithContext(ctx).First(&alert, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *repo) SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE alerts SET status = ?, updated_at = ? WHERE id = ?`,
		status, at, id,
	).Error
}

func (r *repo) Query(ctx context.Context, db *gorm.DB, req domain.QueryRequest) ([]domain.Alert, error) {
	stmt := db.WithContext(ctx).Model(&domain.Alert{})

	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}
	if req.Type != "" {
		stmt = stmt.Where("type = ?", req.Type)
	}
	if req.Severity != "" {
		stmt = stmt.Where("severity = ?", req.Severity)
	}
	if source := strings.TrimSpace(req.Source); source != "" {
		stmt = stmt.Where("source = ?", source)
	}
	if req.Since != nil {
		stmt = stmt.Where("created_at >= ?", req.Since.UTC())
	}

	limit := req.Limit
	if limit <= 0 || limit > domain.QueryLimitCap {
		limit = domain.QueryLimitCap
	}
	stmt = stmt.Order("created_at desc, id desc").Limit(limit)
	if req.Offset > 0 {
		stmt = stmt.Offset(req.Offset)
	}

	var alerts []domain.Alert
	if err := stmt.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *repo) InsertMetric(ctx context.Context, db *gorm.DB, sample *domain.MetricSample) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO alert_metrics (
			id, metric_type, value, unit, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		sample.ID,
		sample.MetricType,
		sample.Value,
		sample.Unit,
		sample.Source,
		sample.CreatedAt,
	).Error
}

func (r *repo) CountAlerts(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Alert{}).Count(&total).Error
	return total, err
}

func (r *repo) CountAlertsSince(ctx context.Context, db *gorm.DB, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Alert{}).
		Where("created_at >= ?", since.UTC()).
		Count(&total).Error
	return total, err
}

// CountAlertsGrouped groups by one of the enum columns. The column name is
// restricted to a fixed set; it is never caller input.
func (r *repo) CountAlertsGrouped(ctx context.Context, db *gorm.DB, column string) (map[string]int64, error) {
	switch column {
	case "status", "type", "severity":
	default:
		return nil, gorm.ErrInvalidField
	}

	type row struct {
		GroupKey string
		Total    int64
	}
	var rows []row
	err := db.WithContext(ctx).Model(&domain.Alert{}).
		Select(column + " as group_key, count(*) as total").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.GroupKey] = r.Total
	}
	return out, nil
}

func (r *repo) DeleteResolvedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM alerts WHERE status = ? AND created_at < ?`,
		domain.StatusResolved, cutoff.UTC(),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListRules(ctx context.Context, db *gorm.DB, enabledOnly bool) ([]domain.ThresholdRule, error) {
	stmt := db.WithContext(ctx).Model(&domain.ThresholdRule{})
	if enabledOnly {
		stmt = stmt.Where("enabled = ?", true)
	}

	var rules []domain.ThresholdRule
	if err := stmt.Order("name asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) UpsertRule(ctx context.Context, db *gorm.DB, rule *domain.ThresholdRule) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE alert_rules SET
			metric_type = ?, operator = ?, threshold = ?, severity = ?,
			cooldown_seconds = ?, enabled = ?, updated_at = ?
		WHERE name = ?`,
		rule.MetricType,
		rule.Operator,
		rule.Threshold,
		rule.Severity,
		rule.CooldownSeconds,
		rule.Enabled,
		rule.UpdatedAt,
		rule.Name,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO alert_rules (
			id, name, metric_type, operator, threshold, severity,
			cooldown_seconds, enabled, last_fired_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		rule.ID,
		rule.Name,
		rule.MetricType,
		rule.Operator,
		rule.Threshold,
		rule.Severity,
		rule.CooldownSeconds,
		rule.Enabled,
		rule.CreatedAt,
		rule.UpdatedAt,
	).Error
}

func (r *repo) SetRuleLastFired(ctx context.Context, db *gorm.DB, name string, firedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE alert_rules SET last_fired_at = ?, updated_at = ? WHERE name = ?`,
		firedAt.UTC(), firedAt.UTC(), name,
	).Error
}
