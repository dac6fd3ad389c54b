package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/watchkeep/watchkeep/internal/alert/domain"
	"github.com/watchkeep/watchkeep/internal/clock"
	obsmetrics "github.com/watchkeep/watchkeep/internal/observability/metrics"
	"github.com/watchkeep/watchkeep/internal/security"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Limiter    *security.RateLimiter
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service owns the alert tables and the transaction discipline around them.
// A single mutex serializes every write path; reads go straight to the
// engine, which serves consistent snapshots without the lock.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	limiter    *security.RateLimiter
	obsMetrics *obsmetrics.Metrics

	writeMu sync.Mutex
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("alert.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateAlert(ctx context.Context, req domain.CreateAlertRequest) (snowflake.ID, error) {
	if !req.Type.Valid() {
		return 0, domain.ErrInvalidType
	}
	if !req.Severity.Valid() {
		return 0, domain.ErrInvalidSeverity
	}

	source := security.SanitizeText(req.Source, 100)
	title := security.SanitizeText(req.Title, domain.MaxTitleLen)
	message := security.SanitizeText(req.Message, domain.MaxMessageLen)
	if source == "" {
		return 0, domain.ErrEmptySource
	}
	if title == "" {
		return 0, domain.ErrEmptyTitle
	}
	if message == "" {
		return 0, domain.ErrEmptyMessage
	}
	if !security.ValidateMetadata(req.Metadata) {
		return 0, domain.ErrInvalidMetadata
	}

	if s.limiter != nil && !s.limiter.Allow("create_alert_"+source) {
		if s.obsMetrics != nil {
			s.obsMetrics.AlertsRateLimited.Inc()
		}
		return 0, fmt.Errorf("%w: source %q", domain.ErrRateLimited, source)
	}

	now := s.clock.Now()
	alert := &domain.Alert{
		ID:        s.genID.Generate(),
		Type:      req.Type,
		Severity:  req.Severity,
		Status:    domain.StatusNew,
		Source:    source,
		Title:     title,
		Message:   message,
		Metadata:  datatypes.JSONMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.InsertAlert(ctx, tx, alert)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.AlertsCreated.WithLabelValues(string(req.Type), string(req.Severity)).Inc()
	}
	s.log.Debug("alert created",
		zap.String("alert_id", alert.ID.String()),
		zap.String("type", string(req.Type)),
		zap.String("severity", string(req.Severity)),
		zap.String("source", source),
	)
	return alert.ID, nil
}

// UpdateStatus moves an alert through its lifecycle and appends an
// immutable action-log row. A missing id yields (false, nil), not an error.
func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status, comment string) (bool, error) {
	if !status.Valid() {
		return false, domain.ErrInvalidStatus
	}
	comment = security.SanitizeText(comment, 1000)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alert, err := s.repo.FindAlertByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if alert == nil {
			return nil
		}
		found = true

		if !alert.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: cannot move %s alert to %s", domain.ErrValidation, alert.Status, status)
		}

		now := s.clock.Now()
		if err := s.repo.SetStatus(ctx, tx, id, status, now); err != nil {
			return err
		}
		return s.repo.InsertAction(ctx, tx, &domain.AlertAction{
			ID:         s.genID.Generate(),
			AlertID:    id,
			FromStatus: alert.Status,
			ToStatus:   status,
			Comment:    comment,
			CreatedAt:  now,
		})
	})
	if err != nil {
		if isValidationErr(err) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return found, nil
}

func (s *Service) Query(ctx context.Context, req domain.QueryRequest) ([]domain.Alert, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if req.Type != "" && !req.Type.Valid() {
		return nil, domain.ErrInvalidType
	}
	if req.Severity != "" && !req.Severity.Valid() {
		return nil, domain.ErrInvalidSeverity
	}

	alerts, err := s.repo.Query(ctx, s.db, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return alerts, nil
}

func (s *Service) RecordMetric(ctx context.Context, metricType string, value float64, unit, source string) error {
	metricType = security.SanitizeText(metricType, 100)
	if metricType == "" {
		return domain.ErrInvalidMetric
	}

	sample := &domain.MetricSample{
		ID:         s.genID.Generate(),
		MetricType: metricType,
		Value:      value,
		Unit:       security.SanitizeText(unit, 20),
		Source:     security.SanitizeText(source, 100),
		CreatedAt:  s.clock.Now(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.InsertMetric(ctx, s.db, sample); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if s.obsMetrics != nil {
		s.obsMetrics.MetricSamples.Inc()
	}
	return nil
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	var err error

	if stats.Total, err = s.repo.CountAlerts(ctx, s.db); err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if stats.Last24h, err = s.repo.CountAlertsSince(ctx, s.db, s.clock.Now().Add(-24*time.Hour)); err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	byStatus, err := s.repo.CountAlertsGrouped(ctx, s.db, "status")
	if err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	stats.ByStatus = make(map[domain.Status]int64, len(byStatus))
	for k, v := range byStatus {
		stats.ByStatus[domain.Status(k)] = v
	}

	byType, err := s.repo.CountAlertsGrouped(ctx, s.db, "type")
	if err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	stats.ByType = make(map[domain.AlertType]int64, len(byType))
	for k, v := range byType {
		stats.ByType[domain.AlertType(k)] = v
	}

	bySeverity, err := s.repo.CountAlertsGrouped(ctx, s.db, "severity")
	if err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	stats.BySeverity = make(map[domain.Severity]int64, len(bySeverity))
	for k, v := range bySeverity {
		stats.BySeverity[domain.Severity(k)] = v
	}

	return stats, nil
}

// CleanupOlderThan purges resolved alerts past the retention window.
// Alerts in any other status are kept regardless of age.
func (s *Service) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: retention days must be positive", domain.ErrValidation)
	}
	cutoff := s.clock.Now().AddDate(0, 0, -days)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deleted, err := s.repo.DeleteResolvedBefore(ctx, s.db, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if deleted > 0 {
		s.log.Info("purged resolved alerts", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}

// Backup writes a consistent point-in-time copy using the engine's online
// backup mechanism. Only the embedded engine supports this in-process.
func (s *Service) Backup(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("%w: backup path is required", domain.ErrValidation)
	}
	if s.db.Dialector.Name() != "sqlite" {
		return fmt.Errorf("%w: engine %s requires external tooling", domain.ErrBackupUnsupported, s.db.Dialector.Name())
	}

	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		s.log.Warn("failed to restrict backup file permissions", zap.Error(err))
	}
	s.log.Info("backup written", zap.String("path", path))
	return nil
}

// Optimize reclaims space and refreshes planner statistics. Safe to run on
// a live store.
func (s *Service) Optimize(ctx context.Context) error {
	var statements []string
	switch s.db.Dialector.Name() {
	case "sqlite":
		statements = []string{"PRAGMA optimize", "ANALYZE", "VACUUM"}
	case "postgres":
		statements = []string{"VACUUM ANALYZE"}
	case "mysql":
		statements = []string{"OPTIMIZE TABLE alerts, alert_rules, alert_actions, alert_metrics"}
	default:
		return nil
	}

	for _, stmt := range statements {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrStorage, stmt, err)
		}
	}
	return nil
}

func (s *Service) ListRules(ctx context.Context, enabledOnly bool) ([]domain.ThresholdRule, error) {
	rules, err := s.repo.ListRules(ctx, s.db, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return rules, nil
}

func (s *Service) SaveRule(ctx context.Context, rule domain.ThresholdRule) error {
	rule.Name = security.SanitizeText(rule.Name, 100)
	if rule.Name == "" {
		return fmt.Errorf("%w: rule name is required", domain.ErrValidation)
	}
	if rule.MetricType == "" {
		return domain.ErrInvalidMetric
	}
	if !rule.Operator.Valid() {
		return fmt.Errorf("%w: unknown operator %q", domain.ErrValidation, rule.Operator)
	}
	if !rule.Severity.Valid() {
		return domain.ErrInvalidSeverity
	}
	if rule.CooldownSeconds < 0 {
		return fmt.Errorf("%w: cooldown cannot be negative", domain.ErrValidation)
	}

	now := s.clock.Now()
	if rule.ID == 0 {
		rule.ID = s.genID.Generate()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.UpsertRule(ctx, s.db, &rule); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Service) MarkRuleFired(ctx context.Context, name string, firedAt time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.SetRuleLastFired(ctx, s.db, name, firedAt); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func isValidationErr(err error) bool {
	return errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrRateLimited)
}
