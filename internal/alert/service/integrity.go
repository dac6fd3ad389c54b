package service

import (
	"context"
	"fmt"

	"github.com/watchkeep/watchkeep/internal/alert/domain"
	"go.uber.org/zap"
)

// ValidateIntegrity runs engine-level structural checks plus referential
// cross-checks over the alert and ledger tables. Counter drift is reported
// as a warning; broken references are errors.
func (s *Service) ValidateIntegrity(ctx context.Context) (domain.IntegrityReport, error) {
	report := domain.IntegrityReport{
		StructuralOK:  true,
		ForeignKeyOK:  true,
		ConsistencyOK: true,
	}

	if s.db.Dialector.Name() == "sqlite" {
		var verdicts []string
		if err := s.db.WithContext(ctx).Raw("PRAGMA integrity_check").Scan(&verdicts).Error; err != nil {
			return report, fmt.Errorf("%w: integrity_check: %v", domain.ErrStorage, err)
		}
		for _, v := range verdicts {
			if v != "ok" {
				report.StructuralOK = false
				report.Errors = append(report.Errors, "structural: "+v)
			}
		}

		type fkViolation struct {
			Table  string `gorm:"column:table"`
			Parent string `gorm:"column:parent"`
		}
		var violations []fkViolation
		if err := s.db.WithContext(ctx).Raw("PRAGMA foreign_key_check").Scan(&violations).Error; err != nil {
			return report, fmt.Errorf("%w: foreign_key_check: %v", domain.ErrStorage, err)
		}
		for _, v := range violations {
			report.ForeignKeyOK = false
			report.Errors = append(report.Errors, fmt.Sprintf("foreign key: %s references missing %s row", v.Table, v.Parent))
		}
	}

	// Orphaned action rows.
	var orphanActions int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT count(*) FROM alert_actions a
		 WHERE NOT EXISTS (SELECT 1 FROM alerts al WHERE al.id = a.alert_id)`,
	).Scan(&orphanActions).Error; err != nil {
		return report, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if orphanActions > 0 {
		report.ForeignKeyOK = false
		report.Errors = append(report.Errors, fmt.Sprintf("%d alert_actions rows reference missing alerts", orphanActions))
	}

	// The ledger tables are optional; a store opened for alerts alone
	// skips the cross checks.
	migrator := s.db.WithContext(ctx).Migrator()
	hasLedger := migrator.HasTable("referral_attributions") &&
		migrator.HasTable("revenue_events") &&
		migrator.HasTable("user_profiles")
	if hasLedger {
		if err := s.checkLedgerReferences(ctx, &report); err != nil {
			return report, err
		}
	}

	if !report.OK() {
		s.log.Warn("integrity validation found problems",
			zap.Int("errors", len(report.Errors)),
			zap.Int("warnings", len(report.Warnings)),
		)
	}
	return report, nil
}

func (s *Service) checkLedgerReferences(ctx context.Context, report *domain.IntegrityReport) error {
	// Attributions must reference an existing revenue event and referrer.
	var orphanByEvent int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT count(*) FROM referral_attributions ra
		 WHERE NOT EXISTS (SELECT 1 FROM revenue_events re WHERE re.event_id = ra.event_id)`,
	).Scan(&orphanByEvent).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if orphanByEvent > 0 {
		report.ForeignKeyOK = false
		report.Errors = append(report.Errors, fmt.Sprintf("%d referral_attributions rows reference missing revenue_events", orphanByEvent))
	}

	var orphanByReferrer int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT count(*) FROM referral_attributions ra
		 WHERE NOT EXISTS (SELECT 1 FROM user_profiles up WHERE up.user_id = ra.referrer_id)`,
	).Scan(&orphanByReferrer).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if orphanByReferrer > 0 {
		report.ForeignKeyOK = false
		report.Errors = append(report.Errors, fmt.Sprintf("%d referral_attributions rows reference missing user_profiles", orphanByReferrer))
	}

	// Referral counters must agree with the attribution rows.
	type drift struct {
		UserID string
		Have   int64
		Want   int64
	}
	var drifts []drift
	if err := s.db.WithContext(ctx).Raw(
		`SELECT up.user_id AS user_id, up.total_referrals AS have,
		        (SELECT count(*) FROM user_profiles r WHERE r.referred_by = up.referral_code) AS want
		 FROM user_profiles up
		 WHERE up.total_referrals <> (SELECT count(*) FROM user_profiles r WHERE r.referred_by = up.referral_code)`,
	).Scan(&drifts).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, d := range drifts {
		report.ConsistencyOK = false
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("user %s total_referrals=%d but %d profiles name its code", d.UserID, d.Have, d.Want))
	}
	return nil
}
