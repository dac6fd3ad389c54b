package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
	"github.com/watchkeep/watchkeep/internal/clock"
	"github.com/watchkeep/watchkeep/internal/ledger/domain"
	obsmetrics "github.com/watchkeep/watchkeep/internal/observability/metrics"
	"github.com/watchkeep/watchkeep/internal/security"
	"github.com/watchkeep/watchkeep/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultFoundingLimit caps how many profiles receive the permanent
// founding-member flag.
const DefaultFoundingLimit = 1000

const referralCodeLen = 12

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cipher     *security.Cipher
	AlertSvc   alertdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service maintains user profiles, revenue events and referral
// attributions. Profile creation and revenue writes share one mutex so the
// founding-member count and the referral counters cannot race.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cipher     *security.Cipher
	alertSvc   alertdomain.Service
	obsMetrics *obsmetrics.Metrics

	foundingLimit int64
	writeMu       sync.Mutex
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("ledger.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		cipher:        p.Cipher,
		alertSvc:      p.AlertSvc,
		obsMetrics:    p.ObsMetrics,
		foundingLimit: DefaultFoundingLimit,
	}
}

func (s *Service) CreateUserProfile(ctx context.Context, req domain.CreateProfileRequest) (*domain.UserProfile, error) {
	userID := strings.TrimSpace(req.UserID)
	if !security.ValidateUserID(userID) {
		return nil, domain.ErrInvalidUserID
	}
	email := strings.TrimSpace(req.Email)
	if !security.ValidateEmail(email) {
		return nil, domain.ErrInvalidEmail
	}
	tier := req.Tier
	if tier == "" {
		tier = domain.TierFree
	}
	if !tier.Valid() {
		return nil, domain.ErrInvalidTier
	}
	if !security.ValidateMetadata(req.Metadata) {
		return nil, domain.ErrInvalidMetadata
	}
	referredBy := strings.TrimSpace(req.ReferredByCode)

	encrypted, err := s.cipher.Encrypt(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSecurity, err)
	}
	emailHash := s.cipher.Hash(strings.ToLower(email))

	now := s.clock.Now()
	profile := &domain.UserProfile{
		ID:                      s.genID.Generate(),
		UserID:                  userID,
		EmailEncrypted:          encrypted,
		EmailHash:               emailHash,
		Tier:                    tier,
		ReferralCode:            newReferralCode(),
		ReferredBy:              referredBy,
		LifetimeReferralRevenue: decimal.Zero,
		Metadata:                datatypes.JSONMap(req.Metadata),
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Raw(`SELECT count(*) FROM user_profiles WHERE user_id = ?`, userID).Scan(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrDuplicateUser
		}
		if err := tx.Raw(`SELECT count(*) FROM user_profiles WHERE email_hash = ?`, emailHash).Scan(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrDuplicateEmail
		}

		if referredBy != "" {
			var referrerCount int64
			if err := tx.Raw(`SELECT count(*) FROM user_profiles WHERE referral_code = ?`, referredBy).Scan(&referrerCount).Error; err != nil {
				return err
			}
			if referrerCount == 0 {
				return domain.ErrUnknownReferralCode
			}
		}

		// Founding status is decided by counting inside the same
		// transaction as the insert; all creation paths hold writeMu, so
		// the count cannot move between the read and the write.
		var total int64
		if err := tx.Raw(`SELECT count(*) FROM user_profiles`).Scan(&total).Error; err != nil {
			return err
		}
		profile.FoundingMember = total < s.foundingLimit

		if err := tx.Exec(
			`INSERT INTO user_profiles (
				id, user_id, email_encrypted, email_hash, tier, founding_member,
				referral_code, referred_by, total_referrals, lifetime_referral_revenue,
				metadata, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
			profile.ID,
			profile.UserID,
			profile.EmailEncrypted,
			profile.EmailHash,
			profile.Tier,
			profile.FoundingMember,
			profile.ReferralCode,
			profile.ReferredBy,
			profile.LifetimeReferralRevenue,
			profile.Metadata,
			profile.CreatedAt,
			profile.UpdatedAt,
		).Error; err != nil {
			return err
		}

		if referredBy != "" {
			if err := tx.Exec(
				`UPDATE user_profiles SET total_referrals = total_referrals + 1, updated_at = ?
				 WHERE referral_code = ?`,
				now, referredBy,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrSecurity):
			return nil, err
		case db.IsDuplicateKeyErr(err):
			return nil, domain.ErrDuplicateUser
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
	}

	if s.obsMetrics != nil {
		s.obsMetrics.ProfilesCreated.Inc()
		if profile.FoundingMember {
			s.obsMetrics.FoundingAssigned.Inc()
		}
	}
	s.log.Info("user profile created",
		zap.String("user_id", userID),
		zap.String("tier", string(tier)),
		zap.Bool("founding_member", profile.FoundingMember),
		zap.Bool("referred", referredBy != ""),
	)
	return profile, nil
}

func (s *Service) RecordRevenueEvent(ctx context.Context, req domain.RecordRevenueRequest) (string, error) {
	userID := strings.TrimSpace(req.UserID)
	if !security.ValidateUserID(userID) {
		return "", domain.ErrInvalidUserID
	}
	if !req.EventType.Valid() {
		return "", domain.ErrInvalidEventType
	}
	if !security.ValidateAmount(req.Amount) {
		return "", domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !validCurrency(currency) {
		return "", domain.ErrInvalidCurrency
	}
	if !security.ValidateMetadata(req.Metadata) {
		return "", domain.ErrInvalidMetadata
	}

	now := s.clock.Now()
	eventID := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	var payer domain.UserProfile

	s.writeMu.Lock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(`SELECT * FROM user_profiles WHERE user_id = ?`, userID).Scan(&payer).Error; err != nil {
			return err
		}
		if payer.UserID == "" {
			return domain.ErrProfileNotFound
		}

		event := domain.RevenueEvent{
			ID:        s.genID.Generate(),
			EventID:   eventID,
			UserID:    userID,
			EventType: req.EventType,
			Amount:    req.Amount,
			Currency:  currency,
			Metadata:  datatypes.JSONMap(req.Metadata),
			CreatedAt: now,
		}

		var referrer domain.UserProfile
		if payer.ReferredBy != "" {
			if err := tx.Raw(`SELECT * FROM user_profiles WHERE referral_code = ?`, payer.ReferredBy).Scan(&referrer).Error; err != nil {
				return err
			}
		}

		var bonus decimal.Decimal
		if referrer.UserID != "" {
			bonus = req.Amount.Mul(domain.ReferralBonusRate).Round(2)
			event.ReferrerID = referrer.UserID
			event.ReferralBonus = &bonus
		}

		if err := tx.Exec(
			`INSERT INTO revenue_events (
				id, event_id, user_id, event_type, amount, currency,
				referrer_id, referral_bonus, metadata, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID,
			event.EventID,
			event.UserID,
			event.EventType,
			event.Amount,
			event.Currency,
			event.ReferrerID,
			event.ReferralBonus,
			event.Metadata,
			event.CreatedAt,
		).Error; err != nil {
			return err
		}

		if referrer.UserID != "" {
			if err := tx.Exec(
				`INSERT INTO referral_attributions (
					id, event_id, referrer_id, referred_user_id, bonus_amount,
					status, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				s.genID.Generate(),
				eventID,
				referrer.UserID,
				userID,
				bonus,
				domain.AttributionPending,
				now,
				now,
			).Error; err != nil {
				return err
			}

			// Accumulate in exact decimal arithmetic, never in the engine.
			lifetime := referrer.LifetimeReferralRevenue.Add(bonus)
			if err := tx.Exec(
				`UPDATE user_profiles SET lifetime_referral_revenue = ?, updated_at = ?
				 WHERE user_id = ?`,
				lifetime, now, referrer.UserID,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	s.writeMu.Unlock()
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) || errors.Is(err, domain.ErrValidation) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RevenueEvents.WithLabelValues(string(req.EventType)).Inc()
		if payer.ReferredBy != "" {
			s.obsMetrics.ReferralBonuses.Inc()
		}
	}

	if req.Amount.GreaterThanOrEqual(domain.LargeAmountThreshold) {
		s.raiseLargeRevenueAlert(ctx, &payer, req, eventID)
	}

	return eventID, nil
}

// raiseLargeRevenueAlert runs after the revenue transaction committed;
// a failed alert never unwinds the ledger write.
func (s *Service) raiseLargeRevenueAlert(ctx context.Context, payer *domain.UserProfile, req domain.RecordRevenueRequest, eventID string) {
	severity := alertdomain.SeverityNormal
	if payer.FoundingMember {
		severity = alertdomain.SeverityCritical
	}

	_, err := s.alertSvc.CreateAlert(ctx, alertdomain.CreateAlertRequest{
		Type:     alertdomain.TypeRevenue,
		Severity: severity,
		Source:   "ledger",
		Title:    "Large revenue event",
		Message: fmt.Sprintf("%s event of %s %s from user %s",
			req.EventType, req.Amount.StringFixed(2), req.Currency, payer.UserID),
		Metadata: map[string]any{
			"event_id":        eventID,
			"user_id":         payer.UserID,
			"founding_member": payer.FoundingMember,
		},
	})
	if err != nil {
		s.log.Warn("failed to raise revenue alert", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (s *Service) MarkAttributionPaid(ctx context.Context, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("%w: event id is required", domain.ErrValidation)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result := s.db.WithContext(ctx).Exec(
		`UPDATE referral_attributions SET status = ?, updated_at = ?
		 WHERE event_id = ? AND status = ?`,
		domain.AttributionPaid, s.clock.Now(), eventID, domain.AttributionPending,
	)
	if result.Error != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorage, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, string, error) {
	userID = strings.TrimSpace(userID)
	if !security.ValidateUserID(userID) {
		return nil, "", domain.ErrInvalidUserID
	}

	var profile domain.UserProfile
	if err := s.db.WithContext(ctx).Raw(`SELECT * FROM user_profiles WHERE user_id = ?`, userID).Scan(&profile).Error; err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if profile.UserID == "" {
		return nil, "", domain.ErrProfileNotFound
	}

	email, err := s.cipher.Decrypt(profile.EmailEncrypted)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrSecurity, err)
	}
	return &profile, email, nil
}

func newReferralCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:referralCodeLen])
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
