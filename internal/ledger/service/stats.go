package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/watchkeep/watchkeep/internal/ledger/domain"
	"github.com/watchkeep/watchkeep/internal/security"
)

const topReferrerLimit = 10

func (s *Service) ReferralStats(ctx context.Context, userID string) (*domain.ReferralStatsResponse, error) {
	userID = strings.TrimSpace(userID)
	if !security.ValidateUserID(userID) {
		return nil, domain.ErrInvalidUserID
	}

	var profile domain.UserProfile
	if err := s.db.WithContext(ctx).Raw(`SELECT * FROM user_profiles WHERE user_id = ?`, userID).Scan(&profile).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if profile.UserID == "" {
		return nil, domain.ErrProfileNotFound
	}

	var pending []struct {
		BonusAmount decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT bonus_amount FROM referral_attributions WHERE referrer_id = ? AND status = ?`,
		userID, domain.AttributionPending,
	).Scan(&pending).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	pendingSum := decimal.Zero
	for _, b := range pending {
		pendingSum = pendingSum.Add(b.BonusAmount)
	}

	var referred []domain.ReferredUser
	if err := s.db.WithContext(ctx).Raw(
		`SELECT user_id, tier, created_at FROM user_profiles
		 WHERE referred_by = ? ORDER BY created_at asc, user_id asc`,
		profile.ReferralCode,
	).Scan(&referred).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return &domain.ReferralStatsResponse{
		Profile:         profile,
		PendingBonusSum: pendingSum,
		ReferredUsers:   referred,
	}, nil
}

func (s *Service) FoundingStats(ctx context.Context) (*domain.FoundingStatsResponse, error) {
	resp := &domain.FoundingStatsResponse{
		TotalReferralRevenue: decimal.Zero,
		RevenueByTier:        make(map[domain.Tier]decimal.Decimal),
		Last30dRevenueTotal:  decimal.Zero,
	}

	if err := s.db.WithContext(ctx).Raw(
		`SELECT count(*) FROM user_profiles WHERE founding_member = ?`, true,
	).Scan(&resp.FoundingMemberCount).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_referrals), 0) FROM user_profiles WHERE founding_member = ?`, true,
	).Scan(&resp.TotalFoundingReferrals).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	var lifetimes []struct {
		LifetimeReferralRevenue decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT lifetime_referral_revenue FROM user_profiles WHERE total_referrals > 0`,
	).Scan(&lifetimes).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, v := range lifetimes {
		resp.TotalReferralRevenue = resp.TotalReferralRevenue.Add(v.LifetimeReferralRevenue)
	}

	var byTier []struct {
		Tier   domain.Tier
		Amount decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT p.tier AS tier, e.amount AS amount
		 FROM revenue_events e JOIN user_profiles p ON p.user_id = e.user_id`,
	).Scan(&byTier).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, row := range byTier {
		resp.RevenueByTier[row.Tier] = resp.RevenueByTier[row.Tier].Add(row.Amount)
	}

	var top []domain.TopReferrer
	if err := s.db.WithContext(ctx).Raw(
		`SELECT user_id, total_referrals, lifetime_referral_revenue
		 FROM user_profiles WHERE total_referrals > 0
		 ORDER BY total_referrals desc, user_id asc LIMIT ?`,
		topReferrerLimit,
	).Scan(&top).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	resp.TopReferrers = top

	since := s.clock.Now().Add(-30 * 24 * time.Hour)
	if err := s.db.WithContext(ctx).Raw(
		`SELECT count(*) FROM revenue_events WHERE created_at >= ?`, since,
	).Scan(&resp.Last30dEventCount).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	var recent []struct {
		Amount decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT amount FROM revenue_events WHERE created_at >= ?`, since,
	).Scan(&recent).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, v := range recent {
		resp.Last30dRevenueTotal = resp.Last30dRevenueTotal.Add(v.Amount)
	}

	return resp, nil
}
