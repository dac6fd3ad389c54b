package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation = errors.New("validation_error")
	ErrSecurity   = errors.New("security_error")
	ErrStorage    = errors.New("storage_error")

	ErrInvalidUserID       = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidEmail        = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrInvalidTier         = fmt.Errorf("%w: unknown tier", ErrValidation)
	ErrInvalidEventType    = fmt.Errorf("%w: unknown event type", ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("%w: amount out of range", ErrValidation)
	ErrInvalidCurrency     = fmt.Errorf("%w: invalid currency code", ErrValidation)
	ErrInvalidMetadata     = fmt.Errorf("%w: metadata must be primitive types under 1MB", ErrValidation)
	ErrUnknownReferralCode = fmt.Errorf("%w: referral code does not resolve", ErrValidation)

	ErrDuplicateUser  = fmt.Errorf("%w: user id already registered", ErrSecurity)
	ErrDuplicateEmail = fmt.Errorf("%w: email already registered", ErrSecurity)

	ErrProfileNotFound     = errors.New("profile_not_found")
	ErrAttributionNotFound = errors.New("attribution_not_found")
)

type CreateProfileRequest struct {
	UserID         string
	Email          string
	Tier           Tier
	ReferredByCode string
	Metadata       map[string]any
}

type RecordRevenueRequest struct {
	UserID    string
	EventType EventType
	Amount    decimal.Decimal
	Currency  string
	Metadata  map[string]any
}

type ReferredUser struct {
	UserID    string    `json:"user_id"`
	Tier      Tier      `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

type ReferralStatsResponse struct {
	Profile         UserProfile     `json:"profile"`
	PendingBonusSum decimal.Decimal `json:"pending_bonus_sum"`
	ReferredUsers   []ReferredUser  `json:"referred_users"`
}

type TopReferrer struct {
	UserID                  string          `json:"user_id"`
	TotalReferrals          int64           `json:"total_referrals"`
	LifetimeReferralRevenue decimal.Decimal `json:"lifetime_referral_revenue"`
}

type FoundingStatsResponse struct {
	FoundingMemberCount    int64                    `json:"founding_member_count"`
	TotalFoundingReferrals int64                    `json:"total_founding_referrals"`
	TotalReferralRevenue   decimal.Decimal          `json:"total_referral_revenue"`
	RevenueByTier          map[Tier]decimal.Decimal `json:"revenue_by_tier"`
	TopReferrers           []TopReferrer            `json:"top_referrers"`
	Last30dEventCount      int64                    `json:"last_30d_event_count"`
	Last30dRevenueTotal    decimal.Decimal          `json:"last_30d_revenue_total"`
}

// Service is the referral/revenue ledger contract.
type Service interface {
	CreateUserProfile(ctx context.Context, req CreateProfileRequest) (*UserProfile, error)
	RecordRevenueEvent(ctx context.Context, req RecordRevenueRequest) (string, error)
	ReferralStats(ctx context.Context, userID string) (*ReferralStatsResponse, error)
	FoundingStats(ctx context.Context) (*FoundingStatsResponse, error)
	MarkAttributionPaid(ctx context.Context, eventID string) (bool, error)
	GetProfile(ctx context.Context, userID string) (*UserProfile, string, error)
}
