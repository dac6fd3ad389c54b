package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Tier string

const (
	TierFounding   Tier = "founding"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
	TierFree       Tier = "free"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFounding, TierPro, TierEnterprise, TierFree:
		return true
	}
	return false
}

type EventType string

const (
	EventSubscription  EventType = "subscription"
	EventUpgrade       EventType = "upgrade"
	EventRenewal       EventType = "renewal"
	EventReferralBonus EventType = "referral_bonus"
)

func (t EventType) Valid() bool {
	switch t {
	case EventSubscription, EventUpgrade, EventRenewal, EventReferralBonus:
		return true
	}
	return false
}

type AttributionStatus string

const (
	AttributionPending AttributionStatus = "pending"
	AttributionPaid    AttributionStatus = "paid"
	AttributionFailed  AttributionStatus = "failed"
)

// ReferralBonusRate is the share of a revenue event credited to the
// referrer, rounded to two decimal places per currency convention.
var ReferralBonusRate = decimal.RequireFromString("0.10")

// LargeAmountThreshold is the revenue amount at which an alert is raised.
var LargeAmountThreshold = decimal.RequireFromString("100")

// UserProfile holds one user's referral state. The email is encrypted at
// rest; EmailHash is its keyed digest used for uniqueness checks.
type UserProfile struct {
	ID                      snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID                  string            `gorm:"type:text;not null;uniqueIndex" json:"user_id"`
	EmailEncrypted          string            `gorm:"type:text;not null" json:"-"`
	EmailHash               string            `gorm:"type:text;not null;uniqueIndex" json:"-"`
	Tier                    Tier              `gorm:"type:text;not null;default:'free'" json:"tier"`
	FoundingMember          bool              `gorm:"not null;default:false" json:"founding_member"`
	ReferralCode            string            `gorm:"type:text;not null;uniqueIndex" json:"referral_code"`
	ReferredBy              string            `gorm:"type:text;index" json:"referred_by,omitempty"`
	TotalReferrals          int64             `gorm:"not null;default:0" json:"total_referrals"`
	LifetimeReferralRevenue decimal.Decimal   `gorm:"type:numeric;not null;default:0" json:"lifetime_referral_revenue"`
	Metadata                datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt               time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt               time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (UserProfile) TableName() string { return "user_profiles" }

// RevenueEvent is immutable once written.
type RevenueEvent struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	EventID       string            `gorm:"type:text;not null;uniqueIndex" json:"event_id"`
	UserID        string            `gorm:"type:text;not null;index" json:"user_id"`
	EventType     EventType         `gorm:"type:text;not null" json:"event_type"`
	Amount        decimal.Decimal   `gorm:"type:numeric;not null" json:"amount"`
	Currency      string            `gorm:"type:text;not null" json:"currency"`
	ReferrerID    string            `gorm:"type:text;index" json:"referrer_id,omitempty"`
	ReferralBonus *decimal.Decimal  `gorm:"type:numeric" json:"referral_bonus,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;index;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RevenueEvent) TableName() string { return "revenue_events" }

// ReferralAttribution links a revenue event to the referrer credited for it.
// Written atomically alongside its RevenueEvent.
type ReferralAttribution struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	EventID        string            `gorm:"type:text;not null;index" json:"event_id"`
	ReferrerID     string            `gorm:"type:text;not null;index" json:"referrer_id"`
	ReferredUserID string            `gorm:"type:text;not null" json:"referred_user_id"`
	BonusAmount    decimal.Decimal   `gorm:"type:numeric;not null" json:"bonus_amount"`
	Status         AttributionStatus `gorm:"type:text;not null;default:'pending'" json:"status"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ReferralAttribution) TableName() string { return "referral_attributions" }
