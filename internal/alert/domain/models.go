package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AlertType string

const (
	TypeSystemHealth AlertType = "system_health"
	TypeSecurity     AlertType = "security"
	TypePerformance  AlertType = "performance"
	TypeNotification AlertType = "notification"
	TypeAudit        AlertType = "audit"
	TypeThreshold    AlertType = "threshold"
	TypeReferral     AlertType = "referral"
	TypeRevenue      AlertType = "revenue"
)

func (t AlertType) Valid() bool {
	switch t {
	case TypeSystemHealth, TypeSecurity, TypePerformance, TypeNotification,
		TypeAudit, TypeThreshold, TypeReferral, TypeRevenue:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityNormal, SeverityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusNew          Status = "new"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusSuppressed   Status = "suppressed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusAcknowledged, StatusResolved, StatusSuppressed:
		return true
	}
	return false
}

// CanTransitionTo reports whether an alert may move from s to next.
// Resolved is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s == StatusResolved {
		return next == StatusResolved
	}
	return true
}

const (
	MaxTitleLen   = 200
	MaxMessageLen = 5000
)

// Alert is a persisted record of a notable system, security or business
// event with a lifecycle.
type Alert struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Type      AlertType         `gorm:"type:text;not null;index" json:"type"`
	Severity  Severity          `gorm:"type:text;not null;index" json:"severity"`
	Status    Status            `gorm:"type:text;not null;index;default:'new'" json:"status"`
	Source    string            `gorm:"type:text;not null;index" json:"source"`
	Title     string            `gorm:"type:text;not null" json:"title"`
	Message   string            `gorm:"type:text;not null" json:"message"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Alert) TableName() string { return "alerts" }

// AlertAction is an immutable log entry describing a status transition.
type AlertAction struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	AlertID    snowflake.ID `gorm:"not null;index" json:"alert_id"`
	FromStatus Status       `gorm:"type:text;not null" json:"from_status"`
	ToStatus   Status       `gorm:"type:text;not null" json:"to_status"`
	Comment    string       `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AlertAction) TableName() string { return "alert_actions" }

type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual:
		return true
	}
	return false
}

// Compare applies the operator to (value, threshold).
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreater:
		return value > threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLess:
		return value < threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	}
	return false
}

// ThresholdRule is a named condition over a metric type that, when true and
// outside its cooldown, produces an alert. LastFiredAt is persisted so
// cooldowns survive restarts.
type ThresholdRule struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	MetricType      string       `gorm:"type:text;not null" json:"metric_type"`
	Operator        Operator     `gorm:"type:text;not null" json:"operator"`
	Threshold       float64      `gorm:"not null" json:"threshold"`
	Severity        Severity     `gorm:"type:text;not null" json:"severity"`
	CooldownSeconds int          `gorm:"not null" json:"cooldown_seconds"`
	Enabled         bool         `gorm:"not null;default:true" json:"enabled"`
	LastFiredAt     *time.Time   `json:"last_fired_at,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ThresholdRule) TableName() string { return "alert_rules" }

func (r ThresholdRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// MetricSample is an append-only, write-once measurement.
type MetricSample struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	MetricType string       `gorm:"type:text;not null;index:idx_alert_metrics_type_time,priority:1" json:"metric_type"`
	Value      float64      `gorm:"not null" json:"value"`
	Unit       string       `gorm:"type:text" json:"unit,omitempty"`
	Source     string       `gorm:"type:text;not null" json:"source"`
	CreatedAt  time.Time    `gorm:"not null;index:idx_alert_metrics_type_time,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (MetricSample) TableName() string { return "alert_metrics" }
