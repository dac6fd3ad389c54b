package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Error taxonomy. Specific failures wrap one of the three classes so
// callers can branch with errors.Is.
var (
	ErrValidation  = errors.New("validation_error")
	ErrRateLimited = errors.New("rate_limited")
	ErrStorage     = errors.New("storage_error")

	ErrInvalidType     = fmt.Errorf("%w: unknown alert type", ErrValidation)
	ErrInvalidSeverity = fmt.Errorf("%w: unknown severity", ErrValidation)
	ErrInvalidStatus   = fmt.Errorf("%w: unknown status", ErrValidation)
	ErrEmptySource     = fmt.Errorf("%w: source is required", ErrValidation)
	ErrEmptyTitle      = fmt.Errorf("%w: title is required", ErrValidation)
	ErrEmptyMessage    = fmt.Errorf("%w: message is required", ErrValidation)
	ErrInvalidMetadata = fmt.Errorf("%w: metadata must be primitive types under 1MB", ErrValidation)
	ErrInvalidMetric   = fmt.Errorf("%w: metric type is required", ErrValidation)

	ErrBackupUnsupported = errors.New("backup_unsupported")
)

// QueryLimitCap bounds the rows one Query call may return.
const QueryLimitCap = 10000

type CreateAlertRequest struct {
	Type     AlertType
	Severity Severity
	Source   string
	Title    string
	Message  string
	Metadata map[string]any
}

type QueryRequest struct {
	Status   Status
	Type     AlertType
	Severity Severity
	Source   string
	Since    *time.Time
	Limit    int
	Offset   int
}

type Stats struct {
	Total      int64            `json:"total"`
	Last24h    int64            `json:"last_24h"`
	ByStatus   map[Status]int64 `json:"by_status"`
	ByType     map[AlertType]int64
	BySeverity map[Severity]int64
}

type IntegrityReport struct {
	StructuralOK  bool     `json:"structural_ok"`
	ForeignKeyOK  bool     `json:"foreign_key_ok"`
	ConsistencyOK bool     `json:"consistency_ok"`
	Errors        []string `json:"errors,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

func (r IntegrityReport) OK() bool {
	return r.StructuralOK && r.ForeignKeyOK && r.ConsistencyOK
}

// Service is the durable alert store contract.
type Service interface {
	CreateAlert(ctx context.Context, req CreateAlertRequest) (snowflake.ID, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status, comment string) (bool, error)
	Query(ctx context.Context, req QueryRequest) ([]Alert, error)
	RecordMetric(ctx context.Context, metricType string, value float64, unit, source string) error
	Stats(ctx context.Context) (Stats, error)
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
	Backup(ctx context.Context, path string) error
	Optimize(ctx context.Context) error
	ValidateIntegrity(ctx context.Context) (IntegrityReport, error)

	ListRules(ctx context.Context, enabledOnly bool) ([]ThresholdRule, error)
	SaveRule(ctx context.Context, rule ThresholdRule) error
	MarkRuleFired(ctx context.Context, name string, firedAt time.Time) error
}
