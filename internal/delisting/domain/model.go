package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusProcessing      JobStatus = "processing"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusPartiallyFailed JobStatus = "partially_failed"
	JobStatusFailed          JobStatus = "failed"
)

// SuccessDetail records one marketplace's successful delist.
type SuccessDetail struct {
	DelistedAt       time.Time       `json:"delisted_at"`
	DurationMs       int64           `json:"duration_ms"`
	ExternalResponse json.RawMessage `json:"external_response,omitempty"`
}

// ErrorDetail records one marketplace's delist failure.
type ErrorDetail struct {
	Code              ErrorCode `json:"code"`
	Message           string    `json:"message"`
	Permanent         bool      `json:"permanent"`
	RetryAfterSeconds int64     `json:"retry_after_seconds,omitempty"`
	DurationMs        int64     `json:"duration_ms"`
}

// DelistingJob is the unit of cross-marketplace cleanup work. Jobs only
// move forward (pending, processing, then a terminal status); the retry
// manager may reset failed and partially_failed jobs to pending while
// retries remain.
type DelistingJob struct {
	ID                       snowflake.ID                                 `json:"id" gorm:"primaryKey"`
	UserID                   snowflake.ID                                 `json:"user_id" gorm:"not null;index"`
	InventoryItemID          snowflake.ID                                 `json:"inventory_item_id" gorm:"not null;index"`
	SourceEventID            *snowflake.ID                                `json:"source_event_id,omitempty" gorm:"index"`
	SourceMarketplace        marketplacedomain.Type                       `json:"source_marketplace" gorm:"type:text;not null"`
	Status                   JobStatus                                    `json:"status" gorm:"type:text;not null;default:pending;index"`
	MarketplacesTargeted     datatypes.JSONSlice[string]                  `json:"marketplaces_targeted" gorm:"not null"`
	MarketplacesCompleted    datatypes.JSONSlice[string]                  `json:"marketplaces_completed"`
	MarketplacesFailed       datatypes.JSONSlice[string]                  `json:"marketplaces_failed"`
	RequiresUserConfirmation bool                                         `json:"requires_user_confirmation" gorm:"not null;default:false"`
	UserConfirmedAt          *time.Time                                   `json:"user_confirmed_at,omitempty"`
	ScheduledFor             time.Time                                    `json:"scheduled_for" gorm:"not null;index"`
	RetryCount               int                                          `json:"retry_count" gorm:"not null;default:0"`
	MaxRetries               int                                          `json:"max_retries" gorm:"not null;default:3"`
	SuccessLog               datatypes.JSONType[map[string]SuccessDetail] `json:"success_log"`
	ErrorLog                 datatypes.JSONType[map[string]ErrorDetail]   `json:"error_log"`
	TotalDelisted            int                                          `json:"total_delisted" gorm:"not null;default:0"`
	TotalFailed              int                                          `json:"total_failed" gorm:"not null;default:0"`
	StartedAt                *time.Time                                   `json:"started_at,omitempty"`
	CompletedAt              *time.Time                                   `json:"completed_at,omitempty"`
	CreatedAt                time.Time                                    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                time.Time                                    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

func (DelistingJob) TableName() string { return "delisting_jobs" }

func (j *DelistingJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusPartiallyFailed, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Retryable reports whether the retry manager may reset this job.
func (j *DelistingJob) Retryable() bool {
	if j.Status != JobStatusFailed && j.Status != JobStatusPartiallyFailed {
		return false
	}
	return j.RetryCount < j.MaxRetries
}

// AwaitingConfirmation reports whether execution is blocked on the user.
func (j *DelistingJob) AwaitingConfirmation() bool {
	return j.RequiresUserConfirmation && j.UserConfirmedAt == nil
}

// TargetedTypes parses the targeted marketplace tags.
func (j *DelistingJob) TargetedTypes() []marketplacedomain.Type {
	out := make([]marketplacedomain.Type, 0, len(j.MarketplacesTargeted))
	for _, tag := range j.MarketplacesTargeted {
		out = append(out, marketplacedomain.Type(tag))
	}
	return out
}
