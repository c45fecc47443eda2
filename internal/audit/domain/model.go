package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActorTypeUser      = "user"
	ActorTypeScheduler = "scheduler"
	ActorTypeSystem    = "system"

	TargetTypeDelistingJob = "delisting_job"
	TargetTypeListing      = "listing"
	TargetTypeSaleEvent    = "sale_event"

	ActionJobScheduled   = "delisting.job.scheduled"
	ActionJobCompleted   = "delisting.job.completed"
	ActionDelistSuccess  = "delisting.marketplace.success"
	ActionDelistFailure  = "delisting.marketplace.failure"
	ActionListingSold    = "listing.sold"
	ActionJobConfirmed   = "delisting.job.confirmed"
	ActionJobRetried     = "delisting.job.retried"
	ActionEventRecorded  = "sale_event.recorded"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID     snowflake.ID      `json:"user_id" gorm:"not null;index:ix_audit_logs_user_created,priority:1"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null;index"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text;index"`
	Metadata   datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_audit_logs_user_created,priority:2,sort:desc"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	UserID     snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
