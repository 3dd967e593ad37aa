package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
	ActorTypeAPIKey ActorType = "api_key"
)

// AuditLog is an append-only record of a sensitive operation. Rows are never
// updated or deleted.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"not null;index" json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `gorm:"not null;index" json:"action"`
	TargetType string            `gorm:"not null;index" json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
