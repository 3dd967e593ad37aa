package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Customer struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`
	// ExternalID carries the caller's own identifier for the customer, e.g.
	// a CRM record id. Optional; empty when the caller has none.
	ExternalID string            `gorm:"not null;default:'';index" json:"external_id,omitempty"`
	Name       string            `gorm:"not null" json:"name"`
	Email      string            `gorm:"not null" json:"email"`
	Currency   string            `gorm:"not null" json:"currency"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

// Project is a provider account whose raw cost rows are keyed by ProjectID.
type Project struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID string       `gorm:"uniqueIndex;not null" json:"project_id"`
	Name      string       `gorm:"not null" json:"name"`
	Provider  string       `gorm:"not null" json:"provider"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

type BindingStatus string

const (
	BindingActive   BindingStatus = "ACTIVE"
	BindingInactive BindingStatus = "INACTIVE"
)

// ProjectBinding assigns a project's cost to a customer. At most one binding
// per project may be ACTIVE at a time.
type ProjectBinding struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	ProjectID  string        `gorm:"not null;index" json:"project_id"`
	CustomerID snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	Status     BindingStatus `gorm:"not null" json:"status"`
	BoundAt    time.Time     `gorm:"not null" json:"bound_at"`
	UnboundAt  *time.Time    `json:"unbound_at,omitempty"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ProjectBinding) TableName() string {
	return "project_bindings"
}
