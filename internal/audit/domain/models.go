package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type AuditLog struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType     string            `gorm:"type:varchar(32);not null" json:"actor_type"`
	ActorID       *string           `json:"actor_id,omitempty"`
	Action        string            `gorm:"type:varchar(64);not null;index" json:"action"`
	ResourceType  string            `gorm:"type:varchar(32);not null" json:"resource_type"`
	ResourceID    *string           `gorm:"index" json:"resource_id,omitempty"`
	Outcome       string            `gorm:"type:varchar(16);not null" json:"outcome"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID     *string           `json:"request_id,omitempty"`
	CorrelationID *string           `json:"correlation_id,omitempty"`
	IPAddress     *string           `json:"ip_address,omitempty"`
	UserAgent     *string           `json:"user_agent,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
