package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "HIGH"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyLow    Urgency = "LOW"
)

// ParseUrgency accepts any casing; ok is false for unknown values.
func ParseUrgency(value string) (Urgency, bool) {
	switch Urgency(strings.ToUpper(strings.TrimSpace(value))) {
	case UrgencyHigh:
		return UrgencyHigh, true
	case UrgencyMedium:
		return UrgencyMedium, true
	case UrgencyLow:
		return UrgencyLow, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
	StatusIgnored Status = "ignored"
)

func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusActive:
		return StatusActive, true
	case StatusDeleted:
		return StatusDeleted, true
	case StatusIgnored:
		return StatusIgnored, true
	default:
		return "", false
	}
}

type Source string

const (
	SourceManual Source = "manual"
	SourceImport Source = "import"
)

// WorkItem is a unit of support work. A nil InvoiceID means unbilled.
type WorkItem struct {
	ID             snowflake.ID        `gorm:"primaryKey" json:"id"`
	CustomerID     snowflake.ID        `gorm:"not null;index" json:"customer_id"`
	Date           time.Time           `gorm:"not null;index" json:"date"`
	Description    string              `gorm:"not null" json:"description"`
	Category       string              `gorm:"type:varchar(64);not null" json:"category"`
	Urgency        Urgency             `gorm:"type:varchar(8);not null" json:"urgency"`
	EstimatedHours decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"estimated_hours"`
	Status         Status              `gorm:"type:varchar(16);not null;index" json:"status"`
	Source         Source              `gorm:"type:varchar(16);not null" json:"source"`
	ExternalRef    *string             `gorm:"type:varchar(128);index" json:"external_ref,omitempty"`
	InvoiceID      *snowflake.ID       `gorm:"index" json:"invoice_id,omitempty"`
	CreatedAt      time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"not null" json:"updated_at"`
}

func (w WorkItem) Billed() bool {
	return w.InvoiceID != nil && *w.InvoiceID != 0
}
