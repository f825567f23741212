package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Customer struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Name          string       `gorm:"not null" json:"name"`
	Email         string       `gorm:"not null" json:"email"`
	Phone         string       `json:"phone,omitempty"`
	Address       string       `json:"address,omitempty"`
	InvoicePrefix string       `gorm:"type:varchar(32);not null" json:"invoice_prefix"`
	PaymentTerms  int          `gorm:"not null" json:"payment_terms"`
	Active        bool         `gorm:"not null;index" json:"active"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}
