// Package domain contains persistence models for invoicing.
package domain

import (
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/hourbill/internal/pricing/calculator"
	pricingdomain "github.com/smallbiznis/hourbill/internal/pricing/domain"
	"gorm.io/datatypes"
)

// ItemType groups invoice lines into export sections.
type ItemType string

const (
	ItemTypeSupport ItemType = "support"
	ItemTypeProject ItemType = "project"
	ItemTypeHosting ItemType = "hosting"
	ItemTypeOther   ItemType = "other"
)

// ItemTypes is the section order used by exports.
var ItemTypes = []ItemType{ItemTypeSupport, ItemTypeProject, ItemTypeHosting, ItemTypeOther}

func ParseItemType(value string) (ItemType, bool) {
	t := ItemType(value)
	if slices.Contains(ItemTypes, t) {
		return t, true
	}
	return "", false
}

// BillingSnapshot freezes the policy and breakdown an invoice was generated with.
type BillingSnapshot struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Breakdown   calculator.Breakdown `json:"breakdown"`
}

// Invoice represents a generated invoice.
type Invoice struct {
	ID              snowflake.ID                        `gorm:"primaryKey" json:"id"`
	CustomerID      snowflake.ID                        `gorm:"not null;index" json:"customer_id"`
	InvoiceNumber   string                              `gorm:"type:varchar(64);not null;uniqueIndex" json:"invoice_number"`
	PeriodStart     time.Time                           `gorm:"not null" json:"period_start"`
	PeriodEnd       time.Time                           `gorm:"not null" json:"period_end"`
	InvoiceDate     time.Time                           `gorm:"not null" json:"invoice_date"`
	DueDate         time.Time                           `gorm:"not null;index" json:"due_date"`
	Status          Status                              `gorm:"type:varchar(16);not null;index" json:"status"`
	Subtotal        decimal.Decimal                     `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	TaxRate         decimal.Decimal                     `gorm:"type:numeric(8,4);not null" json:"tax_rate"`
	TaxAmount       decimal.Decimal                     `gorm:"type:numeric(14,2);not null" json:"tax_amount"`
	Total           decimal.Decimal                     `gorm:"type:numeric(14,2);not null" json:"total"`
	AmountPaid      decimal.Decimal                     `gorm:"type:numeric(14,2);not null" json:"amount_paid"`
	PaymentDate     *time.Time                          `json:"payment_date,omitempty"`
	Notes           string                              `json:"notes"`
	BillingSnapshot datatypes.JSONType[BillingSnapshot] `json:"billing_snapshot"`
	SentAt          *time.Time                          `json:"sent_at,omitempty"`
	CreatedAt       time.Time                           `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                           `gorm:"not null" json:"updated_at"`

	Items []InvoiceItem `gorm:"-" json:"items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Balance is what remains to be collected.
func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

// InvoiceItem represents a line on an invoice. Informational rows carry a zero amount.
type InvoiceItem struct {
	ID          snowflake.ID                      `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID                      `gorm:"not null;index" json:"invoice_id"`
	ItemType    ItemType                          `gorm:"type:varchar(16);not null" json:"item_type"`
	Tier        pricingdomain.Tier                `gorm:"type:varchar(16)" json:"tier,omitempty"`
	Adjustment  bool                              `gorm:"not null" json:"adjustment"`
	Description string                            `gorm:"not null" json:"description"`
	Quantity    decimal.Decimal                   `gorm:"type:numeric(12,2);not null" json:"quantity"`
	UnitPrice   decimal.Decimal                   `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Amount      decimal.Decimal                   `gorm:"type:numeric(14,2);not null" json:"amount"`
	SortOrder   int                               `gorm:"not null" json:"sort_order"`
	RequestIDs  datatypes.JSONSlice[snowflake.ID] `json:"request_ids"`
	CreatedAt   time.Time                         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time                         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// Generated reports whether the row was derived from pricing tiers rather than entered manually.
func (i InvoiceItem) Generated() bool {
	return i.ItemType == ItemTypeSupport && (i.Tier != "" || i.Adjustment)
}

// Totals is the derived money state of an invoice.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
}

// ComputeTotals sums positive item amounts and applies the flat tax rate.
func ComputeTotals(items []InvoiceItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		if item.Amount.IsPositive() {
			subtotal = subtotal.Add(item.Amount)
		}
	}
	subtotal = calculator.RoundMoney(subtotal)
	tax := calculator.RoundMoney(subtotal.Mul(taxRate))
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}
