package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	"github.com/smallbiznis/hourbill/internal/pricing/calculator"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"gorm.io/gorm"
)

type BillingSummaryRequest struct {
	CustomerID  string `form:"customerId" json:"customer_id"`
	PeriodStart string `form:"periodStart" json:"period_start"`
	PeriodEnd   string `form:"periodEnd" json:"period_end"`
}

// BillingSummary is a preview of what generating an invoice would bill.
type BillingSummary struct {
	CustomerID  snowflake.ID         `json:"customer_id"`
	PeriodStart time.Time            `json:"period_start"`
	PeriodEnd   time.Time            `json:"period_end"`
	Breakdown   calculator.Breakdown `json:"breakdown"`
	RequestIDs  []snowflake.ID       `json:"request_ids"`
}

// AdditionalItem is a manual line supplied at generation time.
type AdditionalItem struct {
	ItemType    string `json:"item_type"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type GenerateInvoiceRequest struct {
	CustomerID      string           `json:"customer_id"`
	PeriodStart     string           `json:"period_start"`
	PeriodEnd       string           `json:"period_end"`
	InvoiceDate     *string          `json:"invoice_date"`
	DueDate         *string          `json:"due_date"`
	TaxRate         *string          `json:"tax_rate"`
	Notes           string           `json:"notes"`
	AdditionalItems []AdditionalItem `json:"additional_items"`
}

type UpdateItemRequest struct {
	Description *string `json:"description"`
	Quantity    *string `json:"quantity"`
	UnitPrice   *string `json:"unit_price"`
}

// UpdateInvoiceRequest lists the only fields an invoice update may touch.
type UpdateInvoiceRequest struct {
	Status      *string `json:"status"`
	Notes       *string `json:"notes"`
	AmountPaid  *string `json:"amount_paid"`
	PaymentDate *string `json:"payment_date"`
	DueDate     *string `json:"due_date"`
	TaxRate     *string `json:"tax_rate"`
}

type PayInvoiceRequest struct {
	AmountPaid  *string `json:"amount_paid"`
	PaymentDate *string `json:"payment_date"`
}

type ListInvoiceRequest struct {
	CustomerID string `form:"customerId"`
	Status     string `form:"status"`
	StartDate  string `form:"startDate"`
	EndDate    string `form:"endDate"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

type ListFilter struct {
	CustomerID snowflake.ID
	Status     Status
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
	Total    int64     `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// InvoiceDetail is an invoice with its items, customer and linked work items loaded.
type InvoiceDetail struct {
	Invoice  Invoice                   `json:"invoice"`
	Customer customerdomain.Customer   `json:"customer"`
	Requests []workitemdomain.WorkItem `json:"requests"`
}

type Service interface {
	GenerateBillingSummary(ctx context.Context, req BillingSummaryRequest) (BillingSummary, error)
	GenerateInvoice(ctx context.Context, req GenerateInvoiceRequest) (Invoice, error)
	GetInvoice(ctx context.Context, id string) (InvoiceDetail, error)
	ListInvoices(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	UpdateInvoice(ctx context.Context, id string, req UpdateInvoiceRequest) (Invoice, error)
	UpdateInvoiceItem(ctx context.Context, invoiceID, itemID string, req UpdateItemRequest) (Invoice, error)
	LinkRequest(ctx context.Context, invoiceID, requestID string) (Invoice, error)
	UnlinkRequest(ctx context.Context, invoiceID, requestID string) (Invoice, error)
	ListUnbilledRequests(ctx context.Context, invoiceID string) ([]workitemdomain.WorkItem, error)
	SendInvoice(ctx context.Context, id string) (Invoice, error)
	PayInvoice(ctx context.Context, id string, req PayInvoiceRequest) (Invoice, error)
	RepriceInvoice(ctx context.Context, id string) (Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error
	RecalculateTotals(ctx context.Context, id string) (Invoice, error)
	SweepOverdue(ctx context.Context) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, int64, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	UpdateItem(ctx context.Context, db *gorm.DB, item *InvoiceItem) error
	DeleteItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, ids []snowflake.ID) error
	DeleteAllItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	MarkOverdue(ctx context.Context, db *gorm.DB, today, now time.Time) (int64, error)
}
