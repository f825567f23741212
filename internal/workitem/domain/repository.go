package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// BillableFilter selects unbilled, active work items outside the excluded categories.
type BillableFilter struct {
	CustomerID         snowflake.ID
	PeriodStart        time.Time
	PeriodEnd          time.Time
	ExcludedCategories []string
}

type ListFilter struct {
	CustomerID snowflake.ID
	Status     Status
	Unbilled   bool
	StartDate  *time.Time
	EndDate    *time.Time
	AfterID    snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, items ...*WorkItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WorkItem, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WorkItem, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]WorkItem, error)
	FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]WorkItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*WorkItem, error)
	ListBillable(ctx context.Context, db *gorm.DB, filter BillableFilter) ([]WorkItem, error)
	ExistingExternalRefs(ctx context.Context, db *gorm.DB, customerID snowflake.ID, refs []string) (map[string]struct{}, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, now time.Time) error
	// LinkToInvoice claims only rows that are still unbilled and returns how many were claimed.
	LinkToInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, ids []snowflake.ID, now time.Time) (int64, error)
	Unlink(ctx context.Context, db *gorm.DB, invoiceID, id snowflake.ID, now time.Time) (int64, error)
	UnlinkInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error)
}
