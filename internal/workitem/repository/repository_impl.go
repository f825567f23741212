package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hourbill/internal/workitem/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, items ...*domain.WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WorkItem, error) {
	return r.find(db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WorkItem, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) find(stmt *gorm.DB, id snowflake.ID) (*domain.WorkItem, error) {
	var item domain.WorkItem
	err := stmt.Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	if len(ids) == 0 {
		return items, nil
	}
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("date asc, id asc").
		Find(&items).Error
	return items, err
}

func (r *repo) FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("date asc, id asc").
		Find(&items).Error
	return items, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.WorkItem, error) {
	var items []*domain.WorkItem
	stmt := db.WithContext(ctx).Model(&domain.WorkItem{})
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Unbilled {
		stmt = stmt.Where("invoice_id IS NULL")
	}
	if filter.StartDate != nil {
		stmt = stmt.Where("date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		stmt = stmt.Where("date <= ?", *filter.EndDate)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id < ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Order("id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListBillable(ctx context.Context, db *gorm.DB, filter domain.BillableFilter) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	stmt := db.WithContext(ctx).
		Where("customer_id = ?", filter.CustomerID).
		Where("date >= ? AND date <= ?", filter.PeriodStart, filter.PeriodEnd).
		Where("status = ?", domain.StatusActive).
		Where("invoice_id IS NULL")
	if excluded := lowerAll(filter.ExcludedCategories); len(excluded) > 0 {
		stmt = stmt.Where("LOWER(category) NOT IN ?", excluded)
	}
	err := stmt.Order("date asc, id asc").Find(&items).Error
	return items, err
}

// lowerAll folds category names so exclusion ignores case.
func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (r *repo) ExistingExternalRefs(ctx context.Context, db *gorm.DB, customerID snowflake.ID, refs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(refs))
	if len(refs) == 0 {
		return existing, nil
	}
	var found []string
	err := db.WithContext(ctx).
		Model(&domain.WorkItem{}).
		Where("customer_id = ? AND external_ref IN ?", customerID, refs).
		Pluck("external_ref", &found).Error
	if err != nil {
		return nil, err
	}
	for _, ref := range found {
		existing[ref] = struct{}{}
	}
	return existing, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.WorkItem{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": now}).Error
}

func (r *repo) LinkToInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, ids []snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.WorkItem{}).
		Where("id IN ? AND invoice_id IS NULL", ids).
		Updates(map[string]any{"invoice_id": invoiceID, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (r *repo) Unlink(ctx context.Context, db *gorm.DB, invoiceID, id snowflake.ID, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.WorkItem{}).
		Where("id = ? AND invoice_id = ?", id, invoiceID).
		Updates(map[string]any{"invoice_id": nil, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (r *repo) UnlinkInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.WorkItem{}).
		Where("invoice_id = ?", invoiceID).
		Updates(map[string]any{"invoice_id": nil, "updated_at": now})
	return res.RowsAffected, res.Error
}
