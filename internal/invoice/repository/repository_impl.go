package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hourbill/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) find(stmt *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := stmt.Where("id = ?", id).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, int64, error) {
	scope := func(tx *gorm.DB) *gorm.DB {
		if filter.CustomerID != 0 {
			tx = tx.Where("customer_id = ?", filter.CustomerID)
		}
		if filter.Status != "" {
			tx = tx.Where("status = ?", filter.Status)
		}
		if filter.StartDate != nil {
			tx = tx.Where("invoice_date >= ?", *filter.StartDate)
		}
		if filter.EndDate != nil {
			tx = tx.Where("invoice_date <= ?", *filter.EndDate)
		}
		return tx
	}

	var total int64
	if err := db.WithContext(ctx).Model(&domain.Invoice{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []domain.Invoice
	err := db.WithContext(ctx).
		Scopes(scope).
		Order("invoice_date desc, id desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("sort_order asc, id asc").
		Find(&items).Error
	return items, err
}

func (r *repo) UpdateItem(ctx context.Context, db *gorm.DB, item *domain.InvoiceItem) error {
	return db.WithContext(ctx).
		Model(&domain.InvoiceItem{}).
		Where("id = ? AND invoice_id = ?", item.ID, item.InvoiceID).
		Updates(map[string]any{
			"description": item.Description,
			"quantity":    item.Quantity,
			"unit_price":  item.UnitPrice,
			"amount":      item.Amount,
			"request_ids": item.RequestIDs,
			"sort_order":  item.SortOrder,
			"updated_at":  item.UpdatedAt,
		}).Error
}

func (r *repo) DeleteItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("invoice_id = ? AND id IN ?", invoiceID, ids).
		Delete(&domain.InvoiceItem{}).Error
}

func (r *repo) DeleteAllItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Delete(&domain.InvoiceItem{}).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Invoice{}).Error
}

// MarkOverdue flips every sent invoice due before today in one statement.
func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, today, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("status = ? AND due_date < ?", domain.StatusSent, today).
		Updates(map[string]any{"status": domain.StatusOverdue, "updated_at": now})
	return res.RowsAffected, res.Error
}
