// Package sequence allocates invoice numbers of the form PREFIX-YYYY-NNN.
//
// Allocation reads the highest number of the series-year and adds one, so it must run in
// the transaction that inserts the invoice. Two concurrent generators can still read the
// same maximum; the unique index on invoice_number plus a single retry in the caller
// resolve that, and the optional SeriesLock keeps it rare.
package sequence

import (
	"context"
	"fmt"
	"time"

	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/invoice/format"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Allocator struct {
	template string
}

func NewAllocator() *Allocator {
	return &Allocator{template: format.DefaultInvoiceNumberTemplate}
}

// LockKey names the lock guarding one series-year.
func LockKey(series string, year int) string {
	return fmt.Sprintf("%s:%04d", series, year)
}

// Next returns the number following the highest existing one for series and year.
func (a *Allocator) Next(ctx context.Context, tx *gorm.DB, series string, year int) (string, error) {
	var numbers []string
	err := tx.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_number LIKE ?", format.SeriesPrefix(series, year)+"%").
		Pluck("invoice_number", &numbers).Error
	if err != nil {
		return "", err
	}

	var highest int64
	for _, number := range numbers {
		if seq, ok := format.ParseSequence(number, series, year); ok && seq > highest {
			highest = seq
		}
	}

	issued := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return format.FormatInvoiceNumber(a.template, series, issued, highest+1)
}
