package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/hourbill/internal/clock"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// invoiceUpdate is a parsed UpdateInvoiceRequest.
type invoiceUpdate struct {
	status      *invoicedomain.Status
	notes       *string
	amountPaid  *decimal.Decimal
	paymentDate *time.Time
	dueDate     *time.Time
	taxRate     *decimal.Decimal
}

func parseInvoiceUpdate(req invoicedomain.UpdateInvoiceRequest) (invoiceUpdate, error) {
	var out invoiceUpdate
	if req.Status != nil {
		status, ok := invoicedomain.ParseStatus(*req.Status)
		if !ok {
			return invoiceUpdate{}, invoicedomain.ErrInvalidStatus
		}
		out.status = &status
	}
	if req.Notes != nil {
		notes := strings.TrimSpace(*req.Notes)
		out.notes = &notes
	}
	var err error
	if out.amountPaid, err = optionalNonNegative(req.AmountPaid, invoicedomain.ErrInvalidAmount); err != nil {
		return invoiceUpdate{}, err
	}
	if out.paymentDate, err = parseOptionalDate(req.PaymentDate); err != nil {
		return invoiceUpdate{}, err
	}
	if out.dueDate, err = parseOptionalDate(req.DueDate); err != nil {
		return invoiceUpdate{}, err
	}
	if req.TaxRate != nil {
		rate, err := parseTaxRate(*req.TaxRate)
		if err != nil {
			return invoiceUpdate{}, err
		}
		out.taxRate = &rate
	}
	return out, nil
}

// UpdateInvoice applies a whitelisted set of header changes. Status moves through the
// state machine, and the tax rate can only change while the invoice is a draft.
func (s *Service) UpdateInvoice(ctx context.Context, rawID string, req invoicedomain.UpdateInvoiceRequest) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "update", attribute.String("invoice_id", rawID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.update", rawID, err)
		}
	}()

	id, err := parseID(rawID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	update, err := parseInvoiceUpdate(req)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var previous invoicedomain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		previous = locked.Status
		if update.taxRate != nil && !locked.Status.Editable() {
			return invoicedomain.ErrNotDraft
		}

		now := s.clock.Now()
		fields := map[string]any{}
		if update.status != nil {
			next, err := locked.Status.TransitionTo(*update.status)
			if err != nil {
				return err
			}
			if next != locked.Status {
				s.applyTransition(locked, next, now, fields)
			}
		}
		if update.notes != nil {
			locked.Notes = *update.notes
			fields["notes"] = locked.Notes
		}
		if update.amountPaid != nil {
			locked.AmountPaid = *update.amountPaid
			fields["amount_paid"] = locked.AmountPaid
		}
		if update.paymentDate != nil {
			locked.PaymentDate = update.paymentDate
			fields["payment_date"] = *update.paymentDate
		}
		if update.dueDate != nil {
			if update.dueDate.Before(locked.InvoiceDate) {
				return invoicedomain.ErrInvalidDate
			}
			locked.DueDate = *update.dueDate
			fields["due_date"] = locked.DueDate
		}
		if update.taxRate != nil {
			locked.TaxRate = *update.taxRate
			fields["tax_rate"] = locked.TaxRate
		}
		if len(fields) > 0 {
			fields["updated_at"] = now
			if err := s.repo.Update(ctx, tx, id, fields); err != nil {
				return err
			}
			locked.UpdatedAt = now
		}

		if err := s.recalculate(ctx, tx, locked); err != nil {
			return err
		}
		invoice = *locked
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.auditInvoice(ctx, "invoice.update", &invoice, map[string]any{"previous_status": string(previous)})
	return invoice, nil
}

// applyTransition records the side fields each target status implies.
func (s *Service) applyTransition(invoice *invoicedomain.Invoice, next invoicedomain.Status, now time.Time, fields map[string]any) {
	invoice.Status = next
	fields["status"] = next
	switch next {
	case invoicedomain.StatusSent:
		invoice.SentAt = &now
		fields["sent_at"] = now
	case invoicedomain.StatusPaid:
		if invoice.AmountPaid.IsZero() {
			invoice.AmountPaid = invoice.Total
			fields["amount_paid"] = invoice.Total
		}
		if invoice.PaymentDate == nil {
			today := clock.Today(s.clock)
			invoice.PaymentDate = &today
			fields["payment_date"] = today
		}
	}
}

func (s *Service) SendInvoice(ctx context.Context, rawID string) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "send", attribute.String("invoice_id", rawID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.send", rawID, err)
		}
	}()

	id, err := parseID(rawID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := locked.Status.Send()
		if err != nil {
			return err
		}
		now := s.clock.Now()
		fields := map[string]any{"updated_at": now}
		s.applyTransition(locked, next, now, fields)
		if err := s.repo.Update(ctx, tx, id, fields); err != nil {
			return err
		}
		locked.UpdatedAt = now
		invoice = *locked
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.auditInvoice(ctx, "invoice.send", &invoice, nil)
	return invoice, nil
}

// PayInvoice marks a sent or overdue invoice paid. Amount defaults to the total and the
// payment date to today.
func (s *Service) PayInvoice(ctx context.Context, rawID string, req invoicedomain.PayInvoiceRequest) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "pay", attribute.String("invoice_id", rawID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.pay", rawID, err)
		}
	}()

	id, err := parseID(rawID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	amount, err := optionalNonNegative(req.AmountPaid, invoicedomain.ErrInvalidAmount)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	paidOn, err := parseOptionalDate(req.PaymentDate)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := locked.Status.MarkPaid()
		if err != nil {
			return err
		}

		if amount == nil {
			amount = &locked.Total
		}
		if paidOn == nil {
			today := clock.Today(s.clock)
			paidOn = &today
		}
		now := s.clock.Now()
		locked.Status = next
		locked.AmountPaid = *amount
		locked.PaymentDate = paidOn
		locked.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, id, map[string]any{
			"status":       next,
			"amount_paid":  *amount,
			"payment_date": *paidOn,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		invoice = *locked
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.auditInvoice(ctx, "invoice.pay", &invoice, map[string]any{
		"amount_paid": invoice.AmountPaid.StringFixed(2),
	})
	return invoice, nil
}
