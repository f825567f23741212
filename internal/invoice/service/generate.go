package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/hourbill/internal/clock"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/invoice/sequence"
	"github.com/smallbiznis/hourbill/internal/pricing/calculator"
	pricingdomain "github.com/smallbiznis/hourbill/internal/pricing/domain"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	pkgdb "github.com/smallbiznis/hourbill/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const generateAttempts = 2

func (s *Service) GenerateBillingSummary(ctx context.Context, req invoicedomain.BillingSummaryRequest) (summary invoicedomain.BillingSummary, err error) {
	ctx, op := s.begin(ctx, "billing_summary")
	defer func() { err = s.end(ctx, op, err) }()

	customerID, err := parseID(req.CustomerID, invoicedomain.ErrInvalidCustomer)
	if err != nil {
		return invoicedomain.BillingSummary{}, err
	}
	periodStart, periodEnd, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return invoicedomain.BillingSummary{}, err
	}
	if _, err := s.findCustomer(ctx, s.db, customerID); err != nil {
		return invoicedomain.BillingSummary{}, err
	}

	items, err := s.workItemRepo.ListBillable(ctx, s.db, workitemdomain.BillableFilter{
		CustomerID:         customerID,
		PeriodStart:        periodStart,
		PeriodEnd:          periodEnd,
		ExcludedCategories: s.pricing.ExcludedCategories(),
	})
	if err != nil {
		return invoicedomain.BillingSummary{}, err
	}
	entries, err := billableEntries(items)
	if err != nil {
		return invoicedomain.BillingSummary{}, err
	}

	return invoicedomain.BillingSummary{
		CustomerID:  customerID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Breakdown:   calculator.Calculate(entries, periodStart, s.pricing.Current()),
		RequestIDs:  workItemIDs(items),
	}, nil
}

// generation is a validated GenerateInvoiceRequest.
type generation struct {
	customer    *customerdomain.Customer
	series      string
	periodStart time.Time
	periodEnd   time.Time
	invoiceDate time.Time
	dueDate     time.Time
	taxRate     decimal.Decimal
	notes       string
	additional  []invoicedomain.InvoiceItem
	policy      pricingdomain.Policy
	excluded    []string
}

func (s *Service) GenerateInvoice(ctx context.Context, req invoicedomain.GenerateInvoiceRequest) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "generate", attribute.String("customer_id", req.CustomerID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.generate", "", err)
		}
	}()

	gen, err := s.prepareGeneration(ctx, req)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	release, err := s.lock.Acquire(ctx, sequence.LockKey(gen.series, gen.invoiceDate.Year()))
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	defer release()

	for attempt := 1; attempt <= generateAttempts; attempt++ {
		invoice, err = s.generateOnce(ctx, gen)
		if err == nil || !pkgdb.IsDuplicateKeyErr(err) {
			break
		}
		s.log.Warn("invoice number collided",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return invoicedomain.Invoice{}, &invoicedomain.DuplicateInvoiceNumberError{Number: invoice.InvoiceNumber, Err: err}
		}
		return invoicedomain.Invoice{}, err
	}

	s.metrics.RecordInvoiceTotal("default", invoice.Total.InexactFloat64())
	s.auditInvoice(ctx, "invoice.generate", &invoice, map[string]any{
		"period_start": invoice.PeriodStart.Format(time.DateOnly),
		"period_end":   invoice.PeriodEnd.Format(time.DateOnly),
		"items":        len(invoice.Items),
	})
	return invoice, nil
}

func (s *Service) prepareGeneration(ctx context.Context, req invoicedomain.GenerateInvoiceRequest) (generation, error) {
	customerID, err := parseID(req.CustomerID, invoicedomain.ErrInvalidCustomer)
	if err != nil {
		return generation{}, err
	}
	periodStart, periodEnd, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return generation{}, err
	}

	invoiceDate := clock.Today(s.clock)
	if explicit, err := parseOptionalDate(req.InvoiceDate); err != nil {
		return generation{}, err
	} else if explicit != nil {
		invoiceDate = *explicit
	}

	taxRaw := s.cfg.DefaultTaxRate
	if req.TaxRate != nil && strings.TrimSpace(*req.TaxRate) != "" {
		taxRaw = *req.TaxRate
	}
	taxRate, err := parseTaxRate(taxRaw)
	if err != nil {
		return generation{}, err
	}

	customer, err := s.findCustomer(ctx, s.db, customerID)
	if err != nil {
		return generation{}, err
	}
	if !customer.Active {
		return generation{}, invoicedomain.ErrCustomerInactive
	}

	dueDate := invoiceDate.AddDate(0, 0, customer.PaymentTerms)
	if explicit, err := parseOptionalDate(req.DueDate); err != nil {
		return generation{}, err
	} else if explicit != nil {
		dueDate = *explicit
	}
	if dueDate.Before(invoiceDate) {
		return generation{}, invoicedomain.ErrInvalidDate
	}

	additional := make([]invoicedomain.InvoiceItem, 0, len(req.AdditionalItems))
	for _, raw := range req.AdditionalItems {
		item, err := parseAdditionalItem(raw)
		if err != nil {
			return generation{}, err
		}
		additional = append(additional, item)
	}

	series := customer.InvoicePrefix
	if series == "" {
		series = s.cfg.DefaultInvoicePrefix
	}

	return generation{
		customer:    customer,
		series:      series,
		periodStart: periodStart,
		periodEnd:   periodEnd,
		invoiceDate: invoiceDate,
		dueDate:     dueDate,
		taxRate:     taxRate,
		notes:       strings.TrimSpace(req.Notes),
		additional:  additional,
		policy:      s.pricing.Current(),
		excluded:    s.pricing.ExcludedCategories(),
	}, nil
}

// generateOnce runs one full generation transaction. The returned invoice carries the
// attempted number even on failure so a collision can be reported.
func (s *Service) generateOnce(ctx context.Context, gen generation) (invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.workItemRepo.ListBillable(ctx, tx, workitemdomain.BillableFilter{
			CustomerID:         gen.customer.ID,
			PeriodStart:        gen.periodStart,
			PeriodEnd:          gen.periodEnd,
			ExcludedCategories: gen.excluded,
		})
		if err != nil {
			return err
		}
		if len(items) == 0 && len(gen.additional) == 0 {
			return invoicedomain.ErrNoBillableItems
		}
		entries, err := billableEntries(items)
		if err != nil {
			return err
		}
		breakdown := calculator.Calculate(entries, gen.periodStart, gen.policy)

		number, err := s.allocator.Next(ctx, tx, gen.series, gen.invoiceDate.Year())
		if err != nil {
			return err
		}

		now := s.clock.Now()
		invoice = invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			CustomerID:    gen.customer.ID,
			InvoiceNumber: number,
			PeriodStart:   gen.periodStart,
			PeriodEnd:     gen.periodEnd,
			InvoiceDate:   gen.invoiceDate,
			DueDate:       gen.dueDate,
			Status:        invoicedomain.StatusDraft,
			Subtotal:      decimal.Zero,
			TaxRate:       gen.taxRate,
			TaxAmount:     decimal.Zero,
			Total:         decimal.Zero,
			AmountPaid:    decimal.Zero,
			Notes:         gen.notes,
			BillingSnapshot: datatypes.NewJSONType(invoicedomain.BillingSnapshot{
				GeneratedAt: now,
				Breakdown:   breakdown,
			}),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}

		rows := s.supportRows(invoice.ID, breakdown, items, now)
		for _, extra := range gen.additional {
			extra.ID = s.genID.Generate()
			extra.InvoiceID = invoice.ID
			extra.SortOrder = len(rows)
			extra.CreatedAt = now
			extra.UpdatedAt = now
			rows = append(rows, extra)
		}
		if err := s.repo.InsertItems(ctx, tx, rows); err != nil {
			return err
		}

		if ids := workItemIDs(items); len(ids) > 0 {
			claimed, err := s.workItemRepo.LinkToInvoice(ctx, tx, invoice.ID, ids, now)
			if err != nil {
				return err
			}
			if claimed != int64(len(ids)) {
				return invoicedomain.ErrRequestBilled
			}
		}

		return s.recalculate(ctx, tx, &invoice)
	})
	return invoice, err
}

// supportRows builds one row per non-empty tier, then the informational free-credit row.
func (s *Service) supportRows(invoiceID snowflake.ID, breakdown calculator.Breakdown, items []workitemdomain.WorkItem, now time.Time) []invoicedomain.InvoiceItem {
	byTier := map[pricingdomain.Tier][]snowflake.ID{}
	for _, item := range items {
		tier := calculator.TierForUrgency(string(item.Urgency))
		byTier[tier] = append(byTier[tier], item.ID)
	}

	rows := make([]invoicedomain.InvoiceItem, 0, len(breakdown.Lines)+1)
	for _, line := range breakdown.Lines {
		if !line.RawHours.IsPositive() {
			continue
		}
		rows = append(rows, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			ItemType:    invoicedomain.ItemTypeSupport,
			Tier:        line.Tier,
			Description: fmt.Sprintf("%s (%s hours)", line.Tier.Label(), line.RawHours.StringFixed(2)),
			Quantity:    line.BillableHours,
			UnitPrice:   line.Rate,
			Amount:      line.Amount,
			SortOrder:   len(rows),
			RequestIDs:  datatypes.NewJSONSlice(byTier[line.Tier]),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if breakdown.FreeHoursApplied.IsPositive() {
		rows = append(rows, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			ItemType:    invoicedomain.ItemTypeSupport,
			Adjustment:  true,
			Description: fmt.Sprintf("Free support credits applied (%s hours)", breakdown.FreeHoursApplied.StringFixed(2)),
			Quantity:    breakdown.FreeHoursApplied,
			UnitPrice:   decimal.Zero,
			Amount:      decimal.Zero,
			SortOrder:   len(rows),
			RequestIDs:  datatypes.NewJSONSlice([]snowflake.ID{}),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return rows
}

func parseAdditionalItem(raw invoicedomain.AdditionalItem) (invoicedomain.InvoiceItem, error) {
	itemType, ok := invoicedomain.ParseItemType(strings.ToLower(strings.TrimSpace(raw.ItemType)))
	if !ok {
		return invoicedomain.InvoiceItem{}, invoicedomain.ErrInvalidItemType
	}
	description := strings.TrimSpace(raw.Description)
	if description == "" {
		return invoicedomain.InvoiceItem{}, invoicedomain.ErrInvalidDescription
	}
	quantity, err := parseNonNegative(raw.Quantity, moneyPlaces, invoicedomain.ErrInvalidQuantity)
	if err != nil {
		return invoicedomain.InvoiceItem{}, err
	}
	unitPrice, err := parseNonNegative(raw.UnitPrice, moneyPlaces, invoicedomain.ErrInvalidUnitPrice)
	if err != nil {
		return invoicedomain.InvoiceItem{}, err
	}
	return invoicedomain.InvoiceItem{
		ItemType:    itemType,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      calculator.RoundMoney(quantity.Mul(unitPrice)),
		RequestIDs:  datatypes.NewJSONSlice([]snowflake.ID{}),
	}, nil
}

// billableEntries rejects items the calculator cannot price.
func billableEntries(items []workitemdomain.WorkItem) ([]calculator.Entry, error) {
	entries := make([]calculator.Entry, 0, len(items))
	for _, item := range items {
		if !item.EstimatedHours.Valid {
			return nil, invoicedomain.ErrMissingHours
		}
		if item.EstimatedHours.Decimal.IsNegative() {
			return nil, invoicedomain.ErrInvalidHours
		}
		entries = append(entries, calculator.Entry{
			Urgency: string(item.Urgency),
			Hours:   item.EstimatedHours.Decimal,
		})
	}
	return entries, nil
}

func workItemIDs(items []workitemdomain.WorkItem) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (s *Service) findCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*customerdomain.Customer, error) {
	customer, err := s.customerRepo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, customerdomain.ErrNotFound
	}
	return customer, nil
}
