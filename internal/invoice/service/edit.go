package service

import (
	"context"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/pricing/calculator"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) UpdateInvoiceItem(ctx context.Context, rawInvoiceID, rawItemID string, req invoicedomain.UpdateItemRequest) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "update_item", attribute.String("invoice_id", rawInvoiceID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.item.update", rawInvoiceID, err)
		}
	}()

	invoiceID, err := parseID(rawInvoiceID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	itemID, err := parseID(rawItemID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var description *string
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed == "" {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDescription
		}
		description = &trimmed
	}
	quantity, err := optionalNonNegative(req.Quantity, invoicedomain.ErrInvalidQuantity)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	unitPrice, err := optionalNonNegative(req.UnitPrice, invoicedomain.ErrInvalidUnitPrice)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadDraftForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		items, err := s.repo.ListItems(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(items, func(item invoicedomain.InvoiceItem) bool { return item.ID == itemID })
		if idx < 0 {
			return invoicedomain.ErrItemNotFound
		}

		item := items[idx]
		// The free-hour credit row is derived from the pool; it changes only through repricing.
		if item.Adjustment {
			return invoicedomain.ErrItemReadOnly
		}
		if description != nil {
			item.Description = *description
		}
		if quantity != nil {
			item.Quantity = *quantity
		}
		if unitPrice != nil {
			item.UnitPrice = *unitPrice
		}
		item.Amount = calculator.RoundMoney(item.Quantity.Mul(item.UnitPrice))
		item.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateItem(ctx, tx, &item); err != nil {
			return err
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

	s.auditInvoice(ctx, "invoice.item.update", &invoice, map[string]any{"item_id": itemID.String()})
	return invoice, nil
}

// LinkRequest attaches an unbilled work item to a draft. Tier amounts are not re-derived;
// RepriceInvoice does that on demand.
func (s *Service) LinkRequest(ctx context.Context, rawInvoiceID, rawRequestID string) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "link_request", attribute.String("invoice_id", rawInvoiceID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.request.link", rawInvoiceID, err)
		}
	}()

	invoiceID, err := parseID(rawInvoiceID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	requestID, err := parseID(rawRequestID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadDraftForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		request, err := s.workItemRepo.FindByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		switch {
		case request == nil:
			return workitemdomain.ErrNotFound
		case request.CustomerID != locked.CustomerID:
			return invoicedomain.ErrRequestOtherCustomer
		case request.Status != workitemdomain.StatusActive:
			return invoicedomain.ErrRequestInactive
		case request.Billed():
			return invoicedomain.ErrRequestBilled
		}

		now := s.clock.Now()
		claimed, err := s.workItemRepo.LinkToInvoice(ctx, tx, invoiceID, []snowflake.ID{requestID}, now)
		if err != nil {
			return err
		}
		if claimed != 1 {
			return invoicedomain.ErrRequestBilled
		}

		items, err := s.repo.ListItems(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		tier := calculator.TierForUrgency(string(request.Urgency))
		for _, item := range items {
			if item.ItemType != invoicedomain.ItemTypeSupport || item.Adjustment || item.Tier != tier {
				continue
			}
			item.RequestIDs = append(item.RequestIDs, requestID)
			item.UpdatedAt = now
			if err := s.repo.UpdateItem(ctx, tx, &item); err != nil {
				return err
			}
			break
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

	s.auditInvoice(ctx, "invoice.request.link", &invoice, map[string]any{"request_id": requestID.String()})
	return invoice, nil
}

func (s *Service) UnlinkRequest(ctx context.Context, rawInvoiceID, rawRequestID string) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "unlink_request", attribute.String("invoice_id", rawInvoiceID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.request.unlink", rawInvoiceID, err)
		}
	}()

	invoiceID, err := parseID(rawInvoiceID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	requestID, err := parseID(rawRequestID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadDraftForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		request, err := s.workItemRepo.FindByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request == nil {
			return workitemdomain.ErrNotFound
		}
		if request.InvoiceID == nil || *request.InvoiceID != invoiceID {
			return invoicedomain.ErrRequestNotLinked
		}

		now := s.clock.Now()
		if _, err := s.workItemRepo.Unlink(ctx, tx, invoiceID, requestID, now); err != nil {
			return err
		}

		items, err := s.repo.ListItems(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		for _, item := range items {
			kept := slices.DeleteFunc(slices.Clone([]snowflake.ID(item.RequestIDs)), func(id snowflake.ID) bool {
				return id == requestID
			})
			if len(kept) == len(item.RequestIDs) {
				continue
			}
			item.RequestIDs = datatypes.NewJSONSlice(kept)
			item.UpdatedAt = now
			if err := s.repo.UpdateItem(ctx, tx, &item); err != nil {
				return err
			}
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

	s.auditInvoice(ctx, "invoice.request.unlink", &invoice, map[string]any{"request_id": requestID.String()})
	return invoice, nil
}

// RepriceInvoice rebuilds the generated support rows of a draft from its linked work items,
// priced with the policy frozen in its billing snapshot. Manual rows are kept.
func (s *Service) RepriceInvoice(ctx context.Context, rawID string) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "reprice", attribute.String("invoice_id", rawID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.reprice", rawID, err)
		}
	}()

	id, err := parseID(rawID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadDraftForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		policy := locked.BillingSnapshot.Data().Breakdown.Policy
		if policy.Validate() != nil {
			policy = s.pricing.Current()
		}

		linked, err := s.workItemRepo.FindByInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		entries, err := billableEntries(linked)
		if err != nil {
			return err
		}
		breakdown := calculator.Calculate(entries, locked.PeriodStart, policy)

		items, err := s.repo.ListItems(ctx, tx, id)
		if err != nil {
			return err
		}
		var stale []snowflake.ID
		var manual []invoicedomain.InvoiceItem
		for _, item := range items {
			if item.Generated() {
				stale = append(stale, item.ID)
				continue
			}
			manual = append(manual, item)
		}
		if err := s.repo.DeleteItems(ctx, tx, id, stale); err != nil {
			return err
		}

		now := s.clock.Now()
		rows := s.supportRows(id, breakdown, linked, now)
		if err := s.repo.InsertItems(ctx, tx, rows); err != nil {
			return err
		}
		for i := range manual {
			manual[i].SortOrder = len(rows) + i
			manual[i].UpdatedAt = now
			if err := s.repo.UpdateItem(ctx, tx, &manual[i]); err != nil {
				return err
			}
		}

		snapshot := datatypes.NewJSONType(invoicedomain.BillingSnapshot{GeneratedAt: now, Breakdown: breakdown})
		if err := s.repo.Update(ctx, tx, id, map[string]any{"billing_snapshot": snapshot}); err != nil {
			return err
		}
		locked.BillingSnapshot = snapshot

		if err := s.recalculate(ctx, tx, locked); err != nil {
			return err
		}
		invoice = *locked
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.auditInvoice(ctx, "invoice.reprice", &invoice, nil)
	return invoice, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, rawID string) (err error) {
	ctx, op := s.begin(ctx, "delete", attribute.String("invoice_id", rawID))
	defer func() {
		err = s.end(ctx, op, err)
		if err != nil {
			s.auditFailure(ctx, "invoice.delete", rawID, err)
		}
	}()

	id, err := parseID(rawID, invoicedomain.ErrInvalidID)
	if err != nil {
		return err
	}

	var deleted *invoicedomain.Invoice
	var released int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadDraftForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if released, err = s.workItemRepo.UnlinkInvoice(ctx, tx, id, s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.DeleteAllItems(ctx, tx, id); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		deleted = locked
		return nil
	})
	if err != nil {
		return err
	}

	s.auditInvoice(ctx, "invoice.delete", deleted, map[string]any{"released_requests": released})
	return nil
}

func (s *Service) RecalculateTotals(ctx context.Context, rawID string) (invoice invoicedomain.Invoice, err error) {
	ctx, op := s.begin(ctx, "recalculate", attribute.String("invoice_id", rawID))
	defer func() { err = s.end(ctx, op, err) }()

	id, err := parseID(rawID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
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
	return invoice, nil
}
