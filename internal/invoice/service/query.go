package service

import (
	"context"
	"strings"

	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (s *Service) GetInvoice(ctx context.Context, rawID string) (detail invoicedomain.InvoiceDetail, err error) {
	ctx, op := s.begin(ctx, "get", attribute.String("invoice_id", rawID))
	defer func() { err = s.end(ctx, op, err) }()

	id, err := parseID(rawID, invoicedomain.ErrInvalidID)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	if invoice == nil {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvoiceNotFound
	}
	if invoice.Items, err = s.repo.ListItems(ctx, s.db, id); err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	customer, err := s.findCustomer(ctx, s.db, invoice.CustomerID)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	requests, err := s.workItemRepo.FindByInvoice(ctx, s.db, id)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	return invoicedomain.InvoiceDetail{
		Invoice:  *invoice,
		Customer: *customer,
		Requests: requests,
	}, nil
}

// ListInvoices sweeps overdue invoices first so listed statuses are current.
func (s *Service) ListInvoices(ctx context.Context, req invoicedomain.ListInvoiceRequest) (resp invoicedomain.ListInvoiceResponse, err error) {
	if _, sweepErr := s.SweepOverdue(ctx); sweepErr != nil {
		s.log.Warn("overdue sweep before list failed", zap.Error(sweepErr))
	}

	ctx, op := s.begin(ctx, "list")
	defer func() { err = s.end(ctx, op, err) }()

	filter := invoicedomain.ListFilter{
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if strings.TrimSpace(req.CustomerID) != "" {
		if filter.CustomerID, err = parseID(req.CustomerID, invoicedomain.ErrInvalidCustomer); err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
	}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := invoicedomain.ParseStatus(req.Status)
		if !ok {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = status
	}
	if filter.StartDate, err = parseOptionalDate(&req.StartDate); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	if filter.EndDate, err = parseOptionalDate(&req.EndDate); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	return invoicedomain.ListInvoiceResponse{
		Invoices: invoices,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// ListUnbilledRequests returns the work items that could still be linked to the invoice.
func (s *Service) ListUnbilledRequests(ctx context.Context, rawID string) (items []workitemdomain.WorkItem, err error) {
	ctx, op := s.begin(ctx, "list_unbilled", attribute.String("invoice_id", rawID))
	defer func() { err = s.end(ctx, op, err) }()

	id, err := parseID(rawID, invoicedomain.ErrInvalidID)
	if err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	return s.workItemRepo.ListBillable(ctx, s.db, workitemdomain.BillableFilter{
		CustomerID:         invoice.CustomerID,
		PeriodStart:        invoice.PeriodStart,
		PeriodEnd:          invoice.PeriodEnd,
		ExcludedCategories: s.pricing.ExcludedCategories(),
	})
}
