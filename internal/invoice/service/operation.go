package service

import (
	"context"
	"errors"

	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/observability/logger"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// domainErrors pass through the service boundary untouched. Anything else came from storage.
var domainErrors = []error{
	invoicedomain.ErrInvalidID,
	invoicedomain.ErrInvalidCustomer,
	invoicedomain.ErrInvalidPeriod,
	invoicedomain.ErrInvalidDate,
	invoicedomain.ErrInvalidQuantity,
	invoicedomain.ErrInvalidUnitPrice,
	invoicedomain.ErrInvalidTaxRate,
	invoicedomain.ErrInvalidAmount,
	invoicedomain.ErrInvalidItemType,
	invoicedomain.ErrInvalidDescription,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrMissingHours,
	invoicedomain.ErrInvalidHours,
	invoicedomain.ErrInvoiceNotFound,
	invoicedomain.ErrItemNotFound,
	invoicedomain.ErrRequestNotLinked,
	invoicedomain.ErrNotDraft,
	invoicedomain.ErrIllegalTransition,
	invoicedomain.ErrNoBillableItems,
	invoicedomain.ErrCustomerInactive,
	invoicedomain.ErrRequestBilled,
	invoicedomain.ErrRequestOtherCustomer,
	invoicedomain.ErrRequestInactive,
	invoicedomain.ErrPersistence,
	customerdomain.ErrNotFound,
	workitemdomain.ErrNotFound,
}

type operation struct {
	name string
	span trace.Span
}

func (s *Service) begin(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *operation) {
	ctx, span := s.tracer.Start(ctx, "invoice."+name, trace.WithAttributes(attrs...))
	return ctx, &operation{name: name, span: span}
}

// end classifies err, records the outcome and closes the span. The returned error is what
// callers should see.
func (s *Service) end(ctx context.Context, op *operation, err error) error {
	err = classify(op.name, err)
	s.metrics.RecordInvoiceOperation(op.name, err)
	if err != nil {
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, invoicedomain.ErrPersistence) || isDuplicateNumber(err) {
			logger.WithContext(ctx, s.log).Error("invoice operation failed",
				zap.String("operation", op.name),
				zap.Error(err),
			)
		}
	}
	op.span.End()
	return err
}

func classify(op string, err error) error {
	if err == nil || isDuplicateNumber(err) {
		return err
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return &invoicedomain.PersistenceError{Op: op, Err: err}
}

func isDuplicateNumber(err error) bool {
	var dup *invoicedomain.DuplicateInvoiceNumberError
	return errors.As(err, &dup)
}
