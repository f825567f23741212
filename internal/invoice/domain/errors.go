package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidPeriod      = errors.New("invalid_period")
	ErrInvalidDate        = errors.New("invalid_date")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidUnitPrice   = errors.New("invalid_unit_price")
	ErrInvalidTaxRate     = errors.New("invalid_tax_rate")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidItemType    = errors.New("invalid_item_type")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrMissingHours       = errors.New("missing_hours")
	ErrInvalidHours       = errors.New("invalid_hours")
	ErrInvalidFormat      = errors.New("invalid_export_format")
)

var (
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
	ErrItemNotFound     = errors.New("invoice_item_not_found")
	ErrRequestNotLinked = errors.New("request_not_linked")
)

var (
	ErrNotDraft             = errors.New("invoice_not_draft")
	ErrIllegalTransition    = errors.New("illegal_status_transition")
	ErrNoBillableItems      = errors.New("no_billable_items")
	ErrCustomerInactive     = errors.New("customer_inactive")
	ErrRequestBilled        = errors.New("request_already_billed")
	ErrRequestOtherCustomer = errors.New("request_belongs_to_other_customer")
	ErrRequestInactive      = errors.New("request_not_active")
	ErrItemReadOnly         = errors.New("invoice_item_read_only")
)

// ErrPersistence matches every *PersistenceError through errors.Is.
var ErrPersistence = errors.New("persistence_error")

// PersistenceError wraps a storage failure. The transaction it happened in has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// DuplicateInvoiceNumberError is returned when number allocation collided twice in a row.
type DuplicateInvoiceNumberError struct {
	Number string
	Err    error
}

func (e *DuplicateInvoiceNumberError) Error() string {
	return fmt.Sprintf("duplicate invoice number %s", e.Number)
}

func (e *DuplicateInvoiceNumberError) Unwrap() error { return e.Err }
