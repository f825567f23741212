package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hourbill/pkg/db/pagination"
)

type ListCustomerRequest struct {
	pagination.Pagination
	Name   string
	Active *bool
}

type ListCustomerFilter struct {
	Name    string
	Active  *bool
	AfterID snowflake.ID
	Limit   int
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateCustomerRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	InvoicePrefix string `json:"invoice_prefix"`
	PaymentTerms  *int   `json:"payment_terms"`
	Active        *bool  `json:"active"`
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, string) (Customer, error)
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidPaymentTerms  = errors.New("invalid_payment_terms")
	ErrInvalidInvoicePrefix = errors.New("invalid_invoice_prefix")
	ErrInvalidID            = errors.New("invalid_id")
	ErrNotFound             = errors.New("not_found")
)
