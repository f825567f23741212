package domain

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/smallbiznis/hourbill/pkg/db/pagination"
)

type CreateWorkItemRequest struct {
	CustomerID     string  `json:"customer_id"`
	Date           string  `json:"date"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Urgency        string  `json:"urgency"`
	EstimatedHours *string `json:"estimated_hours"`
	ExternalRef    string  `json:"external_ref"`
}

type ListWorkItemRequest struct {
	pagination.Pagination
	CustomerID string
	Status     string
	Unbilled   bool
	StartDate  string
	EndDate    string
}

type ListWorkItemResponse struct {
	pagination.PageInfo
	WorkItems []WorkItem `json:"requests"`
}

type ImportRequest struct {
	CustomerID string
	Reader     io.Reader
}

// RowError reports a rejected CSV line. Line is 1-based and counts the header.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

type ImportResult struct {
	Imported []WorkItem `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateWorkItemRequest) (WorkItem, error)
	Get(ctx context.Context, id string) (WorkItem, error)
	List(ctx context.Context, req ListWorkItemRequest) (ListWorkItemResponse, error)
	SetStatus(ctx context.Context, id string, status string) (WorkItem, error)
	Import(ctx context.Context, req ImportRequest) (ImportResult, error)
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidDate        = errors.New("invalid_date")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidUrgency     = errors.New("invalid_urgency")
	ErrInvalidHours       = errors.New("invalid_hours")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidCSV         = errors.New("invalid_csv")
	ErrNotFound           = errors.New("request_not_found")
	ErrAlreadyBilled      = errors.New("request_already_billed")
)
