package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/ratelimit"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"github.com/smallbiznis/hourbill/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	errorTypeValidation   = "validation_error"
	errorTypeNotFound     = "not_found"
	errorTypeInvalidState = "invalid_state"
	errorTypeRateLimit    = "rate_limit_error"
	errorTypeInternal     = "internal_error"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

var validationErrors = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
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
	invoicedomain.ErrInvalidFormat,
	customerdomain.ErrInvalidName,
	customerdomain.ErrInvalidEmail,
	customerdomain.ErrInvalidPaymentTerms,
	customerdomain.ErrInvalidInvoicePrefix,
	customerdomain.ErrInvalidID,
	workitemdomain.ErrInvalidID,
	workitemdomain.ErrInvalidCustomer,
	workitemdomain.ErrInvalidDate,
	workitemdomain.ErrInvalidDescription,
	workitemdomain.ErrInvalidUrgency,
	workitemdomain.ErrInvalidHours,
	workitemdomain.ErrInvalidStatus,
	workitemdomain.ErrInvalidCSV,
}

var notFoundErrors = []error{
	ErrNotFound,
	invoicedomain.ErrInvoiceNotFound,
	invoicedomain.ErrItemNotFound,
	invoicedomain.ErrRequestNotLinked,
	customerdomain.ErrNotFound,
	workitemdomain.ErrNotFound,
	gorm.ErrRecordNotFound,
}

var invalidStateErrors = []error{
	invoicedomain.ErrNotDraft,
	invoicedomain.ErrIllegalTransition,
	invoicedomain.ErrNoBillableItems,
	invoicedomain.ErrCustomerInactive,
	invoicedomain.ErrRequestBilled,
	invoicedomain.ErrRequestOtherCustomer,
	invoicedomain.ErrRequestInactive,
	invoicedomain.ErrItemReadOnly,
	workitemdomain.ErrAlreadyBilled,
}

var messages = map[string]string{
	errorTypeValidation:   "validation error",
	errorTypeNotFound:     "not found",
	errorTypeInvalidState: "operation not allowed in the current state",
	errorTypeRateLimit:    "too many requests",
	errorTypeInternal:     "internal server error",
}

// codeMessages holds the client-facing text per code. Codes without an entry use messages.
var codeMessages = map[string]string{
	"invalid_request":                   "request body or parameters are malformed",
	"invalid_page_token":                "page token is invalid",
	"invalid_id":                        "id is not a valid identifier",
	"invalid_customer":                  "customer id is missing or invalid",
	"invalid_period":                    "billing period must be a valid date range",
	"invalid_date":                      "date must use YYYY-MM-DD",
	"invalid_quantity":                  "quantity must be a non-negative number with at most 2 decimals",
	"invalid_unit_price":                "unit price must be a non-negative number with at most 2 decimals",
	"invalid_tax_rate":                  "tax rate must be between 0 and 1 with at most 4 decimals",
	"invalid_amount":                    "amount is invalid",
	"invalid_item_type":                 "item type is not supported",
	"invalid_description":               "description is required",
	"invalid_status":                    "status is not recognised",
	"missing_hours":                     "request has no hours recorded",
	"invalid_hours":                     "hours must be a positive number",
	"invalid_export_format":             "export format is not supported",
	"invalid_name":                      "name is required",
	"invalid_email":                     "email address is invalid",
	"invalid_payment_terms":             "payment terms must be a positive number of days",
	"invalid_invoice_prefix":            "invoice prefix is invalid",
	"invalid_urgency":                   "urgency must be LOW, MEDIUM or HIGH",
	"invalid_csv":                       "CSV file could not be parsed",
	"not_found":                         "resource not found",
	"invoice_not_found":                 "invoice not found",
	"invoice_item_not_found":            "invoice item not found",
	"request_not_linked":                "request is not linked to this invoice",
	"request_not_found":                 "request not found",
	"invoice_not_draft":                 "invoice is not a draft",
	"illegal_status_transition":         "invoice cannot move to that status",
	"no_billable_items":                 "no billable requests or items in the period",
	"customer_inactive":                 "customer is inactive",
	"request_already_billed":            "request is already billed",
	"request_belongs_to_other_customer": "request belongs to another customer",
	"request_not_active":                "request is not active",
	"invoice_item_read_only":            "free hours credit is derived and cannot be edited; reprice the invoice instead",
	"duplicate_invoice_number":          "invoice number collided; retry the request",
	"rate_limited":                      "too many requests",
}

// ErrorHandlingMiddleware renders the last handler error as the JSON error envelope.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	errorType, code := classifyError(err)
	status := http.StatusInternalServerError
	switch errorType {
	case errorTypeValidation, errorTypeInvalidState:
		status = http.StatusBadRequest
	case errorTypeNotFound:
		status = http.StatusNotFound
	case errorTypeRateLimit:
		status = http.StatusTooManyRequests
	}
	message, ok := codeMessages[code]
	if !ok {
		message = messages[errorType]
	}
	return status, errorPayload{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// classifyError returns the error type and stable code. Storage failures and anything
// unrecognised collapse into internal_error so no detail leaks to clients.
func classifyError(err error) (string, string) {
	if err == nil {
		return errorTypeInternal, errorTypeInternal
	}
	var duplicate *invoicedomain.DuplicateInvoiceNumberError
	if errors.As(err, &duplicate) {
		return errorTypeInternal, "duplicate_invoice_number"
	}
	if errors.Is(err, invoicedomain.ErrPersistence) {
		return errorTypeInternal, invoicedomain.ErrPersistence.Error()
	}
	if errors.Is(err, ratelimit.ErrRateLimited) {
		return errorTypeRateLimit, ratelimit.ErrRateLimited.Error()
	}
	if sentinel := firstMatch(err, validationErrors); sentinel != nil {
		return errorTypeValidation, sentinel.Error()
	}
	if sentinel := firstMatch(err, notFoundErrors); sentinel != nil {
		return errorTypeNotFound, sentinel.Error()
	}
	if sentinel := firstMatch(err, invalidStateErrors); sentinel != nil {
		return errorTypeInvalidState, sentinel.Error()
	}

	return errorTypeInternal, errorTypeInternal
}

func firstMatch(err error, candidates []error) error {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return candidate
		}
	}
	return nil
}
