package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
}

// Service records audit entries. Callers treat it as fire-and-forget: a failed write is
// logged by the service and must never fail the billing operation that triggered it.
type Service interface {
	AuditLog(ctx context.Context, action, resourceType string, resourceID *string, outcome string, metadata map[string]any) error
}

var ErrInvalidAction = errors.New("invalid_action")
