package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/hourbill/internal/audit/domain"
	"github.com/smallbiznis/hourbill/internal/audit/masking"
	"github.com/smallbiznis/hourbill/internal/auditcontext"
	"github.com/smallbiznis/hourbill/internal/clock"
	"github.com/smallbiznis/hourbill/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const unknownResource = "unknown"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

// AuditLog writes one entry stamped with the actor and request metadata carried by ctx.
// The write uses the service's own connection, so it is never part of a caller's transaction.
func (s *Service) AuditLog(ctx context.Context, action, resourceType string, resourceID *string, outcome string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	entry := s.newEntry(ctx, action)
	entry.ResourceType = orDefault(resourceType, unknownResource)
	entry.ResourceID = nonEmpty(resourceID)
	entry.Outcome = orDefault(outcome, auditdomain.OutcomeSuccess)
	if len(metadata) > 0 {
		entry.Metadata = datatypes.JSONMap(masking.MaskMetadata(metadata))
	}

	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("resource_type", entry.ResourceType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) newEntry(ctx context.Context, action string) *auditdomain.AuditLog {
	actorType, actorID := auditcontext.ActorFromContext(ctx)
	return &auditdomain.AuditLog{
		ID:            s.genID.Generate(),
		ActorType:     actorType,
		ActorID:       nonEmpty(&actorID),
		Action:        action,
		RequestID:     fromContext(ctx, auditcontext.RequestIDFromContext),
		CorrelationID: fromContext(ctx, correlation.FromContext),
		IPAddress:     fromContext(ctx, auditcontext.IPAddressFromContext),
		UserAgent:     fromContext(ctx, auditcontext.UserAgentFromContext),
		CreatedAt:     s.clock.Now(),
	}
}

func fromContext(ctx context.Context, get func(context.Context) string) *string {
	value := get(ctx)
	return nonEmpty(&value)
}

func orDefault(value, def string) string {
	if value = strings.TrimSpace(value); value == "" {
		return def
	}
	return value
}

func nonEmpty(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
