package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/hourbill/internal/audit/domain"
	"github.com/smallbiznis/hourbill/internal/clock"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	"github.com/smallbiznis/hourbill/internal/observability/metrics"
	"github.com/smallbiznis/hourbill/internal/workitem/domain"
	"github.com/smallbiznis/hourbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
	Clock        clock.Clock
	AuditSvc     auditdomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	customerRepo customerdomain.Repository
	clock        clock.Clock
	auditSvc     auditdomain.Service
	metrics      *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("workitem.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		clock:        p.Clock,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateWorkItemRequest) (domain.WorkItem, error) {
	customerID, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.WorkItem{}, err
	}

	item, err := s.buildItem(customerID, req, domain.SourceManual)
	if err != nil {
		return domain.WorkItem{}, err
	}

	if err := s.repo.Insert(ctx, s.db, &item); err != nil {
		s.log.Error("failed to insert work item", zap.Error(err))
		return domain.WorkItem{}, err
	}

	id := item.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "request.create", "request", &id, auditdomain.OutcomeSuccess, map[string]any{
		"customer_id": customerID.String(),
	})
	return item, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (domain.WorkItem, error) {
	id, err := parseID(rawID, domain.ErrInvalidID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if item == nil {
		return domain.WorkItem{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListWorkItemRequest) (domain.ListWorkItemResponse, error) {
	filter := domain.ListFilter{
		Unbilled: req.Unbilled,
		Limit:    req.Limit(),
	}
	if strings.TrimSpace(req.CustomerID) != "" {
		id, err := parseID(req.CustomerID, domain.ErrInvalidCustomer)
		if err != nil {
			return domain.ListWorkItemResponse{}, err
		}
		filter.CustomerID = id
	}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return domain.ListWorkItemResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}
	var err error
	if filter.StartDate, err = parseOptionalDate(req.StartDate); err != nil {
		return domain.ListWorkItemResponse{}, err
	}
	if filter.EndDate, err = parseOptionalDate(req.EndDate); err != nil {
		return domain.ListWorkItemResponse{}, err
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListWorkItemResponse{}, err
		}
		afterID, err := parseID(cursor.ID, pagination.ErrInvalidPageToken)
		if err != nil {
			return domain.ListWorkItemResponse{}, err
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListWorkItemResponse{}, err
	}
	items, pageInfo, err := pagination.Trim(items, filter.Limit, func(w *domain.WorkItem) string {
		return w.ID.String()
	})
	if err != nil {
		return domain.ListWorkItemResponse{}, err
	}

	out := make([]domain.WorkItem, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListWorkItemResponse{PageInfo: pageInfo, WorkItems: out}, nil
}

// SetStatus changes the work item status. Billed items are frozen until released from their invoice.
func (s *Service) SetStatus(ctx context.Context, rawID string, rawStatus string) (domain.WorkItem, error) {
	id, err := parseID(rawID, domain.ErrInvalidID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	status, ok := domain.ParseStatus(rawStatus)
	if !ok {
		return domain.WorkItem{}, domain.ErrInvalidStatus
	}

	var updated domain.WorkItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if item.Billed() {
			return domain.ErrAlreadyBilled
		}
		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, id, status, now); err != nil {
			return err
		}
		item.Status = status
		item.UpdatedAt = now
		updated = *item
		return nil
	})
	if err != nil {
		return domain.WorkItem{}, err
	}

	resourceID := id.String()
	_ = s.auditSvc.AuditLog(ctx, "request.status", "request", &resourceID, auditdomain.OutcomeSuccess, map[string]any{
		"status": string(status),
	})
	return updated, nil
}

func (s *Service) resolveCustomer(ctx context.Context, rawID string) (snowflake.ID, error) {
	id, err := parseID(rawID, domain.ErrInvalidCustomer)
	if err != nil {
		return 0, err
	}
	customer, err := s.customerRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	if customer == nil {
		return 0, customerdomain.ErrNotFound
	}
	return id, nil
}

func (s *Service) buildItem(customerID snowflake.ID, req domain.CreateWorkItemRequest, source domain.Source) (domain.WorkItem, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Date))
	if err != nil {
		return domain.WorkItem{}, domain.ErrInvalidDate
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.WorkItem{}, domain.ErrInvalidDescription
	}

	urgency := ClassifyUrgency(description)
	if strings.TrimSpace(req.Urgency) != "" {
		parsed, ok := domain.ParseUrgency(req.Urgency)
		if !ok {
			return domain.WorkItem{}, domain.ErrInvalidUrgency
		}
		urgency = parsed
	}

	hours, err := parseHours(req.EstimatedHours)
	if err != nil {
		return domain.WorkItem{}, err
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = ClassifyCategory(description)
	}

	now := s.clock.Now()
	item := domain.WorkItem{
		ID:             s.genID.Generate(),
		CustomerID:     customerID,
		Date:           date.UTC(),
		Description:    description,
		Category:       category,
		Urgency:        urgency,
		EstimatedHours: hours,
		Status:         domain.StatusActive,
		Source:         source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ref := strings.TrimSpace(req.ExternalRef); ref != "" {
		item.ExternalRef = &ref
	}
	return item, nil
}

func parseHours(raw *string) (decimal.NullDecimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return decimal.NullDecimal{}, nil
	}
	hours, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil || hours.IsNegative() {
		return decimal.NullDecimal{}, domain.ErrInvalidHours
	}
	return decimal.NewNullDecimal(hours.Round(2)), nil
}

func parseOptionalDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, domain.ErrInvalidDate
	}
	return &parsed, nil
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
