package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/hourbill/internal/audit/domain"
	"github.com/smallbiznis/hourbill/internal/clock"
	"github.com/smallbiznis/hourbill/internal/config"
	"github.com/smallbiznis/hourbill/internal/customer/domain"
	"github.com/smallbiznis/hourbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxPrefixLength = 32

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Cfg      config.Config
	Clock    clock.Clock
	AuditSvc auditdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	clock        clock.Clock
	auditSvc     auditdomain.Service
	paymentTerms int
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("customer.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		clock:        p.Clock,
		auditSvc:     p.AuditSvc,
		paymentTerms: p.Cfg.Billing.DefaultPaymentTerms,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	terms := s.paymentTerms
	if req.PaymentTerms != nil {
		terms = *req.PaymentTerms
	}
	if terms < 0 {
		return domain.Customer{}, domain.ErrInvalidPaymentTerms
	}

	source := strings.TrimSpace(req.InvoicePrefix)
	if source == "" {
		source = name
	}
	prefix := SeriesPrefix(source)
	if prefix == "" {
		return domain.Customer{}, domain.ErrInvalidInvoicePrefix
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	customer := domain.Customer{
		ID:            s.genID.Generate(),
		Name:          name,
		Email:         email,
		Phone:         strings.TrimSpace(req.Phone),
		Address:       strings.TrimSpace(req.Address),
		InvoicePrefix: prefix,
		PaymentTerms:  terms,
		Active:        active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		s.log.Error("failed to insert customer", zap.Error(err))
		return domain.Customer{}, err
	}

	id := customer.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "customer.create", "customer", &id, auditdomain.OutcomeSuccess, map[string]any{
		"invoice_prefix": customer.InvoicePrefix,
	})
	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	filter := domain.ListCustomerFilter{
		Name:   strings.TrimSpace(req.Name),
		Active: req.Active,
		Limit:  req.Limit(),
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListCustomerResponse{}, err
		}
		afterID, err := s.parseID(cursor.ID)
		if err != nil {
			return domain.ListCustomerResponse{}, pagination.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	items, pageInfo, err := pagination.Trim(items, filter.Limit, func(c *domain.Customer) string {
		return c.ID.String()
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		customers = append(customers, *item)
	}
	return domain.ListCustomerResponse{PageInfo: pageInfo, Customers: customers}, nil
}

func (s *Service) GetByID(ctx context.Context, rawID string) (domain.Customer, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return domain.Customer{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

// SeriesPrefix normalizes a name into an upper-case invoice series prefix, e.g. "Acme Corp" to "ACME-CORP".
func SeriesPrefix(value string) string {
	prefix := strings.ToUpper(slug.Make(value))
	if len(prefix) > maxPrefixLength {
		prefix = strings.TrimRight(prefix[:maxPrefixLength], "-")
	}
	return prefix
}
