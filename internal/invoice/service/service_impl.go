package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/hourbill/internal/audit/domain"
	"github.com/smallbiznis/hourbill/internal/clock"
	"github.com/smallbiznis/hourbill/internal/config"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/invoice/sequence"
	"github.com/smallbiznis/hourbill/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/hourbill/internal/pricing/domain"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         invoicedomain.Repository
	CustomerRepo customerdomain.Repository
	WorkItemRepo workitemdomain.Repository
	Pricing      pricingdomain.Source
	Allocator    *sequence.Allocator
	Lock         sequence.SeriesLock
	Clock        clock.Clock
	AuditSvc     auditdomain.Service
	Cfg          config.Config
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         invoicedomain.Repository
	customerRepo customerdomain.Repository
	workItemRepo workitemdomain.Repository
	pricing      pricingdomain.Source
	allocator    *sequence.Allocator
	lock         sequence.SeriesLock
	clock        clock.Clock
	auditSvc     auditdomain.Service
	cfg          config.BillingConfig
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

func NewService(p Params) invoicedomain.Service {
	lock := p.Lock
	if lock == nil {
		lock = sequence.NoopLock{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invoice.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		workItemRepo: p.WorkItemRepo,
		pricing:      p.Pricing,
		allocator:    p.Allocator,
		lock:         lock,
		clock:        p.Clock,
		auditSvc:     p.AuditSvc,
		cfg:          p.Cfg.Billing,
		metrics:      p.Metrics,
		tracer:       otel.Tracer("hourbill/invoice"),
	}
}

// loadDraftForUpdate locks the invoice row and rejects anything that is no longer a draft.
func (s *Service) loadDraftForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.loadForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !invoice.Status.Editable() {
		return nil, invoicedomain.ErrNotDraft
	}
	return invoice, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

// recalculate derives the totals from the persisted items and writes them back onto the invoice.
func (s *Service) recalculate(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	items, err := s.repo.ListItems(ctx, tx, invoice.ID)
	if err != nil {
		return err
	}
	totals := invoicedomain.ComputeTotals(items, invoice.TaxRate)
	now := s.clock.Now()
	if err := s.repo.Update(ctx, tx, invoice.ID, map[string]any{
		"subtotal":   totals.Subtotal,
		"tax_amount": totals.TaxAmount,
		"total":      totals.Total,
		"updated_at": now,
	}); err != nil {
		return err
	}
	invoice.Subtotal = totals.Subtotal
	invoice.TaxAmount = totals.TaxAmount
	invoice.Total = totals.Total
	invoice.UpdatedAt = now
	invoice.Items = items
	return nil
}

func (s *Service) auditInvoice(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"customer_id":    invoice.CustomerID.String(),
		"invoice_number": invoice.InvoiceNumber,
		"status":         string(invoice.Status),
		"total":          invoice.Total.StringFixed(2),
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	targetID := invoice.ID.String()
	_ = s.auditSvc.AuditLog(ctx, action, "invoice", &targetID, auditdomain.OutcomeSuccess, metadata)
}

func (s *Service) auditFailure(ctx context.Context, action string, rawID string, err error) {
	if s.auditSvc == nil {
		return
	}
	var targetID *string
	if rawID != "" {
		targetID = &rawID
	}
	_ = s.auditSvc.AuditLog(ctx, action, "invoice", targetID, auditdomain.OutcomeFailure, map[string]any{
		"error": err.Error(),
	})
}
