// Package server exposes the billing engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/hourbill/internal/audit"
	"github.com/smallbiznis/hourbill/internal/config"
	"github.com/smallbiznis/hourbill/internal/customer"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	"github.com/smallbiznis/hourbill/internal/invoice"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/invoice/export"
	"github.com/smallbiznis/hourbill/internal/observability"
	obslogger "github.com/smallbiznis/hourbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/hourbill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/hourbill/internal/observability/tracing"
	"github.com/smallbiznis/hourbill/internal/providers/pdf"
	"github.com/smallbiznis/hourbill/internal/ratelimit"
	"github.com/smallbiznis/hourbill/internal/workitem"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	customer.Module,
	workitem.Module,
	invoice.Module,
	pdf.Module,
	export.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.Metrics, registry *prometheus.Registry) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		ErrorClassifier: classifyError,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	}

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.Metrics, registry *prometheus.Registry) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, registry)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	invoiceSvc  invoicedomain.Service
	customerSvc customerdomain.Service
	workItemSvc workitemdomain.Service
	exporter    *export.Exporter
	limiter     ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	InvoiceSvc  invoicedomain.Service
	CustomerSvc customerdomain.Service
	WorkItemSvc workitemdomain.Service
	Exporter    *export.Exporter
	Limiter     ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		invoiceSvc:  p.InvoiceSvc,
		customerSvc: p.CustomerSvc,
		workItemSvc: p.WorkItemSvc,
		exporter:    p.Exporter,
		limiter:     p.Limiter,
	}
	if svc.limiter == nil {
		svc.limiter = ratelimit.NoopLimiter{}
	}
	svc.registerAPIRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Invoices --------
	api.GET("/invoices/billing-summary", s.GetBillingSummary)
	api.POST("/invoices/generate", s.rateLimit(scopeGenerate), s.GenerateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PUT("/invoices/:id", s.UpdateInvoice)
	api.DELETE("/invoices/:id", s.DeleteInvoice)
	api.PUT("/invoices/:id/items/:itemId", s.UpdateInvoiceItem)
	api.POST("/invoices/:id/requests/:requestId", s.LinkRequest)
	api.DELETE("/invoices/:id/requests/:requestId", s.UnlinkRequest)
	api.GET("/invoices/:id/unbilled-requests", s.ListUnbilledRequests)
	api.GET("/invoices/:id/export/:format", s.ExportInvoice)
	api.POST("/invoices/:id/send", s.SendInvoice)
	api.POST("/invoices/:id/pay", s.PayInvoice)
	api.POST("/invoices/:id/reprice", s.RepriceInvoice)
	api.POST("/invoices/:id/recalculate", s.RecalculateInvoice)

	// -------- Customers --------
	api.GET("/customers", s.ListCustomers)
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers/:id", s.GetCustomerByID)

	// -------- Requests --------
	api.GET("/requests", s.ListRequests)
	api.POST("/requests", s.CreateRequest)
	api.POST("/requests/import", s.rateLimit(scopeImport), s.ImportRequests)
	api.GET("/requests/:id", s.GetRequestByID)
	api.PUT("/requests/:id/status", s.SetRequestStatus)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
