package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/cirrus/internal/audit"
	auditdomain "github.com/smallbiznis/cirrus/internal/audit/domain"
	"github.com/smallbiznis/cirrus/internal/authorization"
	"github.com/smallbiznis/cirrus/internal/catalog"
	catalogdomain "github.com/smallbiznis/cirrus/internal/catalog/domain"
	"github.com/smallbiznis/cirrus/internal/config"
	"github.com/smallbiznis/cirrus/internal/credit"
	creditdomain "github.com/smallbiznis/cirrus/internal/credit/domain"
	"github.com/smallbiznis/cirrus/internal/customer"
	customerdomain "github.com/smallbiznis/cirrus/internal/customer/domain"
	"github.com/smallbiznis/cirrus/internal/ingestion"
	ingestiondomain "github.com/smallbiznis/cirrus/internal/ingestion/domain"
	"github.com/smallbiznis/cirrus/internal/invoice"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	"github.com/smallbiznis/cirrus/internal/invoicerun"
	invoicerundomain "github.com/smallbiznis/cirrus/internal/invoicerun/domain"
	"github.com/smallbiznis/cirrus/internal/observability"
	obsmiddleware "github.com/smallbiznis/cirrus/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cirrus/internal/observability/metrics"
	obstracing "github.com/smallbiznis/cirrus/internal/observability/tracing"
	"github.com/smallbiznis/cirrus/internal/pricing"
	pricingdomain "github.com/smallbiznis/cirrus/internal/pricing/domain"
	"github.com/smallbiznis/cirrus/internal/ratelimit"
	"github.com/smallbiznis/cirrus/internal/reconciliation"
	reconciliationdomain "github.com/smallbiznis/cirrus/internal/reconciliation/domain"
	"github.com/smallbiznis/cirrus/internal/tax"
	taxdomain "github.com/smallbiznis/cirrus/internal/tax/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	customer.Module,
	catalog.Module,
	pricing.Module,
	credit.Module,
	tax.Module,
	ingestion.Module,
	invoice.Module,
	invoicerun.Module,
	reconciliation.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	customerSvc   customerdomain.Service
	catalogSvc    catalogdomain.Service
	pricingSvc    pricingdomain.Service
	creditSvc     creditdomain.Service
	taxSvc        taxdomain.Service
	ingestionSvc  ingestiondomain.Service
	invoiceSvc    invoicedomain.Service
	runSvc        invoicerundomain.Service
	reconSvc      reconciliationdomain.Service
	ingestLimiter *ratelimit.CostIngestLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	CustomerSvc   customerdomain.Service
	CatalogSvc    catalogdomain.Service
	PricingSvc    pricingdomain.Service
	CreditSvc     creditdomain.Service
	TaxSvc        taxdomain.Service
	IngestionSvc  ingestiondomain.Service
	InvoiceSvc    invoicedomain.Service
	RunSvc        invoicerundomain.Service
	ReconSvc      reconciliationdomain.Service
	IngestLimiter *ratelimit.CostIngestLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		customerSvc:   p.CustomerSvc,
		catalogSvc:    p.CatalogSvc,
		pricingSvc:    p.PricingSvc,
		creditSvc:     p.CreditSvc,
		taxSvc:        p.TaxSvc,
		ingestionSvc:  p.IngestionSvc,
		invoiceSvc:    p.InvoiceSvc,
		runSvc:        p.RunSvc,
		reconSvc:      p.ReconSvc,
		ingestLimiter: p.IngestLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.ActorContext())

	// -------- Customers --------
	api.GET("/customers", s.authorize(authorization.ObjectCustomer, authorization.ActionCustomerView), s.ListCustomers)
	api.POST("/customers", s.authorize(authorization.ObjectCustomer, authorization.ActionCustomerCreate), s.CreateCustomer)
	api.GET("/customers/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionCustomerView), s.GetCustomerByID)

	// -------- Projects --------
	api.GET("/projects", s.authorize(authorization.ObjectProject, authorization.ActionProjectView), s.ListProjects)
	api.POST("/projects", s.authorize(authorization.ObjectProject, authorization.ActionProjectCreate), s.CreateProject)
	api.POST("/projects/:projectId/bind", s.authorize(authorization.ObjectProject, authorization.ActionProjectBind), s.BindProject)
	api.POST("/projects/:projectId/unbind", s.authorize(authorization.ObjectProject, authorization.ActionProjectUnbind), s.UnbindProject)

	// -------- Catalog --------
	api.GET("/sku-groups", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogView), s.ListSkuGroups)
	api.POST("/sku-groups", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogManage), s.CreateSkuGroup)
	api.GET("/skus", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogView), s.ListSkus)
	api.PUT("/skus", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogManage), s.UpsertSkus)

	// -------- Pricing --------
	api.GET("/pricing-lists", s.authorize(authorization.ObjectPricingList, authorization.ActionPricingListView), s.ListPricingLists)
	api.POST("/pricing-lists", s.authorize(authorization.ObjectPricingList, authorization.ActionPricingListManage), s.CreatePricingList)
	api.GET("/pricing-lists/:id", s.authorize(authorization.ObjectPricingList, authorization.ActionPricingListView), s.GetPricingListByID)
	api.DELETE("/pricing-lists/:id", s.authorize(authorization.ObjectPricingList, authorization.ActionPricingListManage), s.DeletePricingList)
	api.POST("/pricing-lists/:id/rules", s.authorize(authorization.ObjectPricingList, authorization.ActionPricingListManage), s.AddPricingRule)

	// -------- Credits --------
	api.GET("/credits", s.authorize(authorization.ObjectCredit, authorization.ActionCreditView), s.ListCredits)
	api.POST("/credits", s.authorize(authorization.ObjectCredit, authorization.ActionCreditCreate), s.CreateCredit)
	api.GET("/credits/:id", s.authorize(authorization.ObjectCredit, authorization.ActionCreditView), s.GetCreditByID)
	api.POST("/credits/:id/apply", s.authorize(authorization.ObjectCredit, authorization.ActionCreditApply), s.ApplyCreditAmount)

	// -------- Tax --------
	api.GET("/tax-definitions", s.authorize(authorization.ObjectTax, authorization.ActionTaxView), s.ListTaxDefinitions)
	api.POST("/tax-definitions", s.authorize(authorization.ObjectTax, authorization.ActionTaxManage), s.CreateTaxDefinition)
	api.POST("/tax-definitions/:id/disable", s.authorize(authorization.ObjectTax, authorization.ActionTaxManage), s.DisableTaxDefinition)

	// -------- Cost entries --------
	api.GET("/cost-entries", s.authorize(authorization.ObjectCostEntry, authorization.ActionCostEntryView), s.ListCostEntries)
	api.POST("/cost-entries", s.authorize(authorization.ObjectCostEntry, authorization.ActionCostEntryIngest), s.CostIngestRateLimit(), s.IngestCostEntries)

	// -------- Invoice runs --------
	api.GET("/invoice-runs", s.authorize(authorization.ObjectInvoiceRun, authorization.ActionInvoiceRunView), s.ListInvoiceRuns)
	api.POST("/invoice-runs", s.authorize(authorization.ObjectInvoiceRun, authorization.ActionInvoiceRunStart), s.StartInvoiceRun)
	api.GET("/invoice-runs/:id", s.authorize(authorization.ObjectInvoiceRun, authorization.ActionInvoiceRunView), s.GetInvoiceRunByID)
	api.POST("/invoice-runs/release-stale", s.authorize(authorization.ObjectInvoiceRun, authorization.ActionInvoiceRunRelease), s.ReleaseStaleInvoiceRuns)

	// -------- Invoices --------
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	api.POST("/invoices/:id/issue", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceIssue), s.IssueInvoice)
	api.POST("/invoices/:id/cancel", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCancel), s.CancelInvoice)
	api.POST("/invoices/:id/lock", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceLock), s.LockInvoice)

	// -------- Reconciliation --------
	api.GET("/reconciliation/:month", s.authorize(authorization.ObjectReconciliation, authorization.ActionReconciliationView), s.GetReconciliationReport)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
