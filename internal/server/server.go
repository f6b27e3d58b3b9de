package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/authorization"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/observability"
	obsmiddleware "github.com/smallbiznis/procura/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/procura/internal/observability/metrics"
	obstracing "github.com/smallbiznis/procura/internal/observability/tracing"
	"github.com/smallbiznis/procura/internal/ratelimit"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	workflowdomain "github.com/smallbiznis/procura/internal/workflow/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(p.Log.Named("http"), obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if p.HTTPMetrics != nil {
		r.Use(p.HTTPMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(obsmetrics.Handler()))

	if dir := strings.TrimSpace(p.Cfg.Storage.Dir); dir != "" {
		r.Static("/files", dir)
	}

	return r
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	userSvc     userdomain.Service
	orgSvc      orgdomain.Service
	requestSvc  prdomain.Service
	workflowSvc workflowdomain.Service
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	workflow    *config.WorkflowConfigHolder

	uploadLimiter ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	UserSvc     userdomain.Service
	OrgSvc      orgdomain.Service
	RequestSvc  prdomain.Service
	WorkflowSvc workflowdomain.Service
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service
	Workflow    *config.WorkflowConfigHolder
	Limiter     ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		userSvc:     p.UserSvc,
		orgSvc:      p.OrgSvc,
		requestSvc:  p.RequestSvc,
		workflowSvc: p.WorkflowSvc,
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		workflow:    p.Workflow,

		uploadLimiter: p.Limiter,
	}

	s.registerAPIRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.PrincipalRequired())

	// -------- Purchase Requests --------
	requests := api.Group("/requests")
	{
		requests.GET("", s.authorize(authorization.ObjectPurchaseRequest, authorization.ActionPurchaseRequestView), s.ListPurchaseRequests)
		requests.POST("", s.authorize(authorization.ObjectPurchaseRequest, authorization.ActionPurchaseRequestCreate), s.CreatePurchaseRequest)
		requests.GET("/statistics", s.authorize(authorization.ObjectStatistics, authorization.ActionStatisticsView), s.GetStatistics)
		requests.GET("/:id", s.authorize(authorization.ObjectPurchaseRequest, authorization.ActionPurchaseRequestView), s.GetPurchaseRequest)
		requests.PATCH("/:id", s.authorize(authorization.ObjectPurchaseRequest, authorization.ActionPurchaseRequestUpdate), s.UpdatePurchaseRequest)
		requests.POST("/:id/approve", s.authorize(authorization.ObjectPurchaseRequest, authorization.ActionPurchaseRequestApprove), s.ApprovePurchaseRequest)
		requests.POST("/:id/reject", s.authorize(authorization.ObjectPurchaseRequest, authorization.ActionPurchaseRequestReject), s.RejectPurchaseRequest)
		requests.POST("/:id/receipt", s.authorize(authorization.ObjectPurchaseRequest, authorization.ActionPurchaseRequestSubmitReceipt), s.uploadRateLimit(), s.SubmitReceipt)
		requests.POST("/:id/proforma", s.authorize(authorization.ObjectPurchaseRequest, authorization.ActionPurchaseRequestAttachProforma), s.uploadRateLimit(), s.AttachProforma)
	}

	// -------- Organization --------
	api.GET("/organization/settings", s.authorize(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.GetOrganizationSettings)
	api.PATCH("/organization/settings", s.authorize(authorization.ObjectOrganization, authorization.ActionOrganizationUpdateSettings), s.UpdateOrganizationSettings)

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
