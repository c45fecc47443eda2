package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/config"
	delistingdomain "github.com/smallbiznis/crosslist/internal/delisting/domain"
	"github.com/smallbiznis/crosslist/internal/observability"
	obscontext "github.com/smallbiznis/crosslist/internal/observability/context"
	obsmiddleware "github.com/smallbiznis/crosslist/internal/observability/logger"
	obstracing "github.com/smallbiznis/crosslist/internal/observability/tracing"
	"github.com/smallbiznis/crosslist/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		ctx := obscontext.WithClientInfo(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	clock    clock.Clock
	ingestor *webhook.Ingestor
	delister delistingdomain.Engine
	jobs     delistingdomain.Repository
	auditSvc auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Clock    clock.Clock
	Ingestor *webhook.Ingestor
	Delister delistingdomain.Engine
	Jobs     delistingdomain.Repository
	AuditSvc auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("server"),
		clock:    p.Clock,
		ingestor: p.Ingestor,
		delister: p.Delister,
		jobs:     p.Jobs,
		auditSvc: p.AuditSvc,
	}

	svc.registerWebhookRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:marketplace", s.HandleWebhook)
	s.engine.GET("/webhooks/:marketplace", s.HandleWebhookHandshake)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", s.APIKeyRequired())
	internal.GET("/delisting/jobs/:id", s.GetDelistingJob)
	internal.POST("/delisting/jobs/:id/execute", s.ExecuteDelistingJob)
	internal.POST("/delisting/jobs/:id/confirm", s.ConfirmDelistingJob)
	internal.GET("/audit-logs", s.ListAuditLogs)
}
