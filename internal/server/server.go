package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tollwaylabs/tollway/internal/authn"
	authndomain "github.com/tollwaylabs/tollway/internal/authn/domain"
	"github.com/tollwaylabs/tollway/internal/catalog"
	catalogdomain "github.com/tollwaylabs/tollway/internal/catalog/domain"
	"github.com/tollwaylabs/tollway/internal/cloudmetrics"
	"github.com/tollwaylabs/tollway/internal/config"
	"github.com/tollwaylabs/tollway/internal/credential"
	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
	"github.com/tollwaylabs/tollway/internal/identity"
	identitydomain "github.com/tollwaylabs/tollway/internal/identity/domain"
	"github.com/tollwaylabs/tollway/internal/inventory"
	"github.com/tollwaylabs/tollway/internal/observability"
	obsmiddleware "github.com/tollwaylabs/tollway/internal/observability/logger"
	obsmetrics "github.com/tollwaylabs/tollway/internal/observability/metrics"
	obstracing "github.com/tollwaylabs/tollway/internal/observability/tracing"
	"github.com/tollwaylabs/tollway/internal/payment"
	paymentdomain "github.com/tollwaylabs/tollway/internal/payment/domain"
	"github.com/tollwaylabs/tollway/internal/ratelimit"
	"github.com/tollwaylabs/tollway/internal/subscription"
	"github.com/tollwaylabs/tollway/internal/tenant"
	tenantdomain "github.com/tollwaylabs/tollway/internal/tenant/domain"
	"github.com/tollwaylabs/tollway/internal/usage"
	usagedomain "github.com/tollwaylabs/tollway/internal/usage/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	cloudmetrics.Module,
	fx.Provide(registerGin),
	authn.Module,
	catalog.Module,
	credential.Module,
	identity.Module,
	inventory.Module,
	payment.Module,
	ratelimit.Module,
	subscription.Module,
	tenant.Module,
	usage.Module,
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
	r.Use(httpMetrics.GinMiddleware())
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
	engine        *gin.Engine
	cfg           config.Config
	authSvc       authndomain.Service
	usageSvc      usagedomain.Service
	paymentSvc    paymentdomain.Service
	catalogSvc    catalogdomain.Service
	credentialSvc credentialdomain.Service
	identitySvc   identitydomain.Service
	tenantSvc     tenantdomain.Service
	usageLimiter  *ratelimit.TenantLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	AuthSvc       authndomain.Service
	UsageSvc      usagedomain.Service
	PaymentSvc    paymentdomain.Service
	CatalogSvc    catalogdomain.Service
	CredentialSvc credentialdomain.Service
	IdentitySvc   identitydomain.Service
	TenantSvc     tenantdomain.Service
	UsageLimiter  *ratelimit.TenantLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		authSvc:       p.AuthSvc,
		usageSvc:      p.UsageSvc,
		paymentSvc:    p.PaymentSvc,
		catalogSvc:    p.CatalogSvc,
		credentialSvc: p.CredentialSvc,
		identitySvc:   p.IdentitySvc,
		tenantSvc:     p.TenantSvc,
		usageLimiter:  p.UsageLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) registerRoutes() {
	metered := s.engine.Group("/", s.TenantAuth())
	{
		metered.POST("/usage", s.UsageRateLimit(), s.TrackUsage)
		metered.GET("/usage", s.ReadUsage)
		metered.GET("/catalog", s.ListCatalog)
		metered.POST("/credentials/rotate", s.RotateCredential)
		metered.POST("/settings/payment-token", s.SavePaymentToken)
	}

	// Webhooks authenticate by signature, bootstrap by session token.
	s.engine.POST("/webhook", s.HandleWebhook)
	s.engine.POST("/webhook/:provider", s.HandleWebhook)
	s.engine.POST("/bootstrap", s.Bootstrap)
}
