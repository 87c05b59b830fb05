package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/charitydesk/internal/checkout"
	checkoutdomain "github.com/smallbiznis/charitydesk/internal/checkout/domain"
	"github.com/smallbiznis/charitydesk/internal/claim"
	claimdomain "github.com/smallbiznis/charitydesk/internal/claim/domain"
	"github.com/smallbiznis/charitydesk/internal/config"
	"github.com/smallbiznis/charitydesk/internal/donation"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	"github.com/smallbiznis/charitydesk/internal/identity"
	"github.com/smallbiznis/charitydesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/charitydesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/charitydesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/charitydesk/internal/observability/tracing"
	"github.com/smallbiznis/charitydesk/internal/payment"
	paymentdomain "github.com/smallbiznis/charitydesk/internal/payment/domain"
	"github.com/smallbiznis/charitydesk/internal/ratelimit"
	"github.com/smallbiznis/charitydesk/internal/receipt"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires every service the HTTP API needs. The app still supplies config, observability,
// db, clock and the snowflake node.
var Module = fx.Module("http.server",
	identity.Module,
	donation.Module,
	receipt.Module,
	payment.Module,
	checkout.Module,
	claim.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
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

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
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
	identity    identity.Provider
	checkoutSvc checkoutdomain.Service
	claimSvc    claimdomain.Service
	donationSvc donationdomain.Service
	webhookSvc  paymentdomain.WebhookService
	limiter     *ratelimit.Limiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Identity    identity.Provider
	CheckoutSvc checkoutdomain.Service
	ClaimSvc    claimdomain.Service
	DonationSvc donationdomain.Service
	WebhookSvc  paymentdomain.WebhookService
	Limiter     *ratelimit.Limiter  `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		identity:    p.Identity,
		checkoutSvc: p.CheckoutSvc,
		claimSvc:    p.ClaimSvc,
		donationSvc: p.DonationSvc,
		webhookSvc:  p.WebhookSvc,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")

	donations := api.Group("/donations")
	donations.POST("/checkout", s.RateLimit(ratelimit.EndpointCheckout), s.CreateCheckout)
	donations.POST("/claim", s.RateLimit(ratelimit.EndpointClaim), s.AuthRequired(), s.ClaimDonation)
	donations.GET("/sessions/:session_id", s.GetDonationBySession)
	donations.GET("/me", s.AuthRequired(), s.ListMyDonations)

	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
