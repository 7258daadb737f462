// Package server assembles repositories, providers, services and HTTP routes
// into one gin engine.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"funding/internal/config"
	"funding/internal/domain"
	"funding/internal/middleware"
	"funding/internal/modules/analytics"
	"funding/internal/modules/donation"
	"funding/internal/modules/payment"
	"funding/internal/notification"
	"funding/internal/pkg/jwt"
	"funding/internal/pkg/rabbitmq"
	"funding/internal/pkg/shelterclient"
	"funding/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Options struct {
	Config    *config.Config
	DB        *gorm.DB
	Publisher rabbitmq.Publisher
	// Shelters overrides the shelter directory client built from config.
	Shelters donation.ShelterDirectory
	// ProviderHTTPClient is used by the Stripe and PayU adapters when set.
	ProviderHTTPClient *http.Client
	Loggerf            func(format string, args ...interface{})
}

type Server struct {
	Router    *gin.Engine
	Scheduler *analytics.Scheduler
	Hub       *notification.Hub
	Registry  *payment.Registry
	Analytics *analytics.Service
	JWT       *jwt.Service
}

func New(opts Options) *Server {
	cfg := opts.Config
	loggerf := opts.Loggerf
	if loggerf == nil {
		loggerf = log.Printf
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = rabbitmq.Fallback{}
	}

	donationRepo := repository.NewDonationRepository(opts.DB)
	paymentRepo := repository.NewPaymentRepository(opts.DB)
	analyticsRepo := repository.NewAnalyticsRepository(opts.DB)

	hub := notification.NewHub()
	notifier := notification.NewNotifier(publisher, hub, cfg.EventsExchange, loggerf)
	status := donation.NewStatusService(opts.DB, cfg.MaxPaymentAttempts, notifier, loggerf)

	registry := payment.NewRegistry(buildProviders(cfg, status, opts.ProviderHTTPClient, loggerf)...)
	if len(registry.Names()) == 0 {
		loggerf("level=warn msg=no payment provider configured, payments are disabled")
	}

	shelters := opts.Shelters
	if shelters == nil {
		if cfg.ShelterServiceURL != "" {
			shelters = shelterclient.NewClient(cfg.ShelterServiceURL, cfg.ShelterServiceAPIKey)
		} else {
			loggerf("level=warn msg=SHELTER_SERVICE_URL not set, donation targets are not verified")
			shelters = shelterclient.AllowAll{}
		}
	}

	donationSvc := donation.NewService(donationRepo, shelters, status, loggerf)
	paymentSvc := payment.NewService(registry, donationRepo, paymentRepo, status, loggerf)
	analyticsSvc := analytics.NewService(paymentRepo, analyticsRepo, registry.Names(), loggerf)

	jwtService := jwt.New(cfg.JWTSecret, cfg.JWTTTL)

	srv := &Server{
		Hub:       hub,
		Registry:  registry,
		Analytics: analyticsSvc,
		JWT:       jwtService,
		Scheduler: analytics.NewScheduler(analyticsSvc, cfg.AnalyticsCron, loggerf),
	}
	srv.Router = newRouter(cfg, opts.DB, jwtService, routes{
		donations: donation.NewHandler(donationSvc, loggerf),
		payments:  payment.NewHandler(paymentSvc, loggerf),
		analytics: analytics.NewHandler(analyticsSvc, loggerf),
		stream:    notification.NewWSHandler(hub, jwtService, donationSvc, cfg.CORSOrigins(), loggerf),
	})
	return srv
}

func buildProviders(cfg *config.Config, rec payment.Reconciler, hc *http.Client, loggerf func(format string, args ...interface{})) []payment.Provider {
	var out []payment.Provider
	if cfg.StripeEnabled() {
		out = append(out, payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			APIURL:        cfg.StripeAPIURL,
			HTTPClient:    hc,
		}, rec, loggerf))
	}
	if cfg.PayUEnabled() {
		out = append(out, payment.NewPayUProvider(payment.PayUConfig{
			ClientID:     cfg.PayUClientID,
			ClientSecret: cfg.PayUClientSecret,
			PosID:        cfg.PayUPosID,
			SecondKey:    cfg.PayUSecondKey,
			APIURL:       cfg.PayUAPIURL,
			NotifyURL:    cfg.WebhookURL(string(domain.ProviderPayU)),
			ContinueURL:  cfg.PublicBaseURL,
			HTTPClient:   hc,
		}, rec, loggerf))
	}
	return out
}

type routes struct {
	donations *donation.Handler
	payments  *payment.Handler
	analytics *analytics.Handler
	stream    *notification.WSHandler
}

func newRouter(cfg *config.Config, db *gorm.DB, jwtService *jwt.Service, h routes) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), middleware.ErrorLogger(), middleware.CORS(cfg.CORSOrigins()))

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	v1 := r.Group("/api/v1")
	{
		// public
		h.payments.RegisterPublicRoutes(v1)
		h.donations.RegisterPublicRoutes(v1)
		h.stream.RegisterRoutes(v1)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(jwtService))
		{
			h.donations.RegisterProtectedRoutes(protected)
			h.payments.RegisterProtectedRoutes(protected)

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminOnly())
			{
				h.payments.RegisterAdminRoutes(admin)
				h.analytics.RegisterAdminRoutes(admin)
			}
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalTokenAuth(cfg.InternalAPIToken, cfg.InternalAllowedIPs()))
		{
			h.analytics.RegisterInternalRoutes(internal)
		}
	}
	return r
}
