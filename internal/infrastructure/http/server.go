package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/billing-engine/internal/adapter/handler/http"
	"github.com/wekeepgrowing/billing-engine/internal/config"
	"github.com/wekeepgrowing/billing-engine/internal/infrastructure/database"
	"github.com/wekeepgrowing/billing-engine/internal/middleware/auth"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
	pkglogger "github.com/wekeepgrowing/billing-engine/pkg/logger"
)

// Services bundles the usecase services the HTTP surface exposes.
type Services struct {
	Checkout     *usecase.CheckoutService
	Subscription *usecase.SubscriptionService
	Period       *usecase.BillingPeriodService
	Reconciler   *usecase.ReconcilerService
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	repos    *database.Repositories
	services *Services
}

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func NewServer(cfg *config.Config, logger *zap.Logger, repos *database.Repositories, services *Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validator: validator.New()}

	// Middleware
	e.Use(pkglogger.NewEchoRequestLogger(logger))
	e.Use(middleware.Recover())
	pkglogger.WithEchoErrorHandler(e, logger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Service.ClientURL},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE},
	}))

	return &Server{
		config:   cfg,
		logger:   logger,
		echo:     e,
		repos:    repos,
		services: services,
	}
}

func (s *Server) Start() error {
	// Setup routes
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	// Initialize handlers
	checkoutHandler := handlers.NewCheckoutHandler(s.services.Checkout, s.logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(s.services.Subscription, s.services.Period, s.logger)
	webhookHandler := handlers.NewWebhookHandler(
		s.services.Reconciler,
		s.repos.Webhook,
		s.logger,
		s.config.Service.Stripe.WebhookSecret,
		s.config.Service.Stripe.ConnectedWebhookSecret,
	)

	// JWT middleware configuration
	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
		SkipPaths: []string{
			"/health",
			"/webhook",
			"/api/v1/checkout",
		},
	}

	// API v1 routes
	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))

	// Checkout sessions are keyed by opaque session tokens, not user auth,
	// so a guest can reach payment before signing in.
	checkout := v1.Group("/checkout")
	checkout.POST("/sessions", checkoutHandler.CreateSession)
	checkout.GET("/sessions/key/:key", checkoutHandler.ResolveSession)
	checkout.GET("/sessions/:id", checkoutHandler.GetSession)
	checkout.PATCH("/sessions/:id", checkoutHandler.UpdateSession)
	checkout.POST("/sessions/:id/discount", checkoutHandler.ApplyDiscountCode)
	checkout.DELETE("/sessions/:id/discount", checkoutHandler.ClearDiscountCode)

	// Subscriptions require authentication
	subscriptions := v1.Group("/subscriptions")
	subscriptions.GET("/:id", subscriptionHandler.GetSubscription)
	subscriptions.DELETE("/:id", subscriptionHandler.CancelSubscription)
	subscriptions.GET("/:id/current-period", subscriptionHandler.GetCurrentPeriod)

	// Webhook route (outside API versioning)
	s.echo.POST("/webhook", webhookHandler.HandleWebhook)
}
