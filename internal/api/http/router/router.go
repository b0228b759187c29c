package router

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/accessgate/internal/api/http/handler"
	"github.com/dtroode/accessgate/internal/api/http/middleware"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/metrics"
	"github.com/dtroode/accessgate/internal/model"
)

// Services groups the collaborators behind the HTTP routes.
type Services struct {
	Auth        handler.AuthService
	Payment     handler.PaymentService
	Invitation  handler.InvitationService
	Token       middleware.TokenService
	HealthCheck handler.Pinger
}

// Options configures the HTTP surface.
type Options struct {
	FrontendRedirectURL string
	SecureCookies       bool
	AdminKey            string
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers name the client. Empty trusts none and uses the peer address.
	TrustedProxies []string
}

// Router builds the public HTTP API.
type Router struct {
	services       Services
	options        Options
	rateLimit      *middleware.RateLimit
	metrics        *metrics.Metrics
	contextManager model.ContextManager
	logger         *logger.Logger
}

// New creates a new HTTP Router instance. rateLimit guards the credential
// routes and may be nil.
func New(
	services Services,
	options Options,
	rateLimit *middleware.RateLimit,
	m *metrics.Metrics,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Router {
	return &Router{
		services:       services,
		options:        options,
		rateLimit:      rateLimit,
		metrics:        m,
		contextManager: contextManager,
		logger:         logger,
	}
}

// Register wires middleware and routes into a gin engine.
func (r *Router) Register() (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(r.options.TrustedProxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}
	engine.Use(gin.Recovery())
	engine.Use(middleware.NewLogging(r.logger).HandleHTTP)
	if r.metrics != nil {
		engine.Use(middleware.NewMetrics(r.metrics).HandleHTTP)
	}

	authenticate := middleware.NewAuthenticate(r.services.Token, r.contextManager, r.logger)
	authHandler := handler.NewAuth(r.services.Auth, r.contextManager, r.options.FrontendRedirectURL, r.options.SecureCookies, r.logger)
	paymentHandler := handler.NewPayment(r.services.Payment, r.services.Auth, r.contextManager, r.logger)
	invitationHandler := handler.NewInvitation(r.services.Invitation, r.logger)
	healthHandler := handler.NewHealth(r.services.HealthCheck, r.logger)

	limited := []gin.HandlerFunc{}
	if r.rateLimit != nil {
		limited = append(limited, r.rateLimit.HandleHTTP)
	}

	auth := engine.Group("/auth")
	{
		auth.POST("/register", append(limited, authHandler.Register)...)
		auth.POST("/login", append(limited, authHandler.Login)...)
		auth.GET("/me", authenticate.HandleHTTP, authHandler.Me)
		auth.GET("/oauth/:provider/start", append(limited, authHandler.OAuthStart)...)
		auth.GET("/oauth/:provider/callback", append(limited, authHandler.OAuthCallback)...)
	}

	engine.POST("/payment/confirm", authenticate.HandleHTTP, paymentHandler.Confirm)
	engine.POST("/webhooks/payment", paymentHandler.Webhook)

	admin := engine.Group("/admin", middleware.RequireAdminKey(r.options.AdminKey))
	admin.POST("/invitations", invitationHandler.Create)

	engine.GET("/healthz", healthHandler.Check)
	if r.metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	return engine, nil
}
