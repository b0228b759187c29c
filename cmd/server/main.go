package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/reflection"

	grpcctx "github.com/dtroode/accessgate/internal/api/grpc/context"
	grpcRouter "github.com/dtroode/accessgate/internal/api/grpc/router"
	grpcServer "github.com/dtroode/accessgate/internal/api/grpc/server"
	httpctx "github.com/dtroode/accessgate/internal/api/http/context"
	"github.com/dtroode/accessgate/internal/api/http/handler"
	"github.com/dtroode/accessgate/internal/api/http/middleware"
	httpRouter "github.com/dtroode/accessgate/internal/api/http/router"
	httpServer "github.com/dtroode/accessgate/internal/api/http/server"
	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/config"
	"github.com/dtroode/accessgate/internal/credential"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/metrics"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/payment"
	"github.com/dtroode/accessgate/internal/repository/memory"
	"github.com/dtroode/accessgate/internal/repository/postgres"
	"github.com/dtroode/accessgate/internal/server"
	"github.com/dtroode/accessgate/internal/service"
	"github.com/dtroode/accessgate/internal/session"
	storage "github.com/dtroode/accessgate/internal/storage/minio"
	"github.com/dtroode/accessgate/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	users       model.UserStore
	signups     model.SignupStore
	invitations model.InvitationStore
	payments    model.PaymentStore
	health      handler.Pinger
	close       func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)
	clk := clock.Real()
	m := metrics.New()

	st, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer st.close()

	tokenManager := token.NewJWT(cfg.JWT.Secret, clk)
	hasher := credential.NewBcrypt(cfg.Bcrypt.Cost)
	verifier, err := credential.NewLocal(st.users, hasher)
	if err != nil {
		logger.Fatal("failed to initialize credential verifier", "error", err)
	}
	oauth := credential.NewOAuth(credential.ProvidersFromConfig(cfg.OAuth), cfg.OAuth.Timeout)

	issuer := session.NewIssuer(st.users, st.invitations, st.payments, tokenManager, clk, cfg.JWT.TTL, m, logger)
	authService := service.NewAuth(st.users, st.signups, verifier, hasher, oauth, issuer, clk, cfg.Payment.Enabled, logger)
	tokenService := service.NewTokenService(tokenManager, logger)
	invitationService := service.NewInvitation(st.invitations, st.users, clk, cfg.Invite.DefaultTTL, logger)

	var processor service.ChargeGetter
	if cfg.Payment.APIURL != "" {
		processor = payment.NewProcessor(cfg.Payment.APIURL, cfg.Payment.APIKey, cfg.Payment.Timeout)
	}

	var archive model.Storage
	archiveClient, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialize storage client", "error", err)
	}
	if archiveClient != nil {
		archive = archiveClient
	}

	paymentService := service.NewPayment(st.payments, processor, archive, cfg.Payment.WebhookSecret, clk, m, logger)

	httpSrv, err := registerHTTPServer(cfg, logger, clk, m, st.health, authService, paymentService, invitationService, tokenService)
	if err != nil {
		logger.Fatal("failed to initialize http server", "error", err)
	}
	grpcSrv := registerGRPCServer(logger, authService, tokenService, grpcctx.NewManager(), fmt.Sprintf(":%s", cfg.GRPC.Port))

	sl := server.NewSecurityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName)

	servers := []model.Server{httpSrv, grpcSrv}

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s model.Server) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.Address())
				stop()
			}
		}(s)
	}

	logAppVersion()
	logger.Info("Configuration loaded",
		"payment_enabled", cfg.Payment.Enabled,
		"payment_processor", processor != nil,
		"webhook_archive", archive != nil,
		"persistent_storage", cfg.Database.DSN != "")

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.Address())
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

// openStores selects Postgres when a DSN is configured and in-memory stores
// otherwise.
func openStores(ctx context.Context, cfg config.Database, logger *logger.Logger) (*stores, error) {
	if cfg.DSN == "" {
		logger.Warn("DATABASE_DSN is empty, using in-memory storage")
		db := memory.NewDB()
		users := memory.NewUserRepository(db)
		return &stores{
			users:       users,
			signups:     users,
			invitations: memory.NewInvitationRepository(db),
			payments:    memory.NewPaymentRepository(db),
			close:       func() {},
		}, nil
	}

	db, err := postgres.NewConection(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &stores{
		users:       postgres.NewUserRepository(db),
		signups:     postgres.NewSignupRepository(db),
		invitations: postgres.NewInvitationRepository(db),
		payments:    postgres.NewPaymentRepository(db),
		health:      db,
		close:       func() { _ = db.Close() },
	}, nil
}

func registerHTTPServer(
	cfg *config.Config,
	logger *logger.Logger,
	clk clock.Clock,
	m *metrics.Metrics,
	health handler.Pinger,
	authService *service.Auth,
	paymentService *service.Payment,
	invitationService *service.Invitation,
	tokenService *service.TokenService,
) (*httpServer.HTTPServer, error) {
	if cfg.LogLevel >= 0 {
		gin.SetMode(gin.ReleaseMode)
	}

	r := httpRouter.New(
		httpRouter.Services{
			Auth:        authService,
			Payment:     paymentService,
			Invitation:  invitationService,
			Token:       tokenService,
			HealthCheck: health,
		},
		httpRouter.Options{
			FrontendRedirectURL: cfg.OAuth.FrontendRedirectURL,
			SecureCookies:       cfg.HTTP.SecureCookies,
			AdminKey:            cfg.AdminKey,
			TrustedProxies:      cfg.HTTP.TrustedProxies,
		},
		middleware.NewRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst, clk, m),
		m,
		httpctx.NewManager(),
		logger,
	)

	engine, err := r.Register()
	if err != nil {
		return nil, err
	}

	return httpServer.NewHTTPServer(engine, cfg.HTTP.Address, cfg.HTTP.RequestTimeout), nil
}

func registerGRPCServer(
	logger *logger.Logger,
	authService *service.Auth,
	tokenService *service.TokenService,
	ctxMgr model.ContextManager,
	addr string,
) *grpcServer.GRPCServer {
	r := grpcRouter.New(authService, tokenService, ctxMgr, logger)
	s := r.Register()

	reflection.Register(s)

	return grpcServer.NewGRPCServer(s, addr)
}
