package router

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/accessgate/internal/api/grpc/handler"
	"github.com/dtroode/accessgate/internal/api/grpc/middleware"
	"github.com/dtroode/accessgate/internal/api/grpc/sessionv1"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
)

// Router represents a gRPC router for internal session lookups.
// It manages gRPC service registration and middleware configuration.
type Router struct {
	sessionService handler.SessionService
	tokenService   middleware.TokenService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// New creates new gRPC Router instance.
//
// Parameters:
//   - sessionService: Rebuilds sessions for authenticated callers
//   - tokenService: Resolves bearer tokens to principals
//   - contextManager: Carries the principal through the call context
//   - logger: The logger for request logging
//
// Returns a pointer to the newly created Router instance.
func New(
	sessionService handler.SessionService,
	tokenService middleware.TokenService,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Router {
	return &Router{
		sessionService: sessionService,
		tokenService:   tokenService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// authRequired reports whether the call must carry a bearer token. Only the
// standard health service is public.
func authRequired(_ context.Context, c interceptors.CallMeta) bool {
	return !strings.HasPrefix(c.FullMethod(), "/"+healthpb.Health_ServiceDesc.ServiceName+"/")
}

// Register registers all gRPC services and middleware.
//
// Returns the configured gRPC server instance.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.tokenService, r.contextManager, r.logger)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.HandleGRPC,
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(authRequired),
			),
		),
		grpc.ChainStreamInterceptor(
			selector.StreamServerInterceptor(
				auth.StreamServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(authRequired),
			),
		),
	)

	sessionv1.RegisterSessionServer(s, handler.NewSession(r.sessionService, r.contextManager, r.logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(sessionv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)

	return s
}
