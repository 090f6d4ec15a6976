package bootstrap

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/alumniverein/intranet-api/config"
	"github.com/alumniverein/intranet-api/internal/adapters/authroles"
	redisadapter "github.com/alumniverein/intranet-api/internal/adapters/redis"
	"github.com/alumniverein/intranet-api/internal/adapters/totp"
	"github.com/alumniverein/intranet-api/internal/data"
	"github.com/alumniverein/intranet-api/internal/observability/statsd"
	"github.com/alumniverein/intranet-api/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Sessions    *service.SessionManager
	Credentials *service.CredentialService
	Federated   *service.FederatedService
	Users       *data.UserRepo
	Audit       *data.AuditRepo

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	Pool        *pgxpool.Pool
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices wires adapters, repositories, and services together.
func BuildServices(deps ServiceDeps) (ServiceContainer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(logger, cfg.Observability)

	userRepo := data.NewUserRepo(deps.Pool, data.LockoutPolicy{
		Threshold: cfg.Auth.Lockout.Threshold,
		Schedule:  cfg.Auth.Lockout.ScheduleSeconds(),
	})
	auditRepo := data.NewAuditRepo(deps.Pool, logger)

	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Store:       redisadapter.NewSessionStore(deps.RedisClient),
		IdleTimeout: cfg.Session.IdleTimeout,
		RotateAfter: cfg.Session.RotateAfter,
		TTL:         cfg.Session.TTL,
	})

	credentials := service.NewCredentialService(service.CredentialServiceOptions{
		Users:        userRepo,
		SecondFactor: totp.NewVerifier(),
		Audit:        auditRepo,
		Metrics:      obs.MetricsSink,
		Logger:       logger,
	})

	provider, err := buildAuthProvider(cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	directory, err := buildDirectoryClient(cfg.Auth.Directory, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	federated := service.NewFederatedService(service.FederatedServiceOptions{
		Sessions:  sessions,
		Provider:  provider,
		Directory: directory,
		Roles:     authroles.PriorityResolver{},
		Users:     userRepo,
		Audit:     auditRepo,
		Metrics:   obs.MetricsSink,
		Logger:    logger,
	})

	return ServiceContainer{
		Sessions:      sessions,
		Credentials:   credentials,
		Federated:     federated,
		Users:         userRepo,
		Audit:         auditRepo,
		Observability: obs,
	}, nil
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "intranet",
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// Run starts the HTTP server and blocks until a shutdown signal arrives or a
// component fails, then tears everything down in order.
func Run(ctx context.Context, cfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg,
		Services: services,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  server,
			Logger:  logger,
		})
	})

	return g.Wait()
}
