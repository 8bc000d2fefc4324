package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/septivank/solar-dashboard/internal/api"
	"github.com/septivank/solar-dashboard/internal/auth"
	"github.com/septivank/solar-dashboard/internal/config"
	"github.com/septivank/solar-dashboard/internal/customers"
	"github.com/septivank/solar-dashboard/internal/db"
	"github.com/septivank/solar-dashboard/internal/mq"
	"github.com/septivank/solar-dashboard/internal/readings"
	"github.com/septivank/solar-dashboard/internal/repository"
	"github.com/septivank/solar-dashboard/internal/service"
	"github.com/septivank/solar-dashboard/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideDBPool creates the database pool bound to the app lifecycle
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, db.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
}

// ProvideRepository creates the repository in the canonical timezone
func ProvideRepository(pool *db.Pool, cfg *config.Config) *repository.Repository {
	return repository.NewRepository(pool, cfg.Location())
}

// ProvideResolver picks how customer identifiers map to stored readings
func ProvideResolver(cfg *config.Config, repo *repository.Repository) readings.Resolver {
	if cfg.CustomerKey == config.CustomerKeyDirect {
		return readings.NewDirectResolver(repo)
	}
	return readings.NewCodeResolver(repo)
}

// ProvideExtractor creates the daily first reading extractor
func ProvideExtractor(cfg *config.Config, repo *repository.Repository, resolver readings.Resolver) *readings.Extractor {
	return readings.NewExtractor(repo, resolver, cfg.Location())
}

// ProvideMQConnection dials RabbitMQ, or returns nil when no broker is configured
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if !cfg.IngestionEnabled() {
		logger.Info("RABBITMQ_URL not set, ingestion and customer events disabled")
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideEventPublisher creates the customer event publisher, or nil without a broker
func ProvideEventPublisher(lc fx.Lifecycle, conn *mq.Connection, logger *zap.Logger, cfg *config.Config) (customers.Publisher, error) {
	if conn == nil {
		return nil, nil
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, cfg.RabbitMQ.CustomerRoutingKey, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideRegistry creates the customer registry
func ProvideRegistry(repo *repository.Repository, publisher customers.Publisher, cfg *config.Config, logger *zap.Logger) *customers.Registry {
	return customers.NewRegistry(repo, publisher, cfg.Location(), logger)
}

// ProvideValidator creates the ingestion validator
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes, cfg.Location())
}

// ProvideIngestor creates the reading ingestor
func ProvideIngestor(repo *repository.Repository, resolver readings.Resolver, v *validator.Validator, logger *zap.Logger) *service.Ingestor {
	return service.NewIngestor(repo, resolver, v, logger)
}

// ProvideSessionManager creates the browser session manager
func ProvideSessionManager(cfg *config.Config, logger *zap.Logger) *auth.SessionManager {
	return auth.NewSessionManager(cfg.Auth.SecretKey, cfg.Auth.SessionTTL, logger)
}

// ProvideServer assembles the HTTP surface
func ProvideServer(
	cfg *config.Config,
	registry *customers.Registry,
	extractor *readings.Extractor,
	resolver readings.Resolver,
	repo *repository.Repository,
	sessions *auth.SessionManager,
	logger *zap.Logger,
) *api.Server {
	if cfg.Auth.APIKey == "" {
		logger.Warn("API_KEY not set, /api/v1 rejects every request")
	}

	return api.NewServer(api.ServerConfig{
		Addr:        cfg.HTTPAddr,
		Customers:   registry,
		Readings:    extractor,
		Identifiers: resolver,
		Store:       repo,
		Credentials: auth.NewStaticCredentials(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword),
		Sessions:    sessions,
		Limiter:     auth.NewLoginLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateBurst),
		APIKey:      cfg.Auth.APIKey,
		Logger:      logger,
	})
}

func startServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, server *api.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", server.Addr())
			if err != nil {
				return err
			}
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server failed", zap.Error(err))
					shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

func startIngestion(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger, ingestor *service.Ingestor) error {
	if conn == nil {
		return nil
	}

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		Queue:         cfg.RabbitMQ.IngestQueue,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       ingestor.ProcessMessage,
	})
	if err != nil {
		return err
	}

	consumer.RegisterLifecycle(lc)
	return nil
}
