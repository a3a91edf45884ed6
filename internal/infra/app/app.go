package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/core/port"
	"github.com/tejash-sr/agri/internal/infra/config"
	"github.com/tejash-sr/agri/internal/infra/database"
	kafkainfra "github.com/tejash-sr/agri/internal/infra/kafka"
	"github.com/tejash-sr/agri/internal/infra/logger"
	redisinfra "github.com/tejash-sr/agri/internal/infra/redis"
	"github.com/tejash-sr/agri/internal/infra/security"
	"github.com/tejash-sr/agri/internal/infra/telemetry"
	"github.com/tejash-sr/agri/internal/repository/memory"
	postgresrepo "github.com/tejash-sr/agri/internal/repository/postgres"
	redisrepo "github.com/tejash-sr/agri/internal/repository/redis"
	"github.com/tejash-sr/agri/internal/transport/http/middleware"
	"github.com/tejash-sr/agri/internal/transport/http/routes"
	"github.com/tejash-sr/agri/internal/usecase"
)

// Application bundles the HTTP engine with the resources it owns.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

// New wires configuration into a runnable application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	if cfg.Postgres.Migrate {
		if err := database.RunMigrations(ctx, cfg.Postgres); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.JWT.KeyDirectory, cfg.JWT.KeyID)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider)

	issuer, err := security.NewTokenIssuer(jwtManager, cfg.JWT.KeyID, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	var (
		redisClient    *redisinfra.Client
		rateLimitStore port.RateLimitStore
	)
	if strings.EqualFold(cfg.RateLimit.Store, "redis") {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}

		rateLimitWindow := cfg.RateLimit.WindowDuration
		if rateLimitWindow <= 0 {
			rateLimitWindow = 15 * time.Minute
		}
		rateLimitStore = redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: cfg.Redis.KeyPrefix + ":rate-limit",
			TTL:       rateLimitWindow * 2,
		})
	} else {
		log.Info("using in-memory rate limit store")
		rateLimitStore = memory.NewRateLimitStore()
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	passwordValidator := security.DefaultPasswordValidator(cfg.Password.MinLength, cfg.Password.MinStrengthScore)

	metrics := telemetry.NewMetrics("agri_identity")
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log).WithMetrics(metrics)

	authService := usecase.NewAuthService(repos.Users, repos.Ledger, issuer, eventPublisher, log)
	registrationService := usecase.NewRegistrationService(repos.Users, repos.Ledger, passwordValidator, issuer, eventPublisher, log)
	passwordService := usecase.NewPasswordService(repos.Users, repos.Ledger, passwordValidator, eventPublisher, log)
	userService := usecase.NewUserService(repos.Users, repos.Ledger, eventPublisher, log)

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Metrics:     metrics,
		RateLimiter: rateLimiter,
		JWTManager:  jwtManager,
		Database:    pool,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Passwords:    passwordService,
			Users:        userService,
		},
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}

	engine := routes.Register(deps)

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
