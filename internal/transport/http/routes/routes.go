package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/infra/config"
	"github.com/tejash-sr/agri/internal/infra/security"
	"github.com/tejash-sr/agri/internal/infra/telemetry"
	"github.com/tejash-sr/agri/internal/transport/http/handlers"
	"github.com/tejash-sr/agri/internal/transport/http/middleware"
	"github.com/tejash-sr/agri/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Passwords    *usecase.PasswordService
	Users        *usecase.UserService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Metrics     *telemetry.Metrics
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	JWTManager  *security.JWTManager
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	if len(deps.Config.CORS.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Auth)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jwksHandler := handlers.NewJWKSHandler(deps.JWTManager)
	r.GET("/.well-known/jwks.json", jwksHandler.Keys)

	api := r.Group("/api/v1")
	{
		isDev := deps.Config.App.Env == "development"
		notificationDispatcher := handlers.NewLoggingNotificationDispatcher(deps.Logger)

		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Auth)
		authHandler.RegisterRoutes(authGroup,
			rateLimitChain(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts),
			rateLimitChain(deps, "auth_refresh_ip", deps.Config.RateLimit.RefreshMaxAttempts))

		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration, notificationDispatcher, isDev)
		registrationHandler.RegisterRoutes(authGroup, authMiddleware,
			rateLimitChain(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts),
			rateLimitChain(deps, "email_verification_ip", deps.Config.RateLimit.VerificationMaxAttempts))

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords, notificationDispatcher,
			time.Hour, isDev)

		passwordGroup := api.Group("/password")
		passwordGroup.POST("/change", authMiddleware, passwordHandler.ChangePassword)

		resetMiddlewares := rateLimitChain(deps, "password_reset_ip", deps.Config.RateLimit.PasswordResetMaxAttempts)

		forgotChain := append([]gin.HandlerFunc{}, resetMiddlewares...)
		forgotChain = append(forgotChain, passwordHandler.ForgotPassword)
		passwordGroup.POST("/forgot", forgotChain...)

		resetChain := append([]gin.HandlerFunc{}, resetMiddlewares...)
		resetChain = append(resetChain, passwordHandler.ResetPassword)
		passwordGroup.POST("/reset", resetChain...)

		userHandler := handlers.NewUserHandler(deps.Services.Users)
		userGroup := api.Group("/user")
		userGroup.Use(authMiddleware)
		userHandler.RegisterRoutes(userGroup)
	}

	handlers.RegisterSwagger(r)

	return r
}

// rateLimitChain builds the middleware chain for one rate-limited route.
// A nil limiter or non-positive limit disables the rule.
func rateLimitChain(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
