package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/auth"
	"github.com/hrapp/hr-auth/config"
	"github.com/hrapp/hr-auth/handlers"
	"github.com/hrapp/hr-auth/internal/observability"
	"github.com/hrapp/hr-auth/internal/policy"
	"github.com/hrapp/hr-auth/middleware"
	"github.com/hrapp/hr-auth/repositories"
	"github.com/hrapp/hr-auth/repositories/postgres"
	"github.com/hrapp/hr-auth/services"
	"github.com/hrapp/hr-auth/services/audit"
	"github.com/hrapp/hr-auth/services/bootstrap"
	"github.com/hrapp/hr-auth/services/credentials"
	"github.com/hrapp/hr-auth/services/notify"
	"github.com/hrapp/hr-auth/services/passwordreset"
	"github.com/hrapp/hr-auth/services/ratelimit"
	"github.com/hrapp/hr-auth/services/revocation"
	"github.com/hrapp/hr-auth/token"
)

// auditStopTimeout bounds how long Close waits for queued audit events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *redis.Client
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users      repositories.UserRepository
	AuthEvents repositories.AuthEventRepository
	TxManager  repositories.TransactionManager

	// Services
	Metrics     *observability.Metrics
	Tokens      *token.Service
	Credentials *credentials.Store
	Denylist    revocation.Denylist
	RateLimiter *ratelimit.Service
	Notifier    notify.Notifier
	Audit       *audit.AuditService
	Resets      *passwordreset.Flow
	Sessions    *auth.SessionManager
	Admin       *bootstrap.AdminBootstrapper
	Policy      *policy.Table

	// HTTP
	AuthHandler    *auth.Handler
	AuthMiddleware *middleware.AuthMiddleware
	Authorizer     *middleware.Authorizer
	Health         *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repos := deps.RepoFactory.NewRepositories()
	deps.Users = repos.Users
	deps.AuthEvents = repos.AuthEvents
	deps.TxManager = deps.RepoFactory.GetTransactionManager()
	logger.Info("repositories initialized")

	// Optional shared store for rate limits and revocation
	if cfg.Redis.Enabled() {
		if err := deps.initRedis(ctx, cfg.Redis); err != nil {
			_ = deps.RepoFactory.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
	}

	if err := deps.initServices(); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Wire builds the service graph on top of already opened repositories.
// redisClient may be nil to select in-process backends.
func Wire(cfg *config.Config, logger *zap.Logger, repos *repositories.Repositories, txMgr repositories.TransactionManager, redisClient *redis.Client) (*Dependencies, error) {
	deps := &Dependencies{
		Config:     cfg,
		Logger:     logger,
		Redis:      redisClient,
		Users:      repos.Users,
		AuthEvents: repos.AuthEvents,
		TxManager:  txMgr,
	}
	if err := deps.initServices(); err != nil {
		return nil, err
	}
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if cfg.Database.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}

// initRedis connects the shared Redis client
func (d *Dependencies) initRedis(ctx context.Context, cfg config.RedisConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.Logger.Info("redis connection established", zap.String("addr", cfg.Addr))
	return nil
}

// initServices wires the auth services and HTTP components
func (d *Dependencies) initServices() error {
	cfg := d.Config

	if cfg.Observability.MetricsEnabled {
		metrics, err := observability.NewMetrics(nil)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		d.Metrics = metrics
	}

	tokens, err := token.NewService(token.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
		ResetTTL:   cfg.Auth.ResetTokenTTL,
	})
	if err != nil {
		return services.WrapConfiguration("invalid token configuration", err)
	}
	d.Tokens = tokens

	table, err := policy.LoadTable(cfg.Auth.PolicyFile)
	if err != nil {
		return services.WrapConfiguration("invalid policy table", err)
	}
	d.Policy = table
	d.Logger.Info("policy table loaded",
		zap.String("source", policySource(cfg.Auth.PolicyFile)),
		zap.Int("rules", table.Len()))

	d.initBackends()

	d.Credentials = credentials.NewStore(d.Users, cfg.Auth.BcryptCost, d.Logger)
	d.Notifier = notify.New(cfg.SMTP, d.Logger)

	d.Audit = audit.NewAuditService(d.AuthEvents, d.Logger, audit.DefaultConfig())
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Resets = passwordreset.NewFlow(tokens, d.Credentials, d.TxManager, d.Notifier, d.Denylist, cfg.ResetLinkBase(), d.Logger)
	d.Sessions = auth.NewSessionManager(tokens, d.Credentials, d.Denylist, cfg.Auth, d.Logger)
	d.Admin = bootstrap.NewAdminBootstrapper(d.Credentials, d.Notifier, d.Audit, cfg.Admin, !cfg.IsProduction(), d.Logger)

	d.AuthHandler = auth.NewHandler(tokens, d.Credentials, d.Sessions, d.Resets, d.RateLimiter, d.Audit, d.Metrics, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(tokens, d.Credentials, cfg.Auth.BypassPaths, d.Metrics, d.Logger)
	d.Authorizer = middleware.NewAuthorizer(table, d.Audit, d.Metrics, d.Logger)

	var sqlDB *sql.DB
	if d.DB != nil {
		sqlDB = d.DB.DB
	}
	d.Health = handlers.NewHealthHandler(sqlDB, d.Redis, d.Logger)

	return nil
}

// initBackends selects Redis or in-process revocation and rate limiting
func (d *Dependencies) initBackends() {
	cfg := d.Config
	limits := cfg.RateLimit

	if d.Redis != nil {
		d.Denylist = revocation.NewRedisDenylist(d.Redis, "")
	} else {
		d.Denylist = revocation.NewMemoryDenylist()
	}

	if !limits.Enabled {
		d.Logger.Warn("rate limiting disabled")
		return
	}

	limiters := make(map[ratelimit.Scope]ratelimit.Limiter, 2)
	if d.Redis != nil {
		limiters[ratelimit.ScopeLogin] = ratelimit.NewRedisLimiter(d.Redis, "", limits.LoginMax, limits.Window)
		limiters[ratelimit.ScopeForgotPassword] = ratelimit.NewRedisLimiter(d.Redis, "", limits.ForgotMax, limits.Window)
	} else {
		limiters[ratelimit.ScopeLogin] = ratelimit.NewMemoryLimiter("", limits.LoginMax, limits.Window)
		limiters[ratelimit.ScopeForgotPassword] = ratelimit.NewMemoryLimiter("", limits.ForgotMax, limits.Window)
	}
	d.RateLimiter = ratelimit.NewService(limiters, limits.FailOpen, d.Logger)

	d.Logger.Info("rate limiting enabled",
		zap.Bool("redis", d.Redis != nil),
		zap.Int("login_max", limits.LoginMax),
		zap.Int("forgot_max", limits.ForgotMax),
		zap.Duration("window", limits.Window))
}

func policySource(file string) string {
	if file == "" {
		return "builtin"
	}
	return file
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain audit events before the database goes away
	if d.Audit != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.Audit = nil
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		d.Redis = nil
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
