package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every validation failure so callers can treat
// configuration problems as fatal.
var ErrInvalid = errors.New("invalid configuration")

const (
	// MinSecretLength is the minimum HS256 secret size in bytes
	MinSecretLength = 32

	MinAccessTokenTTL = time.Minute
	MaxAccessTokenTTL = 24 * time.Hour

	DefaultRefreshCookieName = "refreshToken"
)

// DefaultBypassPaths lists the request paths served without a bearer token.
// Entries ending in "/" match as prefixes; others must match exactly.
var DefaultBypassPaths = []string{
	"/auth/",
	"/api/auth/",
	"/uploads/profile/",
	"/healthz",
	"/readyz",
	"/metrics",
}

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // Optional: separate DB for auth events. When nil, events use main DB.
	Auth          AuthConfig
	Admin         AdminConfig
	Frontend      FrontendConfig
	SMTP          SMTPConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	UploadsDir      string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// AuthConfig holds token signing and request gate configuration
type AuthConfig struct {
	JWTSecret           string
	Issuer              string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	ResetTokenTTL       time.Duration
	RefreshCookieName   string
	RefreshCookieSecure bool
	BypassPaths         []string
	PolicyFile          string // Optional YAML policy table; built-in table when empty
	BcryptCost          int
}

// AdminConfig describes the account created on first start
type AdminConfig struct {
	Email    string
	Password string // Generated when empty
	Name     string
}

// FrontendConfig holds browser-facing settings
type FrontendConfig struct {
	URL            string // Base for password reset links (FRONT_END_URL)
	ResetPath      string
	AllowedOrigins []string
}

// SMTPConfig holds outbound mail configuration. An empty Host logs
// notifications instead of sending them.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLSMode  string // auto, starttls, ssl or none
}

// RedisConfig holds the optional shared store used for rate limits and
// token revocation. An empty Addr selects in-process backends.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// RateLimitConfig holds limits for unauthenticated auth endpoints
type RateLimitConfig struct {
	Enabled   bool
	LoginMax  int
	ForgotMax int
	Window    time.Duration
	FailOpen  bool
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	env := getEnv("ENVIRONMENT", "development")
	dev := env == "development" || env == "dev"

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			UploadsDir:      getEnv("UPLOADS_DIR", "uploads/profile"),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			Issuer:              getEnv("JWT_ISSUER", "hr-auth"),
			AccessTokenTTL:      getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL:     getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			ResetTokenTTL:       getEnvAsDuration("RESET_TOKEN_TTL", 15*time.Minute),
			RefreshCookieName:   getEnv("REFRESH_COOKIE_NAME", DefaultRefreshCookieName),
			RefreshCookieSecure: getEnvAsBool("REFRESH_COOKIE_SECURE", !dev),
			BypassPaths:         getEnvAsSlice("AUTH_BYPASS_PATHS", DefaultBypassPaths),
			PolicyFile:          getEnv("AUTH_POLICY_FILE", ""),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 10),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Administrator"),
		},
		Frontend: FrontendConfig{
			URL:            getEnv("FRONT_END_URL", "http://localhost:4200"),
			ResetPath:      getEnv("RESET_PASSWORD_PATH", "/reset-password"),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200", "http://localhost:5173"}),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@hrapp.local"),
			TLSMode:  getEnv("SMTP_TLS_MODE", "auto"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getEnvAsBool("RATE_LIMIT_ENABLED", true),
			LoginMax:  getEnvAsInt("RATE_LIMIT_LOGIN_MAX", 10),
			ForgotMax: getEnvAsInt("RATE_LIMIT_FORGOT_MAX", 5),
			Window:    getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			FailOpen:  getEnvAsBool("RATE_LIMIT_FAIL_OPEN", true),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("%w: database configuration required: set DATABASE_URL or DB_HOST", ErrInvalid)
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("%w: database user is required", ErrInvalid)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("%w: database name is required", ErrInvalid)
		}
	}

	if err := c.Auth.validate(c.IsDevelopment()); err != nil {
		return err
	}

	if strings.TrimSpace(c.Admin.Email) == "" {
		return fmt.Errorf("%w: ADMIN_EMAIL is required", ErrInvalid)
	}
	if c.Admin.Password != "" && len(c.Admin.Password) < 8 {
		return fmt.Errorf("%w: ADMIN_PASSWORD must be at least 8 characters", ErrInvalid)
	}

	if c.IsProduction() && c.SMTP.Host == "" {
		return fmt.Errorf("%w: SMTP_HOST is required in production", ErrInvalid)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 || c.RateLimit.LoginMax <= 0 || c.RateLimit.ForgotMax <= 0 {
			return fmt.Errorf("%w: rate limit window and maximums must be positive", ErrInvalid)
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("%w: log level is required", ErrInvalid)
	}

	return nil
}

func (a *AuthConfig) validate(development bool) error {
	if a.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", ErrInvalid)
	}
	if len(a.JWTSecret) < MinSecretLength {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d bytes", ErrInvalid, MinSecretLength)
	}
	if a.AccessTokenTTL < MinAccessTokenTTL || a.AccessTokenTTL > MaxAccessTokenTTL {
		return fmt.Errorf("%w: ACCESS_TOKEN_TTL must be between %s and %s", ErrInvalid, MinAccessTokenTTL, MaxAccessTokenTTL)
	}
	if a.RefreshTokenTTL <= 0 || a.ResetTokenTTL <= 0 {
		return fmt.Errorf("%w: token lifetimes must be positive", ErrInvalid)
	}
	if a.RefreshCookieName == "" {
		return fmt.Errorf("%w: refresh cookie name is required", ErrInvalid)
	}
	if !development && !a.RefreshCookieSecure {
		return fmt.Errorf("%w: REFRESH_COOKIE_SECURE cannot be disabled outside development", ErrInvalid)
	}
	for _, p := range a.BypassPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: bypass path %q must start with /", ErrInvalid, p)
		}
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// ResetLinkBase returns the absolute URL password reset links point at
func (c *Config) ResetLinkBase() string {
	return strings.TrimSuffix(c.Frontend.URL, "/") + c.Frontend.ResetPath
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			InitSchema:       getEnvAsBool("DB_INIT_SCHEMA", true),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "hr"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "hr"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", true),
	}
}

// loadAuditDatabaseConfig loads the auth event DB config from DATABASE_URL_AUDIT.
// Returns nil when not set.
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:       getEnvAsBool("DB_INIT_SCHEMA", true),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma-separated value, dropping empty entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		out := make([]string, len(defaultValue))
		copy(out, defaultValue)
		return out
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
