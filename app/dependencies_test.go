package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/hrapp/hr-auth/config"
	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/repositories"
	"github.com/hrapp/hr-auth/repositories/postgres"
	"github.com/hrapp/hr-auth/services"
	"github.com/hrapp/hr-auth/services/revocation"
)

// memoryUsers is an in-memory UserRepository
type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*models.User)}
}

func (m *memoryUsers) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return repositories.ErrDuplicate
	}
	m.users[user.Email] = user
	return nil
}

func (m *memoryUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, repositories.ErrNotFound
}

func (m *memoryUsers) UpdatePassword(_ context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return repositories.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memoryUsers) UpdateStatus(_ context.Context, email string, status models.UserStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return repositories.ErrNotFound
	}
	u.Status = status
	return nil
}

func (m *memoryUsers) WithTx(repositories.Transaction) repositories.UserRepository { return m }

// memoryEvents is an in-memory AuthEventRepository
type memoryEvents struct {
	mu     sync.Mutex
	events []*models.AuthEvent
}

func (m *memoryEvents) Insert(_ context.Context, event *models.AuthEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryEvents) ListBySubject(_ context.Context, subject string, limit int) ([]*models.AuthEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuthEvent
	for _, e := range m.events {
		if e.Subject == subject && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEvents) WithTx(repositories.Transaction) repositories.AuthEventRepository { return m }

func (m *memoryEvents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestWire(t *testing.T) {
	t.Run("builds the service graph with in-process backends", func(t *testing.T) {
		cfg := testConfig(t)
		deps, err := Wire(cfg, zaptest.NewLogger(t), testRepos(), nil, nil)
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.NotNil(t, deps.Tokens)
		assert.NotNil(t, deps.Credentials)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.Resets)
		assert.NotNil(t, deps.Sessions)
		assert.NotNil(t, deps.Admin)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.Authorizer)
		assert.NotNil(t, deps.Health)
		assert.NotNil(t, deps.RateLimiter)
		assert.NotNil(t, deps.Metrics)
		assert.IsType(t, &revocation.MemoryDenylist{}, deps.Denylist)
		assert.Greater(t, deps.Policy.Len(), 0)
	})

	t.Run("missing secret is a configuration error", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = ""

		_, err := Wire(cfg, zap.NewNop(), testRepos(), nil, nil)
		require.Error(t, err)
		assert.True(t, services.IsConfigurationError(err))
	})

	t.Run("invalid policy file is a configuration error", func(t *testing.T) {
		cfg := testConfig(t)
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rules:\n  - method: GET\n    pattern: /api/x\n    roles: [MANAGER]\n"), 0o600))
		cfg.Auth.PolicyFile = path

		_, err := Wire(cfg, zap.NewNop(), testRepos(), nil, nil)
		require.Error(t, err)
		assert.True(t, services.IsConfigurationError(err))
	})

	t.Run("rate limiting can be disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RateLimit.Enabled = false
		cfg.Observability.MetricsEnabled = false

		deps, err := Wire(cfg, zap.NewNop(), testRepos(), nil, nil)
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.Nil(t, deps.RateLimiter)
		assert.Nil(t, deps.Metrics)
	})

	t.Run("redis backends when a client is given", func(t *testing.T) {
		addr := os.Getenv("REDIS_ADDR")
		if addr == "" {
			t.Skip("REDIS_ADDR not set")
		}
		client := redis.NewClient(&redis.Options{Addr: addr})

		deps, err := Wire(testConfig(t), zap.NewNop(), testRepos(), nil, client)
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.IsType(t, &revocation.RedisDenylist{}, deps.Denylist)
	})
}

func TestAdminBootstrapThroughWiring(t *testing.T) {
	users := newMemoryUsers()
	events := &memoryEvents{}
	cfg := testConfig(t)
	cfg.Admin = config.AdminConfig{Email: "admin@hrapp.local", Password: "ChangeMe123!", Name: "Admin"}

	deps, err := Wire(cfg, zap.NewNop(), &repositories.Repositories{Users: users, AuthEvents: events}, nil, nil)
	require.NoError(t, err)

	created, err := deps.Admin.EnsureAdmin(context.Background())
	require.NoError(t, err)
	assert.True(t, created)

	principal, err := deps.Credentials.Authenticate(context.Background(), "admin@hrapp.local", "ChangeMe123!")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, principal.Role)

	// Close drains the audit queue into the repository
	require.NoError(t, deps.Close(context.Background()))
	assert.Equal(t, 1, events.count())
}

func TestDependenciesClose(t *testing.T) {
	deps, err := Wire(testConfig(t), zap.NewNop(), testRepos(), nil, nil)
	require.NoError(t, err)

	assert.NoError(t, deps.Close(context.Background()))
	// Second close should not panic
	assert.NoError(t, deps.Close(context.Background()))
}

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization against a database", func(t *testing.T) {
		cfg := testConfig(t)
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.TxManager)
		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database.Host = "invalid-host-that-does-not-exist"

		deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

// Test helpers

func testRepos() *repositories.Repositories {
	return &repositories.Repositories{Users: newMemoryUsers(), AuthEvents: &memoryEvents{}}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            5432,
			User:            getEnvOrDefault("DB_USER", "hrapp"),
			Password:        getEnvOrDefault("DB_PASSWORD", "hrapp"),
			Database:        getEnvOrDefault("DB_NAME", "hrapp_test"),
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			InitSchema:      true,
		},
		Auth: config.AuthConfig{
			JWTSecret:         "0123456789abcdef0123456789abcdef",
			Issuer:            "hr-auth-test",
			AccessTokenTTL:    time.Hour,
			RefreshTokenTTL:   7 * 24 * time.Hour,
			ResetTokenTTL:     15 * time.Minute,
			RefreshCookieName: config.DefaultRefreshCookieName,
			BypassPaths:       config.DefaultBypassPaths,
			BcryptCost:        bcrypt.MinCost,
		},
		Frontend: config.FrontendConfig{
			URL:            "http://localhost:4200",
			ResetPath:      "/reset-password",
			AllowedOrigins: []string{"http://localhost:4200"},
		},
		RateLimit: config.RateLimitConfig{
			Enabled:   true,
			LoginMax:  10,
			ForgotMax: 5,
			Window:    time.Minute,
			FailOpen:  true,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	t.Helper()
	factory, err := postgres.NewRepositoryFactory(cfg, zap.NewNop())
	if err != nil {
		return false
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return factory.GetDB().PingContext(ctx) == nil
}
