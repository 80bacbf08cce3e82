package audit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/repositories"
)

// MockAuthEventRepository is a mock implementation of AuthEventRepository
type MockAuthEventRepository struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.AuthEvent
}

func (m *MockAuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	args := m.Called(ctx, event)
	m.mu.Lock()
	m.inserted = append(m.inserted, event)
	m.mu.Unlock()
	return args.Error(0)
}

func (m *MockAuthEventRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]*models.AuthEvent, error) {
	args := m.Called(ctx, subject, limit)
	if events := args.Get(0); events != nil {
		return events.([]*models.AuthEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthEventRepository) WithTx(tx repositories.Transaction) repositories.AuthEventRepository {
	return m
}

func (m *MockAuthEventRepository) Inserted() []*models.AuthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuthEvent(nil), m.inserted...)
}

func insertedCount(repo *MockAuthEventRepository) func() int {
	return func() int { return len(repo.Inserted()) }
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	err := service.Start()
	require.NoError(t, err)

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)

	// Cannot stop twice
	assert.Error(t, service.Stop(time.Second))
}

func TestAuditService_Record(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	event := LoginSucceeded("Alice@Corp.com", models.RoleHR, RequestMeta{RequestID: "req-1", IPAddress: "10.0.0.1"})
	require.NoError(t, service.Record(event))

	assert.Eventually(t, func() bool { return insertedCount(mockRepo)() == 1 }, time.Second, 10*time.Millisecond)

	got := mockRepo.Inserted()[0]
	assert.Equal(t, models.AuthEventLoginSucceeded, got.Type)
	assert.Equal(t, "alice@corp.com", got.Subject)
	assert.Equal(t, "req-1", got.RequestID)
	assert.JSONEq(t, `{"role":"HR"}`, string(got.Details))
}

func TestAuditService_RecordBeforeStart(t *testing.T) {
	service := NewAuditService(new(MockAuthEventRepository), zap.NewNop(), DefaultConfig())
	assert.Error(t, service.Record(Logout("a@corp.com", RequestMeta{})))
}

func TestAuditService_RecordAfterStop(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(time.Second))

	// Must not panic on the closed channel
	assert.Error(t, service.Record(Logout("a@corp.com", RequestMeta{})))
	assert.Error(t, service.RecordBlocking(context.Background(), Logout("a@corp.com", RequestMeta{})))
}

func TestAuditService_RecordNil(t *testing.T) {
	service := NewAuditService(new(MockAuthEventRepository), zap.NewNop(), DefaultConfig())
	assert.NoError(t, service.Record(nil))
}

func TestAuditService_RecordBlocking(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	err := service.RecordBlocking(context.Background(), PasswordResetCompleted("bob@corp.com", RequestMeta{}))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return insertedCount(mockRepo)() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestAuditService_ConcurrentRecording(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 5})
	require.NoError(t, service.Start())

	goroutineCount := 10
	eventsPerGoroutine := 10
	var wg sync.WaitGroup

	for i := 0; i < goroutineCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				service.Record(LoginFailed("x@corp.com", "bad_password", RequestMeta{}))
			}
		}()
	}
	wg.Wait()

	// Stop drains the queue
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.Inserted(), goroutineCount*eventsPerGoroutine)
}

func TestAuditService_BufferFull(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		time.Sleep(50 * time.Millisecond)
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 5, WorkerCount: 1})
	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	successCount := 0
	for i := 0; i < 20; i++ {
		if err := service.Record(Logout("a@corp.com", RequestMeta{})); err == nil {
			successCount++
		}
	}

	assert.Less(t, successCount, 20)
	assert.Equal(t, uint64(20-successCount), service.GetStats().Dropped)
}

func TestAuditService_StopTimeout(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		time.Sleep(2 * time.Second)
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, service.Start())

	service.Record(Logout("a@corp.com", RequestMeta{}))

	err := service.Stop(50 * time.Millisecond)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestAuditService_InsertErrorIsLogged(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(assert.AnError)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.Record(Logout("a@corp.com", RequestMeta{})))
	require.NoError(t, service.Stop(time.Second))
	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 1000, config.BufferSize)
	assert.Equal(t, 2, config.WorkerCount)
}

func TestEventBuilders(t *testing.T) {
	meta := RequestMeta{RequestID: "r", IPAddress: "1.2.3.4", UserAgent: "ua"}

	tests := []struct {
		name    string
		event   *models.AuthEvent
		want    models.AuthEventType
		details string
	}{
		{"login failed", LoginFailed("a@corp.com", "bad_password", meta), models.AuthEventLoginFailed, `{"reason":"bad_password"}`},
		{"refreshed", TokenRefreshed("a@corp.com", models.RoleAdmin, meta), models.AuthEventTokenRefreshed, `{"role":"ADMIN"}`},
		{"refresh rejected", RefreshRejected("", "expired", meta), models.AuthEventRefreshRejected, `{"reason":"expired"}`},
		{"reset requested", PasswordResetRequested("a@corp.com", false, meta), models.AuthEventPasswordResetRequested, `{"known_account":false}`},
		{"access denied", AccessDenied("a@corp.com", models.RoleEmployee, "GET", "/api/admin/x", meta), models.AuthEventAccessDenied, `{"role":"EMPLOYEE","method":"GET","path":"/api/admin/x"}`},
		{"bootstrapped", AdminBootstrapped("admin@corp.com", true), models.AuthEventAdminBootstrapped, `{"generated_password":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Type)
			assert.JSONEq(t, tt.details, string(tt.event.Details))
		})
	}

	logout := Logout("a@corp.com", meta)
	assert.Nil(t, logout.Details)
	assert.Equal(t, "1.2.3.4", logout.IPAddress)
	assert.Equal(t, "ua", logout.UserAgent)
}

func TestMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "192.168.1.10:5555"
	req.Header.Set("User-Agent", "test-agent")
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-42"))

	meta := MetaFromRequest(req)
	assert.Equal(t, "192.168.1.10", meta.IPAddress)
	assert.Equal(t, "test-agent", meta.UserAgent)
	assert.Equal(t, "req-42", meta.RequestID)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Record(Logout("a", RequestMeta{})))
}
