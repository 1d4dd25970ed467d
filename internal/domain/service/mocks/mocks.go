// Package mocks holds testify mocks of the domain service interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/service"
)

// MockKeyLifecycleRegistry is a mock implementation of service.KeyLifecycleRegistry.
type MockKeyLifecycleRegistry struct {
	mock.Mock
}

var _ service.KeyLifecycleRegistry = (*MockKeyLifecycleRegistry)(nil)

func (m *MockKeyLifecycleRegistry) LogEvent(ctx context.Context, event models.KeyLifecycleEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockRateLimiter is a mock implementation of service.RateLimiter.
type MockRateLimiter struct {
	mock.Mock
}

var _ service.RateLimiter = (*MockRateLimiter)(nil)

func (m *MockRateLimiter) Allow(ctx context.Context, key string) (*service.RateLimitDecision, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RateLimitDecision), args.Error(1)
}

func (m *MockRateLimiter) Reset(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockAuthenticator is a mock implementation of service.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

var _ service.Authenticator = (*MockAuthenticator)(nil)

func (m *MockAuthenticator) Authenticate(ctx context.Context, tenantID, username, password string) (*models.User, error) {
	args := m.Called(ctx, tenantID, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
