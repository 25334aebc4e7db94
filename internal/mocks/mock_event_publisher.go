package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockEventPublisher is a mock implementation of billing.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Trigger(ctx context.Context, companyID, event string, payload interface{}) error {
	args := m.Called(ctx, companyID, event, payload)
	return args.Error(0)
}
