package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockArtifactStorage is a mock implementation of billing.ArtifactStorage.
type MockArtifactStorage struct {
	mock.Mock
}

func (m *MockArtifactStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockArtifactStorage) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
