package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/webhook"
)

// MockWebhookSender is a mock implementation of webhook.Sender.
type MockWebhookSender struct {
	mock.Mock
}

func (m *MockWebhookSender) Send(ctx context.Context, req webhook.Request) (*webhook.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.Response), args.Error(1)
}
