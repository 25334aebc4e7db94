package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
)

// MockSunatClient is a mock implementation of billing.SunatClient.
type MockSunatClient struct {
	mock.Mock
}

func (m *MockSunatClient) SendBill(ctx context.Context, req billing.SendRequest) (*billing.CDRResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CDRResponse), args.Error(1)
}

func (m *MockSunatClient) SendSummary(ctx context.Context, req billing.SendRequest) (*billing.TicketResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.TicketResponse), args.Error(1)
}

func (m *MockSunatClient) SendDispatch(ctx context.Context, req billing.SendRequest) (*billing.TicketResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.TicketResponse), args.Error(1)
}

func (m *MockSunatClient) GetStatus(ctx context.Context, creds billing.Credentials, ticket string) (*billing.StatusResponse, error) {
	args := m.Called(ctx, creds, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.StatusResponse), args.Error(1)
}

func (m *MockSunatClient) GetDispatchStatus(ctx context.Context, creds billing.Credentials, ticket string) (*billing.StatusResponse, error) {
	args := m.Called(ctx, creds, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.StatusResponse), args.Error(1)
}
