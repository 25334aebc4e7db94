package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
)

// MockXMLBuilder is a mock implementation of billing.XMLBuilder.
type MockXMLBuilder struct {
	mock.Mock
}

func (m *MockXMLBuilder) Build(ctx *billing.XMLContext) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
