package mocks

import (
	"context"

	"github.com/dukex/agentflow/pkg/credentials"
	"github.com/stretchr/testify/mock"
)

// MockProvisioner is a mock implementation of credentials.Provisioner interface.
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Ensure(ctx context.Context) (credentials.Credential, error) {
	args := m.Called(ctx)

	return args.Get(0).(credentials.Credential), args.Error(1)
}
