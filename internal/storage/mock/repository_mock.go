package mock

import (
	"context"

	"github.com/stretchr/testify/mock"
	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
)

// CallRepoMock mocks the CallRepo interface
type CallRepoMock struct {
	mock.Mock
}

// Upsert mocks the Upsert method
func (m *CallRepoMock) Upsert(ctx context.Context, call model.Call) (*model.Call, error) {
	args := m.Called(ctx, call)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

// FindByExternalID mocks the FindByExternalID method
func (m *CallRepoMock) FindByExternalID(ctx context.Context, externalCallID string) (*model.Call, error) {
	args := m.Called(ctx, externalCallID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

// Close mocks the Close method
func (m *CallRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
