package storage

import (
	"context"

	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
)

// CallRepo defines call storage operations
type CallRepo interface {
	Upsert(ctx context.Context, call model.Call) (*model.Call, error)
	FindByExternalID(ctx context.Context, externalCallID string) (*model.Call, error)
	Close(ctx context.Context) error
}
