package storage

import (
	"context"

	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
)

// CallRepoAdapter adapts the PostgresRepo to the CallRepo interface
type CallRepoAdapter struct {
	postgres *PostgresRepo
}

// NewCallRepoAdapter creates a new call repository adapter
func NewCallRepoAdapter(postgres *PostgresRepo) CallRepo {
	return &CallRepoAdapter{postgres: postgres}
}

// Upsert creates or updates a call keyed by its external ID
func (a *CallRepoAdapter) Upsert(ctx context.Context, call model.Call) (*model.Call, error) {
	return a.postgres.UpsertCall(ctx, call)
}

// FindByExternalID finds a call by its external ID
func (a *CallRepoAdapter) FindByExternalID(ctx context.Context, externalCallID string) (*model.Call, error) {
	return a.postgres.FindCallByExternalID(ctx, externalCallID)
}

func (a *CallRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}
