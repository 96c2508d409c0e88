package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/kantoorbase/api/call-events-service/internal/apperrors"
	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
	"gitlab.com/kantoorbase/api/call-events-service/internal/observer"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/utils"
)

// UpsertCall creates or updates the call row keyed by ExternalCallID. It is
// the idempotency boundary: the first event for an ID creates the row, every
// subsequent event mutates it in place. The row is locked FOR UPDATE so two
// rapid deliveries for the same call cannot lose an update.
func (r *PostgresRepo) UpsertCall(ctx context.Context, call model.Call) (*model.Call, error) {
	if call.ExternalCallID == "" {
		return nil, fmt.Errorf("%w: external call ID is required", apperrors.ErrBadRequest)
	}

	var result model.Call
	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if rec := recover(); rec != nil {
				tx.Rollback()
				panic(rec)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error",
						zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		var existing model.Call
		findErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_call_id = ?", call.ExternalCallID).
			First(&existing).Error

		if findErr != nil {
			if !errors.Is(findErr, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: failed to lock call row: %w", apperrors.ErrDatabase, findErr)
				return txErr
			}
			// First event for this call
			call.ID = uuid.New().String()
			call.CreatedAt = utils.Now()
			call.UpdatedAt = call.CreatedAt
			if createErr := tx.Create(&call).Error; createErr != nil {
				txErr = fmt.Errorf("%w: failed to create call: %w", apperrors.ErrDatabase, createErr)
				return txErr
			}
			result = call
		} else {
			// Subsequent event: overwrite the mutable fields, keep identity
			// and the first-known timestamp.
			call.ID = existing.ID
			call.CreatedAt = existing.CreatedAt
			if call.OccurredAt.IsZero() {
				call.OccurredAt = existing.OccurredAt
			}
			call.UpdatedAt = utils.Now()
			if saveErr := tx.Model(&existing).Select("*").Omit("created_at").Updates(call).Error; saveErr != nil {
				txErr = fmt.Errorf("%w: failed to update call: %w", apperrors.ErrDatabase, saveErr)
				return txErr
			}
			result = call
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit upsert transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertCall Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "call", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert call after retries",
			zap.String("external_call_id", call.ExternalCallID),
			zap.Error(commitErr))
		return nil, commitErr
	}
	return &result, nil
}

// FindCallByExternalID returns the call row for the given external ID, or
// apperrors.ErrNotFound when no event has been seen for it.
func (r *PostgresRepo) FindCallByExternalID(ctx context.Context, externalCallID string) (*model.Call, error) {
	var call model.Call
	operation := func() error {
		result := r.db.WithContext(ctx).Where("external_call_id = ?", externalCallID).First(&call)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: external_call_id %s: %w", apperrors.ErrNotFound, externalCallID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindCallByExternalID", operation)
	observer.ObserveDbOperationDuration("find_by_external_id", "call", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find call by external ID after retries",
			zap.String("external_call_id", externalCallID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &call, nil
}
