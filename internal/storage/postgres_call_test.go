package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/kantoorbase/api/call-events-service/internal/apperrors"
	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
)

func newTestCallRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return &PostgresRepo{db: gormDB}, mock
}

const (
	selectForUpdatePattern = `SELECT (.+) FROM "calls" WHERE external_call_id = (.+)FOR UPDATE`
	insertCallPattern      = `INSERT INTO "calls"`
	updateCallPattern      = `UPDATE "calls" SET`
	selectByExternalID     = `SELECT (.+) FROM "calls" WHERE external_call_id =`
)

func callColumns() []string {
	return []string{
		"id", "external_call_id", "occurred_at", "status", "reason", "direction",
		"caller_number", "caller_name", "destination_number", "destination_user",
		"contact_id", "contact_name", "points", "created_at", "updated_at", "last_payload",
	}
}

func TestUpsertCall_Insert(t *testing.T) {
	repo, mock := newTestCallRepo(t)

	call := model.Call{
		ExternalCallID: "ext-insert-1",
		OccurredAt:     time.Now().UTC(),
		Status:         model.StatusRinging,
		Direction:      model.DirectionInbound,
		CallerNumber:   "0612345678",
		LastPayload:    datatypes.JSON(`{"call_id":"ext-insert-1"}`),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdatePattern).
		WithArgs("ext-insert-1", 1).
		WillReturnError(gorm.ErrRecordNotFound)
	mock.ExpectExec(insertCallPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	saved, err := repo.UpsertCall(context.Background(), call)
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID, "a fresh row gets a generated ID")
	assert.Equal(t, "ext-insert-1", saved.ExternalCallID)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCall_Update(t *testing.T) {
	repo, mock := newTestCallRepo(t)

	firstSeen := time.Now().UTC().Add(-time.Minute)
	existing := sqlmock.NewRows(callColumns()).AddRow(
		"row-1", "ext-update-1", firstSeen, model.StatusRinging, "", model.DirectionInbound,
		"0612345678", "Jan", "", "", "", "", 0, firstSeen, firstSeen, nil,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdatePattern).
		WithArgs("ext-update-1", 1).
		WillReturnRows(existing)
	mock.ExpectExec(updateCallPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	call := model.Call{
		ExternalCallID: "ext-update-1",
		OccurredAt:     firstSeen,
		Status:         model.StatusEnded,
		Reason:         model.ReasonCompleted,
		Direction:      model.DirectionInbound,
		CallerNumber:   "0612345678",
		Points:         5,
	}

	saved, err := repo.UpsertCall(context.Background(), call)
	require.NoError(t, err)

	assert.Equal(t, "row-1", saved.ID, "the existing row identity is kept")
	assert.Equal(t, model.StatusEnded, saved.Status)
	assert.Equal(t, 5, saved.Points)
	assert.Equal(t, firstSeen, saved.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCall_UpdateKeepsFirstTimestamp(t *testing.T) {
	repo, mock := newTestCallRepo(t)

	firstSeen := time.Now().UTC().Add(-time.Minute)
	existing := sqlmock.NewRows(callColumns()).AddRow(
		"row-1", "ext-ts-1", firstSeen, model.StatusRinging, "", model.DirectionInbound,
		"0612345678", "", "", "", "", "", 0, firstSeen, firstSeen, nil,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdatePattern).WithArgs("ext-ts-1", 1).WillReturnRows(existing)
	mock.ExpectExec(updateCallPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Event without a usable timestamp: the first-known one survives.
	call := model.Call{
		ExternalCallID: "ext-ts-1",
		Status:         model.StatusEnded,
		Reason:         model.ReasonAnswered,
		Direction:      model.DirectionInbound,
		Points:         5,
	}

	saved, err := repo.UpsertCall(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, firstSeen, saved.OccurredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCall_MissingExternalID(t *testing.T) {
	repo, mock := newTestCallRepo(t)

	_, err := repo.UpsertCall(context.Background(), model.Call{Status: model.StatusRinging})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet(), "no SQL should have been issued")
}

func TestUpsertCall_LockFailureRollsBack(t *testing.T) {
	repo, mock := newTestCallRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdatePattern).
		WithArgs("ext-err-1", 1).
		WillReturnError(errors.New("permission denied for table calls"))
	mock.ExpectRollback()

	_, err := repo.UpsertCall(context.Background(), model.Call{
		ExternalCallID: "ext-err-1",
		Status:         model.StatusRinging,
		Direction:      model.DirectionInbound,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCallByExternalID_Found(t *testing.T) {
	repo, mock := newTestCallRepo(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(callColumns()).AddRow(
		"row-1", "ext-find-1", now, model.StatusEnded, model.ReasonCompleted, model.DirectionInbound,
		"0612345678", "Jan", "", "", "crm-1", "Jan de Vries", 5, now, now, nil,
	)
	mock.ExpectQuery(selectByExternalID).WithArgs("ext-find-1", 1).WillReturnRows(rows)

	call, err := repo.FindCallByExternalID(context.Background(), "ext-find-1")
	require.NoError(t, err)

	assert.Equal(t, "ext-find-1", call.ExternalCallID)
	assert.Equal(t, "crm-1", call.ContactID)
	assert.Equal(t, 5, call.Points)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCallByExternalID_NotFound(t *testing.T) {
	repo, mock := newTestCallRepo(t)

	mock.ExpectQuery(selectByExternalID).
		WithArgs("ext-missing", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	_, err := repo.FindCallByExternalID(context.Background(), "ext-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
