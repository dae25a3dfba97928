package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"signal-notifier/internal/storage"
)

func TestRecordFailure(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notification_channels
		SET error_count = error_count + 1,
		    consecutive_failures = consecutive_failures + 1,
		    last_error = $2,
		    is_healthy = is_healthy AND ($3 <= 0 OR consecutive_failures + 1 < $3),
		    updated_at = now()
		WHERE id = $1;
	`)).
		WithArgs(id, "connection refused", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordFailure(context.Background(), id, "connection refused", 5)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailure_NotFound(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notification_channels
		SET error_count = error_count + 1,
		    consecutive_failures = consecutive_failures + 1,
		    last_error = $2,
		    is_healthy = is_healthy AND ($3 <= 0 OR consecutive_failures + 1 < $3),
		    updated_at = now()
		WHERE id = $1;
	`)).
		WithArgs(id, "connection refused", 5).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RecordFailure(context.Background(), id, "connection refused", 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSuccess(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notification_channels
		SET success_count = success_count + 1,
		    consecutive_failures = 0,
		    is_healthy = TRUE,
		    last_error = '',
		    updated_at = now()
		WHERE id = $1;
	`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordSuccess(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveChannel_NoneHealthy(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT").
		WithArgs("email").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.ResolveChannel(context.Background(), "email")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
