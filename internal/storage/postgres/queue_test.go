package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/dbpg"

	"signal-notifier/internal/model"
	"signal-notifier/internal/storage"
)

func setupMockDB(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open mock db: %v", err)
	}

	wrappedDB := &dbpg.DB{Master: db}
	store := New(wrappedDB)

	return store, mock
}

func TestEnqueue(t *testing.T) {
	store, mock := setupMockDB(t)

	notificationID := uuid.New()
	scheduledFor := time.Now().Add(time.Hour)
	n := model.Notification{
		Channel:      "email",
		Recipient:    "user@example.com",
		Subject:      "BTC alert",
		Message:      "BTC crossed 100000",
		Priority:     2,
		ScheduledFor: scheduledFor,
		MaxRetries:   3,
	}

	mock.ExpectQuery(regexp.QuoteMeta(`
		INSERT INTO notifications (
			user_id, channel, recipient, subject, message, template_type,
			variables, priority, status, scheduled_for, max_retries, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', COALESCE($9, now()), $10, $11)
		RETURNING id;
	`)).
		WithArgs(nil, n.Channel, n.Recipient, n.Subject, n.Message, "",
			nil, n.Priority, scheduledFor, n.MaxRetries, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(notificationID))

	id, err := store.Enqueue(context.Background(), n)
	assert.NoError(t, err)
	assert.Equal(t, notificationID, id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSent(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notifications
		SET status = 'sent', last_error = '', updated_at = now()
		WHERE id = $1 AND status = 'processing';
	`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MarkSent(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSent_NotFound(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notifications
		SET status = 'sent', last_error = '', updated_at = now()
		WHERE id = $1 AND status = 'processing';
	`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1);`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := store.MarkSent(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSent_InvalidState(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notifications
		SET status = 'sent', last_error = '', updated_at = now()
		WHERE id = $1 AND status = 'processing';
	`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1);`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.MarkSent(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed_Retrying(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()
	nextAttempt := time.Now().Add(30 * time.Second)

	mock.ExpectQuery(regexp.QuoteMeta(`
		UPDATE notifications
		SET last_error = $2,
		    updated_at = now(),
		    retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
		    scheduled_for = CASE WHEN retry_count < max_retries THEN $3 ELSE scheduled_for END,
		    status = CASE WHEN retry_count < max_retries THEN 'pending' ELSE 'failed' END
		WHERE id = $1 AND status = 'processing'
		RETURNING status, retry_count;
	`)).
		WithArgs(id, "smtp timeout", nextAttempt).
		WillReturnRows(sqlmock.NewRows([]string{"status", "retry_count"}).AddRow("pending", 1))

	status, retryCount, err := store.MarkFailed(context.Background(), id, "smtp timeout", nextAttempt)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)
	assert.Equal(t, 1, retryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed_Terminal(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()
	nextAttempt := time.Now().Add(30 * time.Second)

	mock.ExpectQuery(regexp.QuoteMeta(`
		UPDATE notifications
		SET last_error = $2,
		    updated_at = now(),
		    retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
		    scheduled_for = CASE WHEN retry_count < max_retries THEN $3 ELSE scheduled_for END,
		    status = CASE WHEN retry_count < max_retries THEN 'pending' ELSE 'failed' END
		WHERE id = $1 AND status = 'processing'
		RETURNING status, retry_count;
	`)).
		WithArgs(id, "smtp timeout", nextAttempt).
		WillReturnRows(sqlmock.NewRows([]string{"status", "retry_count"}).AddRow("failed", 3))

	status, retryCount, err := store.MarkFailed(context.Background(), id, "smtp timeout", nextAttempt)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status)
	assert.Equal(t, 3, retryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel(t *testing.T) {
	store, mock := setupMockDB(t)

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notifications
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing');
	`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Cancel(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notifications WHERE status = $1;`)).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.CountByStatus(context.Background(), model.StatusPending)
	assert.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimReady_ZeroLimitClaimsNothing(t *testing.T) {
	store, mock := setupMockDB(t)

	// No statement may reach the database.
	claimed, err := store.ClaimReady(context.Background(), 0)
	assert.NoError(t, err)
	assert.Empty(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStale(t *testing.T) {
	store, mock := setupMockDB(t)

	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notifications
		SET status = 'pending', updated_at = now()
		WHERE status = 'processing' AND updated_at < $1;
	`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	requeued, err := store.ReleaseStale(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, 2, requeued)
	assert.NoError(t, mock.ExpectationsWereMet())
}
