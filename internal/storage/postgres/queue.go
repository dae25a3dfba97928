package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signal-notifier/internal/model"
	"signal-notifier/internal/storage"
)

const notificationColumns = `
	id, user_id, channel, recipient, subject, message, template_type,
	variables, priority, status, scheduled_for, retry_count, max_retries,
	last_error, metadata, created_at, updated_at`

// Enqueue inserts a pending notification and returns its ID.
func (s *Store) Enqueue(ctx context.Context, n model.Notification) (uuid.UUID, error) {
	variables, err := marshalMap(n.Variables)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode variables: %w", err)
	}
	metadata, err := marshalMap(n.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO notifications (
			user_id, channel, recipient, subject, message, template_type,
			variables, priority, status, scheduled_for, max_retries, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', COALESCE($9, now()), $10, $11)
		RETURNING id;
	`

	var id uuid.UUID
	err = s.db.QueryRowContext(
		ctx, query,
		nullUUID(n.UserID), n.Channel, n.Recipient, n.Subject, n.Message,
		n.TemplateType, variables, n.Priority, nullTime(n.ScheduledFor),
		n.MaxRetries, metadata,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return id, nil
}

// ClaimReady claims up to limit due pending items in a single statement.
// FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming the same
// rows; the outer UPDATE moves them to processing before they are returned.
func (s *Store) ClaimReady(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		UPDATE notifications
		SET status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending' AND scheduled_for <= now()
			ORDER BY priority ASC, scheduled_for ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING` + notificationColumns + `;
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim notifications: %w", err)
	}
	defer rows.Close()

	var claimed []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed notifications: %w", err)
	}

	// The UPDATE ... RETURNING order is not guaranteed to match the inner
	// SELECT, so re-sort by the claim ordering before handing items out.
	sortByDispatchOrder(claimed)

	return claimed, nil
}

// MarkSent finalizes a successfully delivered item.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET status = 'sent', last_error = '', updated_at = now()
		WHERE id = $1 AND status = 'processing';
	`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// MarkFailed records a failed attempt. The CASE expressions keep the retry
// bound and the terminal transition inside one atomic statement.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) (string, int, error) {
	query := `
		UPDATE notifications
		SET last_error = $2,
		    updated_at = now(),
		    retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
		    scheduled_for = CASE WHEN retry_count < max_retries THEN $3 ELSE scheduled_for END,
		    status = CASE WHEN retry_count < max_retries THEN 'pending' ELSE 'failed' END
		WHERE id = $1 AND status = 'processing'
		RETURNING status, retry_count;
	`

	var status string
	var retryCount int
	err := s.db.QueryRowContext(ctx, query, id, errMsg, nextAttempt).Scan(&status, &retryCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, s.transitionError(ctx, id)
		}
		return "", 0, fmt.Errorf("failed to mark notification failed: %w", err)
	}

	return status, retryCount, nil
}

// FailPermanently moves a processing item straight to failed, leaving the
// retry counter untouched.
func (s *Store) FailPermanently(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE notifications
		SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing';
	`

	res, err := s.db.ExecContext(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// Cancel moves a pending or processing item to cancelled.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing');
	`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel notification: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// RetryFailed resets a terminally failed item for another delivery round.
func (s *Store) RetryFailed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET status = 'pending', retry_count = 0, last_error = '',
		    scheduled_for = now(), updated_at = now()
		WHERE id = $1 AND status = 'failed';
	`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to retry notification: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// GetByID retrieves a notification by its ID.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	query := `SELECT` + notificationColumns + ` FROM notifications WHERE id = $1;`

	row := s.db.QueryRowContext(ctx, query, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Notification{}, storage.ErrNotFound
		}
		return model.Notification{}, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// GetByStatus lists notifications with the given status, oldest first.
// An empty status lists everything.
func (s *Store) GetByStatus(ctx context.Context, status string, limit int) ([]model.Notification, error) {
	query := `
		SELECT` + notificationColumns + `
		FROM notifications
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC
		LIMIT $2;
	`

	return s.queryNotifications(ctx, query, status, limit)
}

// GetFailed lists terminally failed notifications with at least
// minRetryCount consumed retries.
func (s *Store) GetFailed(ctx context.Context, minRetryCount int) ([]model.Notification, error) {
	query := `
		SELECT` + notificationColumns + `
		FROM notifications
		WHERE status = 'failed' AND retry_count >= $1
		ORDER BY updated_at ASC;
	`

	return s.queryNotifications(ctx, query, minRetryCount)
}

// CountByStatus returns the number of notifications with the given status.
func (s *Store) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE status = $1;`, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// PurgeTerminal removes terminal items last touched before the cutoff.
func (s *Store) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
		DELETE FROM notifications
		WHERE status IN ('sent', 'failed', 'cancelled') AND updated_at < $1;
	`

	res, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

// ReleaseStale requeues processing items abandoned by a dead worker. The
// retry budget stays untouched since the attempt's outcome is unknown.
func (s *Store) ReleaseStale(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
		UPDATE notifications
		SET status = 'pending', updated_at = now()
		WHERE status = 'processing' AND updated_at < $1;
	`

	res, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale notifications: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

func (s *Store) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// checkTransition distinguishes a missing row from an illegal transition
// when a conditional update matched nothing.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, id uuid.UUID) error {
	rows, _ := res.RowsAffected()
	if rows > 0 {
		return nil
	}
	return s.transitionError(ctx, id)
}

func (s *Store) transitionError(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1);`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check notification existence: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (model.Notification, error) {
	var (
		n         model.Notification
		userID    uuid.NullUUID
		variables sql.NullString
		metadata  sql.NullString
	)

	err := row.Scan(
		&n.ID, &userID, &n.Channel, &n.Recipient, &n.Subject, &n.Message,
		&n.TemplateType, &variables, &n.Priority, &n.Status, &n.ScheduledFor,
		&n.RetryCount, &n.MaxRetries, &n.LastError, &metadata,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return model.Notification{}, err
	}

	if userID.Valid {
		id := userID.UUID
		n.UserID = &id
	}
	if n.Variables, err = unmarshalMap(variables); err != nil {
		return model.Notification{}, fmt.Errorf("failed to decode variables: %w", err)
	}
	if n.Metadata, err = unmarshalMap(metadata); err != nil {
		return model.Notification{}, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return n, nil
}

func sortByDispatchOrder(items []model.Notification) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && dispatchBefore(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func dispatchBefore(a, b model.Notification) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ScheduledFor.Before(b.ScheduledFor)
}

func marshalMap(m map[string]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalMap(v sql.NullString) (map[string]string, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(v.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
