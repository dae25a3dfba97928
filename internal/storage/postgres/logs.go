package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signal-notifier/internal/model"
)

// AppendLog records one delivery attempt. The table is append-only; there
// is deliberately no update or delete path.
func (s *Store) AppendLog(ctx context.Context, entry model.DeliveryLog) error {
	query := `
		INSERT INTO notification_logs (notification_id, user_id, channel, recipient, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6);
	`

	_, err := s.db.ExecContext(
		ctx, query,
		nullUUID(entry.NotificationID), nullUUID(entry.UserID),
		entry.Channel, entry.Recipient, entry.Status, entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

// GetLogs lists the most recent delivery attempts.
func (s *Store) GetLogs(ctx context.Context, limit int) ([]model.DeliveryLog, error) {
	query := `
		SELECT id, notification_id, user_id, channel, recipient, status, error_message, created_at
		FROM notification_logs
		ORDER BY created_at DESC
		LIMIT $1;
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery logs: %w", err)
	}
	defer rows.Close()

	var out []model.DeliveryLog
	for rows.Next() {
		var (
			l              model.DeliveryLog
			notificationID uuid.NullUUID
			userID         uuid.NullUUID
		)
		err := rows.Scan(
			&l.ID, &notificationID, &userID, &l.Channel, &l.Recipient,
			&l.Status, &l.ErrorMessage, &l.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if notificationID.Valid {
			id := notificationID.UUID
			l.NotificationID = &id
		}
		if userID.Valid {
			id := userID.UUID
			l.UserID = &id
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetStats aggregates attempt outcomes over a date range plus the current
// pending backlog. Zero time bounds are treated as open-ended.
func (s *Store) GetStats(ctx context.Context, from, to time.Time) (model.Stats, error) {
	query := `
		SELECT channel, status, COUNT(*)
		FROM notification_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		GROUP BY channel, status;
	`

	rows, err := s.db.QueryContext(ctx, query, nullTime(from), nullTime(to))
	if err != nil {
		return model.Stats{}, fmt.Errorf("failed to get delivery stats: %w", err)
	}
	defer rows.Close()

	stats := model.Stats{PerChannel: make(map[string]model.ChannelStats)}
	for rows.Next() {
		var channel, status string
		var count int
		if err := rows.Scan(&channel, &status, &count); err != nil {
			return model.Stats{}, err
		}

		stats.Total += count
		cs := stats.PerChannel[channel]
		// sent_after_cancel attempts did deliver, count them as sent.
		if status == model.LogStatusFailed {
			stats.Failed += count
			cs.Failed += count
		} else {
			stats.Sent += count
			cs.Sent += count
		}
		stats.PerChannel[channel] = cs
	}
	if err := rows.Err(); err != nil {
		return model.Stats{}, err
	}

	pending, err := s.CountByStatus(ctx, model.StatusPending)
	if err != nil {
		return model.Stats{}, err
	}
	stats.Pending = pending

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(stats.Total)
	}
	return stats, nil
}
