package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signal-notifier/internal/model"
	"signal-notifier/internal/storage"
)

const channelColumns = `
	id, name, type, provider, config, is_enabled, is_healthy, error_count,
	success_count, consecutive_failures, last_error, last_health_check,
	health_check_interval_seconds, created_at, updated_at`

// CreateChannel inserts a channel configuration and returns its ID.
func (s *Store) CreateChannel(ctx context.Context, ch model.Channel) (uuid.UUID, error) {
	config, err := marshalMap(ch.Config)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode channel config: %w", err)
	}

	query := `
		INSERT INTO notification_channels (
			name, type, provider, config, is_enabled, is_healthy,
			health_check_interval_seconds
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING id;
	`

	var id uuid.UUID
	err = s.db.QueryRowContext(
		ctx, query,
		ch.Name, ch.Type, ch.Provider, config, ch.IsEnabled,
		int(ch.HealthCheckInterval.Seconds()),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return id, nil
}

// UpdateChannel replaces the admin-editable fields of a channel.
// Health counters are owned by the worker outcome path and left untouched.
func (s *Store) UpdateChannel(ctx context.Context, ch model.Channel) error {
	config, err := marshalMap(ch.Config)
	if err != nil {
		return fmt.Errorf("failed to encode channel config: %w", err)
	}

	query := `
		UPDATE notification_channels
		SET name = $2, provider = $3, config = $4, is_enabled = $5,
		    health_check_interval_seconds = $6, updated_at = now()
		WHERE id = $1;
	`

	res, err := s.db.ExecContext(
		ctx, query,
		ch.ID, ch.Name, ch.Provider, config, ch.IsEnabled,
		int(ch.HealthCheckInterval.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetChannel retrieves a channel by ID.
func (s *Store) GetChannel(ctx context.Context, id uuid.UUID) (model.Channel, error) {
	query := `SELECT` + channelColumns + ` FROM notification_channels WHERE id = $1;`

	ch, err := scanChannel(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Channel{}, storage.ErrNotFound
		}
		return model.Channel{}, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

// GetChannels lists all configured channels in creation order.
func (s *Store) GetChannels(ctx context.Context) ([]model.Channel, error) {
	query := `SELECT` + channelColumns + ` FROM notification_channels ORDER BY created_at ASC;`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ResolveChannel returns the first enabled healthy channel of the given
// type in creation order. The ordering makes the selection deterministic
// when several channels of one type are configured.
func (s *Store) ResolveChannel(ctx context.Context, channelType string) (model.Channel, error) {
	query := `
		SELECT` + channelColumns + `
		FROM notification_channels
		WHERE type = $1 AND is_enabled AND is_healthy
		ORDER BY created_at ASC
		LIMIT 1;
	`

	ch, err := scanChannel(s.db.QueryRowContext(ctx, query, channelType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Channel{}, storage.ErrNotFound
		}
		return model.Channel{}, fmt.Errorf("failed to resolve channel: %w", err)
	}
	return ch, nil
}

// RecordSuccess updates the counters with a single atomic increment so
// concurrent workers never lose updates.
func (s *Store) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notification_channels
		SET success_count = success_count + 1,
		    consecutive_failures = 0,
		    is_healthy = TRUE,
		    last_error = '',
		    updated_at = now()
		WHERE id = $1;
	`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record channel success: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordFailure increments the failure counters and flips is_healthy once
// the consecutive streak reaches the threshold, all in one statement. A
// failure never restores health: an unhealthy channel stays unhealthy until
// a success or a probe clears it. A threshold of zero disables the flip.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, threshold int) error {
	query := `
		UPDATE notification_channels
		SET error_count = error_count + 1,
		    consecutive_failures = consecutive_failures + 1,
		    last_error = $2,
		    is_healthy = is_healthy AND ($3 <= 0 OR consecutive_failures + 1 < $3),
		    updated_at = now()
		WHERE id = $1;
	`

	res, err := s.db.ExecContext(ctx, query, id, errMsg, threshold)
	if err != nil {
		return fmt.Errorf("failed to record channel failure: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetHealth stores a probe outcome without touching delivery counters.
func (s *Store) SetHealth(ctx context.Context, id uuid.UUID, healthy bool, errMsg string) error {
	query := `
		UPDATE notification_channels
		SET is_healthy = $2,
		    consecutive_failures = CASE WHEN $2 THEN 0 ELSE consecutive_failures END,
		    last_error = CASE WHEN $2 THEN '' ELSE $3 END,
		    last_health_check = now(),
		    updated_at = now()
		WHERE id = $1;
	`

	res, err := s.db.ExecContext(ctx, query, id, healthy, errMsg)
	if err != nil {
		return fmt.Errorf("failed to set channel health: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanChannel(row rowScanner) (model.Channel, error) {
	var (
		ch              model.Channel
		config          sql.NullString
		lastHealthCheck sql.NullTime
		intervalSecs    int
	)

	err := row.Scan(
		&ch.ID, &ch.Name, &ch.Type, &ch.Provider, &config, &ch.IsEnabled,
		&ch.IsHealthy, &ch.ErrorCount, &ch.SuccessCount,
		&ch.ConsecutiveFailures, &ch.LastError, &lastHealthCheck,
		&intervalSecs, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return model.Channel{}, err
	}

	if lastHealthCheck.Valid {
		ch.LastHealthCheck = lastHealthCheck.Time
	}
	ch.HealthCheckInterval = time.Duration(intervalSecs) * time.Second
	if ch.Config, err = unmarshalMap(config); err != nil {
		return model.Channel{}, fmt.Errorf("failed to decode channel config: %w", err)
	}

	return ch, nil
}
