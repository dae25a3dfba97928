// Package postgres implements the storage contract on PostgreSQL via
// wbf/dbpg. All state transitions are single conditional statements so the
// semantics hold across concurrent worker processes.
package postgres

import (
	"fmt"

	"github.com/wb-go/wbf/dbpg"

	"signal-notifier/internal/storage"
)

// Store provides the postgres-backed Storage implementation.
type Store struct {
	db *dbpg.DB
}

var _ storage.Storage = (*Store)(nil)

// New creates a Store on an established dbpg connection.
func New(db *dbpg.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the pipeline tables if they do not exist yet.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID,
			channel VARCHAR(20) NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			template_type VARCHAR(100) NOT NULL DEFAULT '',
			variables JSONB,
			priority INTEGER NOT NULL DEFAULT 5,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			scheduled_for TIMESTAMPTZ NOT NULL DEFAULT now(),
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			last_error TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS notification_channels (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			type VARCHAR(20) NOT NULL,
			provider VARCHAR(100) NOT NULL DEFAULT '',
			config JSONB,
			is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			is_healthy BOOLEAN NOT NULL DEFAULT TRUE,
			error_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			last_health_check TIMESTAMPTZ,
			health_check_interval_seconds INTEGER NOT NULL DEFAULT 300,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS notification_templates (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			type VARCHAR(100) NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			variables JSONB,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS notification_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			notification_id UUID,
			user_id UUID,
			channel VARCHAR(20) NOT NULL,
			recipient TEXT NOT NULL,
			status VARCHAR(20) NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_notifications_claim
			ON notifications (priority, scheduled_for) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications (status)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_type ON notification_channels (type, is_enabled)`,
		`CREATE INDEX IF NOT EXISTS idx_templates_type ON notification_templates (type) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_logs_created_at ON notification_logs (created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Master.Exec(m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
