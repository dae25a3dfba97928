package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"signal-notifier/internal/model"
	"signal-notifier/internal/storage"
)

// CreateTemplate inserts a message template and returns its ID.
func (s *Store) CreateTemplate(ctx context.Context, t model.Template) (uuid.UUID, error) {
	variables, err := json.Marshal(t.Variables)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode template variables: %w", err)
	}

	query := `
		INSERT INTO notification_templates (name, type, subject, content, variables, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`

	var id uuid.UUID
	err = s.db.QueryRowContext(
		ctx, query,
		t.Name, t.Type, t.Subject, t.Content, string(variables), t.IsActive,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create template: %w", err)
	}

	return id, nil
}

// GetTemplateByType returns the oldest active template of the given type.
func (s *Store) GetTemplateByType(ctx context.Context, templateType string) (model.Template, error) {
	query := `
		SELECT id, name, type, subject, content, variables, is_active, created_at, updated_at
		FROM notification_templates
		WHERE type = $1 AND is_active
		ORDER BY created_at ASC
		LIMIT 1;
	`

	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, templateType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Template{}, storage.ErrNotFound
		}
		return model.Template{}, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// GetTemplates lists all templates in creation order.
func (s *Store) GetTemplates(ctx context.Context) ([]model.Template, error) {
	query := `
		SELECT id, name, type, subject, content, variables, is_active, created_at, updated_at
		FROM notification_templates
		ORDER BY created_at ASC;
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get templates: %w", err)
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(row rowScanner) (model.Template, error) {
	var (
		t         model.Template
		variables sql.NullString
	)

	err := row.Scan(
		&t.ID, &t.Name, &t.Type, &t.Subject, &t.Content, &variables,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return model.Template{}, err
	}

	if variables.Valid && variables.String != "" {
		if err := json.Unmarshal([]byte(variables.String), &t.Variables); err != nil {
			return model.Template{}, fmt.Errorf("failed to decode template variables: %w", err)
		}
	}

	return t, nil
}
