// Package template resolves notification templates against a variable
// context. Substitution is literal {{name}} replacement; there is no
// conditional or nested logic, this is a notification pipeline rather than
// a general template engine.
package template

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"signal-notifier/internal/model"
	"signal-notifier/internal/storage"
)

var (
	// ErrTemplateNotFound is returned when no active template matches the
	// requested type.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrMissingVariable is returned when a referenced placeholder has no
	// supplied value. Rendering fails closed: the item is retried instead
	// of delivering a message with a silently blanked field.
	ErrMissingVariable = errors.New("missing template variable")
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Store renders templates fetched from the backing template storage.
type Store struct {
	templates storage.TemplateStore
}

// NewStore creates a template store over the given storage.
func NewStore(templates storage.TemplateStore) *Store {
	return &Store{templates: templates}
}

// Render resolves the active template for templateType and substitutes the
// supplied variables into its subject and content.
func (s *Store) Render(ctx context.Context, templateType string, vars map[string]string) (subject, body string, err error) {
	t, err := s.templates.GetTemplateByType(ctx, templateType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, templateType)
		}
		return "", "", fmt.Errorf("get template: %w", err)
	}

	subject, err = substitute(t.Subject, vars)
	if err != nil {
		return "", "", err
	}
	body, err = substitute(t.Content, vars)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// Validate checks that every placeholder referenced by the template's
// subject and content appears in its declared variable list.
func Validate(t model.Template) error {
	declared := make(map[string]struct{}, len(t.Variables))
	for _, v := range t.Variables {
		declared[v] = struct{}{}
	}

	for _, name := range Placeholders(t.Subject + " " + t.Content) {
		if _, ok := declared[name]; !ok {
			return fmt.Errorf("placeholder {{%s}} is not declared in template %q", name, t.Name)
		}
	}
	return nil
}

// Placeholders returns the variable names referenced by {{name}} tokens
// in s, in order of first appearance.
func Placeholders(s string) []string {
	var names []string
	seen := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if _, ok := seen[m[1]]; !ok {
			seen[m[1]] = struct{}{}
			names = append(names, m[1])
		}
	}
	return names
}

func substitute(s string, vars map[string]string) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		name := placeholderRe.FindStringSubmatch(token)[1]
		val, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return token
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("%w: %s", ErrMissingVariable, missing)
	}
	return out, nil
}
