// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"geekscore/internal/models"
)

// DynamicContentStore reads dynamic-content component definitions. Version
// selection follows the same environment rules as templates: newest version
// in development, newest version published for the environment elsewhere.
type DynamicContentStore struct {
	db          *sql.DB
	environment models.Environment
}

// NewDynamicContentStore creates a DynamicContentStore for the environment.
func NewDynamicContentStore(db *sql.DB, environment models.Environment) *DynamicContentStore {
	return &DynamicContentStore{db: db, environment: environment}
}

// Get resolves one component by id. A miss returns an empty DynamicContent
// with ID 0, never an error.
func (s *DynamicContentStore) Get(ctx context.Context, id int) (*models.DynamicContent, error) {
	if id <= 0 {
		return &models.DynamicContent{}, nil
	}

	query := `
		SELECT content_id, component_name, component_mode, title, settings_json,
		       version, published_environment, changed_on
		FROM wiser_dynamic_content
		WHERE content_id = $1 AND removed = FALSE`
	args := []any{id}

	if s.environment != models.EnvironmentDevelopment {
		args = append(args, int(s.environment))
		query += " AND (published_environment & $2) > 0"
	}
	query += " ORDER BY version DESC LIMIT 1"

	dc := &models.DynamicContent{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&dc.ID, &dc.Name, &dc.ComponentMode, &dc.Title, &dc.SettingsJSON,
		&dc.Version, &dc.PublishedEnvironment, &dc.LastChanged,
	)
	if err == sql.ErrNoRows {
		return &models.DynamicContent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dynamic content: %w", err)
	}
	return dc, nil
}

// All returns the newest eligible version of every component. It backs the
// bulk dynamic-content cache: one query per cache window, filtered in
// memory afterwards.
func (s *DynamicContentStore) All(ctx context.Context) ([]models.DynamicContent, error) {
	query := `
		SELECT DISTINCT ON (content_id)
		       content_id, component_name, component_mode, title, settings_json,
		       version, published_environment, changed_on
		FROM wiser_dynamic_content
		WHERE removed = FALSE`
	var args []any

	if s.environment != models.EnvironmentDevelopment {
		args = append(args, int(s.environment))
		query += " AND (published_environment & $1) > 0"
	}
	query += " ORDER BY content_id, version DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dynamic content: %w", err)
	}
	defer rows.Close()

	var contents []models.DynamicContent
	for rows.Next() {
		var dc models.DynamicContent
		if err := rows.Scan(
			&dc.ID, &dc.Name, &dc.ComponentMode, &dc.Title, &dc.SettingsJSON,
			&dc.Version, &dc.PublishedEnvironment, &dc.LastChanged,
		); err != nil {
			return nil, fmt.Errorf("scan dynamic content: %w", err)
		}
		contents = append(contents, dc)
	}
	return contents, rows.Err()
}
