// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// Setting keys used by the rendering pipeline.
const (
	// SettingLogAllRendering turns on render logging for every component.
	SettingLogAllRendering = "log_all_rendering"

	// SettingLogRenderingPrefix + content id turns on render logging for
	// a single component.
	SettingLogRenderingPrefix = "log_rendering_of_component_"
)

// SettingStore manages system settings in the database.
type SettingStore struct {
	db *sql.DB
}

// NewSettingStore returns a SettingStore backed by the given database.
func NewSettingStore(db *sql.DB) *SettingStore {
	return &SettingStore{db: db}
}

// Get returns a single setting by key, or the fallback if not found.
func (s *SettingStore) Get(ctx context.Context, key, fallback string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	if val == "" {
		return fallback, nil
	}
	return val, nil
}

// GetBool returns a boolean setting, false when missing or unparsable.
func (s *SettingStore) GetBool(ctx context.Context, key string) bool {
	val, err := s.Get(ctx, key, "false")
	if err != nil {
		return false
	}
	b, err := strconv.ParseBool(val)
	return err == nil && b
}

// RenderLoggingEnabled reports whether render logging applies to the
// given component, either through the global switch or a per-component one.
func (s *SettingStore) RenderLoggingEnabled(ctx context.Context, contentID int) bool {
	if s.GetBool(ctx, SettingLogAllRendering) {
		return true
	}
	return s.GetBool(ctx, SettingLogRenderingPrefix+strconv.Itoa(contentID))
}

// Set upserts a single setting. Creates it if it doesn't exist.
func (s *SettingStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now(),
	)
	return err
}
