// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// render_log.go records per-component render timings in the database for
// performance debugging of production pages. Writes are best-effort:
// telemetry must never break rendering.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// RenderLogEntry captures one dynamic-content render.
type RenderLogEntry struct {
	ContentID    int
	Version      int
	URL          string
	Environment  string
	StartedAt    time.Time
	EndedAt      time.Time
	UserID       int
	LanguageCode string
	Error        string
}

// RenderLogStore persists dynamic-content render timings.
type RenderLogStore struct {
	db *sql.DB
}

// NewRenderLogStore creates a RenderLogStore.
func NewRenderLogStore(db *sql.DB) *RenderLogStore {
	return &RenderLogStore{db: db}
}

// Log writes one render entry. Failures are logged and swallowed.
func (s *RenderLogStore) Log(ctx context.Context, e RenderLogEntry) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wiser_render_log
			(content_id, version, url, environment, started_at, ended_at,
			 time_taken_ms, user_id, language_code, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ContentID, e.Version, e.URL, e.Environment, e.StartedAt, e.EndedAt,
		e.EndedAt.Sub(e.StartedAt).Milliseconds(), e.UserID, e.LanguageCode, e.Error)
	if err != nil {
		// Best-effort: never fail the render because of telemetry.
		slog.Warn("failed to write render log",
			"content_id", e.ContentID,
			"error", err,
		)
		return
	}
	slog.Debug("render logged",
		"content_id", e.ContentID,
		"time_taken", e.EndedAt.Sub(e.StartedAt).String(),
	)
}

// RecentEntries returns the most recent render log entries for debugging.
func (s *RenderLogStore) RecentEntries(ctx context.Context, limit int) ([]RenderLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_id, version, url, environment, started_at, ended_at,
		       user_id, language_code, error
		FROM wiser_render_log
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query render log: %w", err)
	}
	defer rows.Close()

	var entries []RenderLogEntry
	for rows.Next() {
		var e RenderLogEntry
		if err := rows.Scan(&e.ContentID, &e.Version, &e.URL, &e.Environment,
			&e.StartedAt, &e.EndedAt, &e.UserID, &e.LanguageCode, &e.Error); err != nil {
			return nil, fmt.Errorf("scan render log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
