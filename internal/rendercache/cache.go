// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package rendercache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Backend stores rendered output under a partition (the template type) and
// a derived file name.
type Backend interface {
	// Get returns cached content no older than maxAge.
	Get(ctx context.Context, partition, name string, maxAge time.Duration) ([]byte, bool)

	// Set stores content with the given TTL. Implementations must tolerate
	// concurrent writers for the same name without corrupting readers.
	Set(ctx context.Context, partition, name string, content []byte, ttl time.Duration) error
}

// RenderFunc produces the content for a cache miss.
type RenderFunc func(ctx context.Context) ([]byte, error)

// Cache wraps a backend with miss coalescing: concurrent requests for the
// same missing name trigger exactly one render, and every caller receives
// that render's result.
type Cache struct {
	backend Backend
	group   singleflight.Group
}

// New creates a Cache over the given backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// GetOrRender returns cached content for name, rendering and storing it on
// a miss. A zero TTL disables caching entirely and renders directly.
func (c *Cache) GetOrRender(ctx context.Context, partition, name string, ttl time.Duration, render RenderFunc) ([]byte, error) {
	if ttl <= 0 || name == "" || c.backend == nil {
		return render(ctx)
	}

	if content, ok := c.backend.Get(ctx, partition, name, ttl); ok {
		return content, nil
	}

	result, err, _ := c.group.Do(partition+"/"+name, func() (any, error) {
		// A concurrent caller may have populated the entry while this one
		// waited on the flight group.
		if content, ok := c.backend.Get(ctx, partition, name, ttl); ok {
			return content, nil
		}

		content, err := render(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.backend.Set(ctx, partition, name, content, ttl); err != nil {
			// Serving uncached output beats failing the request.
			slog.Warn("render cache write failed", "partition", partition, "name", name, "error", err)
			return content, nil
		}
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
