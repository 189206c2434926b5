// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package rendercache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DiskBackend stores rendered output as files under a cache root,
// partitioned per template type. Writes go through a temporary file and an
// atomic rename, so a concurrent writer can never expose a partial file to
// readers: a reader sees either the previous complete file or the new one.
type DiskBackend struct {
	root string
}

// NewDiskBackend creates the cache root directory if needed.
func NewDiskBackend(root string) (*DiskBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &DiskBackend{root: root}, nil
}

// Get reads a cached file when its modification time is within maxAge.
func (d *DiskBackend) Get(_ context.Context, partition, name string, maxAge time.Duration) ([]byte, bool) {
	path := d.path(partition, name)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > maxAge {
		return nil, false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("disk cache read failed", "path", path, "error", err)
		return nil, false
	}

	slog.Debug("disk cache hit", "path", path)
	return content, true
}

// Set writes content atomically: to a unique temp file first, then renamed
// over the target. Concurrent writers each rename a complete file; the
// last rename wins.
func (d *DiskBackend) Set(_ context.Context, partition, name string, content []byte, _ time.Duration) error {
	dir := filepath.Join(d.root, partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache partition: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), d.path(partition, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish cache file: %w", err)
	}

	slog.Debug("disk cache write", "partition", partition, "name", name, "size", len(content))
	return nil
}

// InvalidateAll removes every cached file under the root. Used by
// operators after bulk template publishes.
func (d *DiskBackend) InvalidateAll() error {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return fmt.Errorf("read cache root: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(d.root, e.Name())); err != nil {
			return fmt.Errorf("clear cache partition %s: %w", e.Name(), err)
		}
	}
	slog.Info("disk cache fully cleared")
	return nil
}

// path joins root, partition and name. Names come pre-sanitized from
// FileName, so they cannot traverse outside the partition.
func (d *DiskBackend) path(partition, name string) string {
	return filepath.Join(d.root, partition, name)
}
