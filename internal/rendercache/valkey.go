// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// valkey.go provides a Valkey-backed rendered-output cache. Deployments
// with several app instances use it instead of the disk backend so every
// instance shares one cache.
package rendercache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// renderedKeyPrefix namespaces rendered-output keys in Valkey.
const renderedKeyPrefix = "rendered:"

// ValkeyBackend stores rendered output in Valkey with per-entry TTLs.
type ValkeyBackend struct {
	client *redis.Client
}

// NewValkeyBackend creates a Valkey-backed render cache.
func NewValkeyBackend(client *redis.Client) *ValkeyBackend {
	return &ValkeyBackend{client: client}
}

// ConnectValkey creates a Valkey client and verifies the connection with a ping.
func ConnectValkey(host, port, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}

	slog.Info("valkey connected", "addr", fmt.Sprintf("%s:%s", host, port))
	return client, nil
}

// Get retrieves cached output. Valkey's own expiry enforces freshness, so
// maxAge is already baked into the stored TTL.
func (v *ValkeyBackend) Get(ctx context.Context, partition, name string, _ time.Duration) ([]byte, bool) {
	val, err := v.client.Get(ctx, v.key(partition, name)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("valkey cache get error", "name", name, "error", err)
		return nil, false
	}
	slog.Debug("valkey cache hit", "name", name)
	return val, true
}

// Set stores rendered output with the given TTL.
func (v *ValkeyBackend) Set(ctx context.Context, partition, name string, content []byte, ttl time.Duration) error {
	if err := v.client.Set(ctx, v.key(partition, name), content, ttl).Err(); err != nil {
		return fmt.Errorf("valkey cache set: %w", err)
	}
	return nil
}

// Invalidate removes a single cached entry.
func (v *ValkeyBackend) Invalidate(ctx context.Context, partition, name string) {
	if err := v.client.Del(ctx, v.key(partition, name)).Err(); err != nil {
		slog.Warn("valkey cache invalidate error", "name", name, "error", err)
	}
}

// InvalidateAll removes all cached rendered output by scanning the prefix.
// Used after bulk template publishes, since any page could be affected.
func (v *ValkeyBackend) InvalidateAll(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := v.client.Scan(ctx, cursor, renderedKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("valkey cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := v.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("valkey cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("valkey render cache fully cleared", "deleted", deleted)
	}
}

func (v *ValkeyBackend) key(partition, name string) string {
	return renderedKeyPrefix + partition + ":" + name
}
