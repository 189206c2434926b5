// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the library
// and the demo server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"geekscore/internal/models"
)

// Config holds all configuration values loaded from the environment.
type Config struct {
	// Server settings (demo server only)
	Host string
	Port string

	// Environment drives template version/publish selection.
	Environment models.Environment

	// Branch is the tenant/staging-branch discriminator mixed into every
	// cache key so tenants sharing a process never see each other's data.
	Branch string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache + session store); optional.
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Template caching
	CacheDir            string        // root directory for the on-disk output cache
	DefaultCacheMinutes int           // used when a template sets CachingMinutes = 0
	ObjectCacheTTL      time.Duration // in-memory template object cache TTL

	// CacheDeviationCookies lists cookie names whose values partition the
	// template caches (A/B test groups and the like).
	CacheDeviationCookies []string

	// S3-compatible object storage for Wiser CDN files; optional.
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PublicURL string
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),

		Environment: models.ParseEnvironment(envOrDefault("GCL_ENVIRONMENT", "development")),
		Branch:      envOrDefault("GCL_BRANCH", "main"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "geekscore"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "geekscore"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		CacheDir:            envOrDefault("GCL_CACHE_DIR", "contentcache"),
		DefaultCacheMinutes: envIntOrDefault("GCL_DEFAULT_CACHE_MINUTES", 60),
		ObjectCacheTTL:      time.Duration(envIntOrDefault("GCL_OBJECT_CACHE_MINUTES", 5)) * time.Minute,

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    envOrDefault("S3_REGION", "eu-central"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    envOrDefault("S3_BUCKET", "geekscore-cdn"),
		S3PublicURL: os.Getenv("S3_PUBLIC_URL"),
	}

	if cookies := os.Getenv("GCL_CACHE_DEVIATION_COOKIES"); cookies != "" {
		for _, name := range strings.Split(cookies, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.CacheDeviationCookies = append(cfg.CacheDeviationCookies, name)
			}
		}
	}

	if cfg.Environment == models.EnvironmentLive && cfg.DBPassword == "changeme" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in the live environment")
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true when running in the development environment.
func (c *Config) IsDev() bool {
	return c.Environment == models.EnvironmentDevelopment
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOrDefault reads an integer environment variable, returning the
// fallback when unset or unparsable.
func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
