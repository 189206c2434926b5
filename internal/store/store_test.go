// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"geekscore/internal/database"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "geekscore")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "geekscore")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	// Run migrations to ensure the schema is current.
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Downgrade goose global state.
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// cleanTemplates removes test templates by template id. Call in t.Cleanup().
func cleanTemplates(t *testing.T, db *sql.DB, ids ...int) {
	t.Helper()
	for _, id := range ids {
		db.Exec("DELETE FROM wiser_template WHERE template_id = $1", id)
	}
}

// cleanDynamicContent removes test components by content id. Call in t.Cleanup().
func cleanDynamicContent(t *testing.T, db *sql.DB, ids ...int) {
	t.Helper()
	for _, id := range ids {
		db.Exec("DELETE FROM wiser_dynamic_content WHERE content_id = $1", id)
	}
}

// cleanSettings removes test settings by key. Call in t.Cleanup().
func cleanSettings(t *testing.T, db *sql.DB, keys ...string) {
	t.Helper()
	for _, key := range keys {
		db.Exec("DELETE FROM system_settings WHERE key = $1", key)
	}
}

// cleanRenderLog removes render log rows by content id. Call in t.Cleanup().
func cleanRenderLog(t *testing.T, db *sql.DB, ids ...int) {
	t.Helper()
	for _, id := range ids {
		db.Exec("DELETE FROM wiser_render_log WHERE content_id = $1", id)
	}
}
