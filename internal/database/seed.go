package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Seed installs a minimal default site so the demo server renders something
// out of the box: a header, a footer, a home page with one dynamic-content
// placeholder, and a load-always stylesheet. No-op when templates exist.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM wiser_template").Scan(&count); err != nil {
		return fmt.Errorf("seed check templates: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	// published_environment 15 = all environments.
	templates := []struct {
		id        int
		name      string
		tmplType  string
		data      string
		header    bool
		footer    bool
		always    bool
	}{
		{
			id: 1, name: "header", tmplType: "html", header: true,
			data: `<header><h1>{sitename}</h1></header>`,
		},
		{
			id: 2, name: "footer", tmplType: "html", footer: true,
			data: `<footer><p>&copy; {sitename}</p></footer>`,
		},
		{
			id: 3, name: "home", tmplType: "html",
			data: `<main><h2>Welcome</h2><div class="dynamic-content" content-id="1"></div></main>`,
		},
		{
			id: 4, name: "base-styles", tmplType: "css", always: true,
			data: `body{font-family:sans-serif;margin:0}`,
		},
	}

	for _, t := range templates {
		_, err := db.Exec(`
			INSERT INTO wiser_template
				(template_id, template_name, template_type, template_data,
				 published_environment, is_default_header, is_default_footer, load_always)
			VALUES ($1, $2, $3, $4, 15, $5, $6, $7)
		`, t.id, t.name, t.tmplType, t.data, t.header, t.footer, t.always)
		if err != nil {
			return fmt.Errorf("seed insert template %q: %w", t.name, err)
		}
	}

	_, err := db.Exec(`
		INSERT INTO wiser_dynamic_content
			(content_id, component_name, title, settings_json, published_environment)
		VALUES (1, 'text', 'Welcome text', '{"text":"Hello from geekscore."}', 15)
	`)
	if err != nil {
		return fmt.Errorf("seed insert dynamic content: %w", err)
	}

	slog.Info("database seeded with default site templates")
	return nil
}
