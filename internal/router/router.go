// Package router wires the demo server's routes and middleware chain.
package router

import (
	"github.com/go-chi/chi/v5"

	"geekscore/internal/handlers"
	"geekscore/internal/middleware"
)

// New creates the configured Chi router.
func New(pages *handlers.Pages) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	r.Get("/healthz", pages.Healthz)
	r.Get("/styles.css", pages.ServeStyles)
	r.Get("/scripts.js", pages.ServeScripts)
	r.Get("/cdn/*", pages.ServeCDN)

	// Everything else resolves to a page template by path.
	r.Get("/*", pages.ServePage)

	return r
}
