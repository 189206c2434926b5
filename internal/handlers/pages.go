// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers of the demo server: public
// page rendering backed by the template pipeline, aggregated resource
// endpoints, and a media proxy.
package handlers

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"geekscore/internal/config"
	"geekscore/internal/models"
	"geekscore/internal/pages"
	"geekscore/internal/rendercache"
	"geekscore/internal/requestctx"
	"geekscore/internal/session"
	"geekscore/internal/slug"
	"geekscore/internal/storage"
	"geekscore/internal/store"
	"geekscore/internal/templates"
)

// Pages serves rendered site pages and their aggregated resources.
type Pages struct {
	cfg       *config.Config
	templates templates.Service
	pages     *pages.Service
	sessions  *session.Store
	memCache  *rendercache.Cache
	diskCache *rendercache.Cache
	storage   *storage.Client
}

// NewPages creates the page handler group. memCache may wrap a Valkey
// backend or be nil; diskCache must be non-nil.
func NewPages(cfg *config.Config, tmpl templates.Service, pageSvc *pages.Service, sessions *session.Store, memCache, diskCache *rendercache.Cache, storageClient *storage.Client) *Pages {
	return &Pages{
		cfg:       cfg,
		templates: tmpl,
		pages:     pageSvc,
		sessions:  sessions,
		memCache:  memCache,
		diskCache: diskCache,
		storage:   storageClient,
	}
}

// ServePage renders the HTML template whose name matches the request
// path, with output caching per the template's own cache settings.
func (h *Pages) ServePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := requestctx.FromHTTP(r, h.cfg.CacheDeviationCookies)
	h.sessions.ResolveUser(ctx, rc)

	name := templateNameFromPath(r.URL.Path)
	tmpl, err := h.templates.GetTemplate(ctx, rc, store.Lookup{
		Name:           name,
		Type:           models.TemplateTypeHTML,
		IncludeContent: true,
	}, false)
	if err != nil {
		slog.ErrorContext(ctx, "resolve page template",
			"name", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if tmpl.ID == 0 {
		http.NotFound(w, r)
		return
	}

	if tmpl.LoginRequired && tmpl.Content == "" && tmpl.MinifiedContent == "" {
		if tmpl.LoginRedirectURL != "" {
			http.Redirect(w, r, tmpl.LoginRedirectURL, http.StatusFound)
			return
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	cacheName, err := h.templates.GetTemplateOutputCacheFileName(rc, tmpl)
	if err != nil {
		slog.ErrorContext(ctx, "derive cache name",
			"template_id", tmpl.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	ttl := rendercache.Duration(tmpl, h.cfg.DefaultCacheMinutes)

	body, err := h.cacheFor(tmpl).GetOrRender(ctx, "html", cacheName, ttl, func(ctx context.Context) ([]byte, error) {
		return h.renderPage(ctx, rc, tmpl)
	})
	if err != nil {
		slog.ErrorContext(ctx, "render page",
			"template_id", tmpl.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(body)
}

// cacheFor maps a template's caching location to a backend, falling back
// to disk when no in-memory backend is configured.
func (h *Pages) cacheFor(tmpl *models.Template) *rendercache.Cache {
	if tmpl.CachingLocation == models.CacheInMemory && h.memCache != nil {
		return h.memCache
	}
	return h.diskCache
}

// renderPage runs the full pipeline for one page template and assembles
// the final document.
func (h *Pages) renderPage(ctx context.Context, rc *requestctx.Context, tmpl *models.Template) ([]byte, error) {
	if err := h.templates.ExecutePreLoadQuery(ctx, rc, tmpl); err != nil {
		slog.WarnContext(ctx, "pre-load query failed",
			"template_id", tmpl.ID, "error", err)
	}

	body, err := h.templates.DoReplaces(ctx, rc, tmpl.OutputContent(), templates.DefaultReplaceOptions())
	if err != nil {
		return nil, fmt.Errorf("expand page body: %w", err)
	}

	header, _, err := h.pages.GetGlobalHeader(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("global header: %w", err)
	}
	footer, _, err := h.pages.GetGlobalFooter(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("global footer: %w", err)
	}

	model, err := h.pages.CreatePageViewModel(ctx, rc, tmpl, header+body+footer)
	if err != nil {
		return nil, fmt.Errorf("page view model: %w", err)
	}

	return composeDocument(model), nil
}

// composeDocument writes the final HTML document around an assembled view
// model: metadata and head resources, the expanded body, footer scripts.
func composeDocument(model *models.PageViewModel) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")

	meta := model.MetaData
	if meta.PageTitle != "" {
		fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(meta.PageTitle))
	}
	if meta.MetaDescription != "" {
		fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">\n", html.EscapeString(meta.MetaDescription))
	}
	if meta.Robots != "" {
		fmt.Fprintf(&b, "<meta name=\"robots\" content=\"%s\">\n", html.EscapeString(meta.Robots))
	}
	if meta.Canonical != "" {
		fmt.Fprintf(&b, "<link rel=\"canonical\" href=\"%s\">\n", html.EscapeString(meta.Canonical))
	}
	if meta.PreviousPageLink != "" {
		fmt.Fprintf(&b, "<link rel=\"prev\" href=\"%s\">\n", html.EscapeString(meta.PreviousPageLink))
	}
	if meta.NextPageLink != "" {
		fmt.Fprintf(&b, "<link rel=\"next\" href=\"%s\">\n", html.EscapeString(meta.NextPageLink))
	}
	writeOpenGraph(&b, meta.OpenGraph)

	writeHeadResources(&b, model)
	b.WriteString("</head>\n<body>\n")
	b.WriteString(model.Body)
	writeFooterResources(&b, model)
	b.WriteString("\n</body>\n</html>\n")

	return []byte(b.String())
}

func writeOpenGraph(b *strings.Builder, og map[string]string) {
	if len(og) == 0 {
		return
	}
	keys := make([]string, 0, len(og))
	for key := range og {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(b, "<meta property=\"og:%s\" content=\"%s\">\n",
			html.EscapeString(key), html.EscapeString(og[key]))
	}
}

func writeHeadResources(b *strings.Builder, model *models.PageViewModel) {
	if model.CSS.GeneralStandard != "" || model.CSS.PageStandard != "" {
		uri := "/styles.css"
		if model.CSS.GeneralCacheSuffix != "" {
			uri += "?v=" + model.CSS.GeneralCacheSuffix
		}
		fmt.Fprintf(b, "<link rel=\"stylesheet\" href=\"%s\">\n", uri)
	}
	if model.CSS.GeneralInlineHead != "" || model.CSS.PageInlineHead != "" {
		fmt.Fprintf(b, "<style>%s%s</style>\n", model.CSS.GeneralInlineHead, model.CSS.PageInlineHead)
	}
	if model.JS.GeneralInlineHead != "" || model.JS.PageInlineHead != "" {
		fmt.Fprintf(b, "<script>%s%s</script>\n", model.JS.GeneralInlineHead, model.JS.PageInlineHead)
	}
	for _, file := range model.CSS.ExternalFiles {
		if file.InsertMode == models.InsertModeStandard || file.InsertMode == models.InsertModeInlineHead {
			fmt.Fprintf(b, "<link rel=\"stylesheet\" href=\"%s\">\n", html.EscapeString(file.URI))
		}
	}
	if model.JS.GeneralStandard != "" || model.JS.PageStandard != "" {
		uri := "/scripts.js"
		if model.JS.GeneralCacheSuffix != "" {
			uri += "?v=" + model.JS.GeneralCacheSuffix
		}
		fmt.Fprintf(b, "<script src=\"%s\" defer></script>\n", uri)
	}
	for _, file := range model.JS.ExternalFiles {
		if file.InsertMode == models.InsertModeStandard || file.InsertMode == models.InsertModeInlineHead {
			fmt.Fprintf(b, "<script src=\"%s\" defer></script>\n", html.EscapeString(file.URI))
		}
	}
}

func writeFooterResources(b *strings.Builder, model *models.PageViewModel) {
	if model.CSS.GeneralSyncFooter != "" || model.CSS.PageSyncFooter != "" ||
		model.CSS.GeneralAsyncFooter != "" || model.CSS.PageAsyncFooter != "" {
		fmt.Fprintf(b, "\n<style>%s%s%s%s</style>",
			model.CSS.GeneralSyncFooter, model.CSS.PageSyncFooter,
			model.CSS.GeneralAsyncFooter, model.CSS.PageAsyncFooter)
	}
	if model.JS.GeneralSyncFooter != "" || model.JS.PageSyncFooter != "" {
		fmt.Fprintf(b, "\n<script>%s%s</script>", model.JS.GeneralSyncFooter, model.JS.PageSyncFooter)
	}
	if model.JS.GeneralAsyncFooter != "" || model.JS.PageAsyncFooter != "" {
		fmt.Fprintf(b, "\n<script async>%s%s</script>", model.JS.GeneralAsyncFooter, model.JS.PageAsyncFooter)
	}
	for _, file := range model.JS.ExternalFiles {
		switch file.InsertMode {
		case models.InsertModeSyncFooter:
			fmt.Fprintf(b, "\n<script src=\"%s\"></script>", html.EscapeString(file.URI))
		case models.InsertModeAsyncFooter:
			fmt.Fprintf(b, "\n<script src=\"%s\" async></script>", html.EscapeString(file.URI))
		}
	}
}

// ServeStyles answers /styles.css with all aggregated general CSS.
func (h *Pages) ServeStyles(w http.ResponseWriter, r *http.Request) {
	h.serveResource(w, r, models.TemplateTypeCSS, "text/css; charset=utf-8", "general_styles")
}

// ServeScripts answers /scripts.js with all aggregated general JS.
func (h *Pages) ServeScripts(w http.ResponseWriter, r *http.Request) {
	h.serveResource(w, r, models.TemplateTypeJS, "text/javascript; charset=utf-8", "general_scripts")
}

func (h *Pages) serveResource(w http.ResponseWriter, r *http.Request, tmplType models.TemplateType, contentType, baseName string) {
	ctx := r.Context()
	rc := requestctx.FromHTTP(r, h.cfg.CacheDeviationCookies)

	name := slug.SanitizeFileName(baseName+rc.DeviationSuffix()+"_branch-"+h.cfg.Branch) + tmplType.ContentExtension()
	ttl := time.Duration(h.cfg.DefaultCacheMinutes) * time.Minute

	content, err := h.diskCache.GetOrRender(ctx, string(tmplType), name, ttl, func(ctx context.Context) ([]byte, error) {
		var b strings.Builder
		for _, mode := range []models.ResourceInsertMode{
			models.InsertModeStandard,
			models.InsertModeInlineHead,
			models.InsertModeSyncFooter,
			models.InsertModeAsyncFooter,
		} {
			response, err := h.templates.GetGeneralTemplateValue(ctx, rc, tmplType, mode)
			if err != nil {
				return nil, err
			}
			b.WriteString(response.Content)
		}
		return []byte(b.String()), nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "aggregate resources",
			"type", string(tmplType), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(content)
}

// ServeCDN proxies media objects from object storage.
func (h *Pages) ServeCDN(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		http.NotFound(w, r)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/cdn/")
	if key == "" || strings.Contains(key, "..") {
		http.NotFound(w, r)
		return
	}

	body, contentType, err := h.storage.Download(r.Context(), key)
	if err != nil {
		slog.WarnContext(r.Context(), "cdn download failed",
			"key", key, "error", err)
		http.NotFound(w, r)
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	io.Copy(w, body)
}

// Healthz answers liveness probes.
func (h *Pages) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// templateNameFromPath maps a request path to a template name: the last
// path segment, or "home" for the site root.
func templateNameFromPath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "home"
	}
	segments := strings.Split(path, "/")
	return segments[len(segments)-1]
}
