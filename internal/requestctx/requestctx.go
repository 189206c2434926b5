// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package requestctx defines the explicit per-request state object passed
// down the rendering call chain. Everything the pipeline used to fish out
// of ambient request storage lives here as a plain field, so data flow is
// visible and testable without a simulated HTTP stack.
package requestctx

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// User identifies the authenticated visitor, if any, for template
// permission checks and per-user cache partitioning.
type User struct {
	ID       int
	Roles    []string
	LoggedIn bool
}

// SeoData carries page-level SEO fields. Components may set these during
// rendering; page assembly only fills fields a component left blank.
type SeoData struct {
	PageTitle        string
	SeoText          string
	MetaDescription  string
	Canonical        string
	Robots           string
	PreviousPageLink string
	NextPageLink     string
}

// Context is the per-request state bag for one rendering pass.
type Context struct {
	RequestID uuid.UUID

	Scheme   string
	Host     string
	Path     string
	RawQuery string
	Query    url.Values
	Cookies  map[string]string

	LanguageCode string
	User         User

	// PreLoadData holds the single-row result of a template's pre-load
	// query, available to the replacement pass under the "preload" prefix.
	PreLoadData map[string]string

	// Seo and OpenGraph are written by components during dynamic-content
	// rendering and read by page assembly afterwards.
	Seo       SeoData
	OpenGraph map[string]string

	// DeviationCookies lists cookie names whose values partition caches.
	DeviationCookies []string
}

// New returns an empty request context suitable for non-web callers and
// tests. Without HTTP request data, permission-gated templates resolve to
// their stripped form.
func New() *Context {
	return &Context{
		RequestID: uuid.New(),
		Query:     url.Values{},
		Cookies:   map[string]string{},
		OpenGraph: map[string]string{},
	}
}

// FromHTTP builds a request context from an incoming HTTP request.
func FromHTTP(r *http.Request, deviationCookies []string) *Context {
	rc := New()
	rc.Scheme = "http"
	if r.TLS != nil {
		rc.Scheme = "https"
	}
	rc.Host = r.Host
	rc.Path = r.URL.Path
	rc.RawQuery = r.URL.RawQuery
	rc.Query = r.URL.Query()
	rc.DeviationCookies = deviationCookies

	for _, c := range r.Cookies() {
		rc.Cookies[c.Name] = c.Value
	}

	return rc
}

// HasRequest reports whether this context was built from a web request.
// Non-web callers (background jobs, tests) have no host.
func (rc *Context) HasRequest() bool {
	return rc != nil && rc.Host != ""
}

// FullURL reconstructs the request URL including the query string.
func (rc *Context) FullURL() string {
	var b strings.Builder
	b.WriteString(rc.Scheme)
	b.WriteString("://")
	b.WriteString(rc.Host)
	b.WriteString(rc.Path)
	if rc.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(rc.RawQuery)
	}
	return b.String()
}

// DeviationSuffix hashes the values of the configured deviation cookies
// into a short cache-key suffix. Requests with identical deviation cookie
// values share cache entries; everything else stays separated.
func (rc *Context) DeviationSuffix() string {
	if len(rc.DeviationCookies) == 0 {
		return ""
	}

	names := make([]string, len(rc.DeviationCookies))
	copy(names, rc.DeviationCookies)
	sort.Strings(names)

	var b strings.Builder
	found := false
	for _, name := range names {
		if v, ok := rc.Cookies[name]; ok && v != "" {
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(v)
			b.WriteString(";")
			found = true
		}
	}
	if !found {
		return ""
	}

	sum := sha256.Sum256([]byte(b.String()))
	return "_dev-" + hex.EncodeToString(sum[:])[:16]
}

// HasRole reports whether the current user carries any of the given roles.
// An empty requirement list always passes.
func (rc *Context) HasRole(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range rc.User.Roles {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}
