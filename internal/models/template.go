// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"slices"
	"time"
)

// TemplateType categorizes templates by content kind. The type decides
// which replacement passes apply and which cache partition is used.
type TemplateType string

const (
	TemplateTypeUnknown TemplateType = "unknown"
	TemplateTypeHTML    TemplateType = "html"
	TemplateTypeCSS     TemplateType = "css"
	TemplateTypeSCSS    TemplateType = "scss"
	TemplateTypeJS      TemplateType = "js"
	TemplateTypeQuery   TemplateType = "query"
	TemplateTypeRoutine TemplateType = "routine"
)

// ResourceInsertMode controls where a CSS/JS template's content is emitted
// when a page is assembled.
type ResourceInsertMode int

const (
	InsertModeStandard ResourceInsertMode = iota
	InsertModeInlineHead
	InsertModeSyncFooter
	InsertModeAsyncFooter
)

// TemplateCachingLocation chooses the backend for cached rendered output.
type TemplateCachingLocation int

const (
	CacheInMemory TemplateCachingLocation = iota
	CacheOnDisk
)

// NoCache as a CachingMinutes value disables output caching for a template
// regardless of the configured location. Zero means "use the default
// duration from configuration"; positive values are explicit minutes.
const NoCache = -1

// Template is the central entity of the rendering pipeline: a named,
// versioned, typed content unit authored in the Wiser CMS. This library
// only reads templates; authoring happens elsewhere.
type Template struct {
	ID         int          `json:"id"`
	ParentID   int          `json:"parent_id"`
	Name       string       `json:"name"`
	ParentName string       `json:"parent_name"`
	RootName   string       `json:"root_name"`
	Type       TemplateType `json:"type"`

	Content         string `json:"content"`
	MinifiedContent string `json:"minified_content"`

	Version              int         `json:"version"`
	PublishedEnvironment Environment `json:"published_environment"`
	LastChanged          time.Time   `json:"last_changed"`

	SortOrder  int                `json:"sort_order"`
	InsertMode ResourceInsertMode `json:"insert_mode"`
	LoadAlways bool               `json:"load_always"`

	// URLRegex gates the template per request URL. It is ignored for
	// CSS/SCSS/JS templates, which are always served when linked.
	URLRegex string `json:"url_regex"`

	CSSTemplates        []int    `json:"css_templates"`
	JavascriptTemplates []int    `json:"javascript_templates"`
	ExternalFiles       []string `json:"external_files"`
	WiserCDNFiles       []string `json:"wiser_cdn_files"`

	PreLoadQuery string `json:"pre_load_query"`

	CachingMinutes      int                     `json:"caching_minutes"`
	CachingLocation     TemplateCachingLocation `json:"caching_location"`
	CachePerURL         bool                    `json:"cache_per_url"`
	CachePerQueryString bool                    `json:"cache_per_query_string"`
	CachePerHostName    bool                    `json:"cache_per_host_name"`
	CachePerUser        bool                    `json:"cache_per_user"`
	CacheUsingRegex     bool                    `json:"cache_using_regex"`
	CachingRegex        string                  `json:"caching_regex"`

	LoginRequired    bool     `json:"login_required"`
	LoginRoles       []string `json:"login_roles"`
	LoginRedirectURL string   `json:"login_redirect_url"`

	IsDefaultHeader          bool   `json:"is_default_header"`
	IsDefaultFooter          bool   `json:"is_default_footer"`
	DefaultHeaderFooterRegex string `json:"default_header_footer_regex"`
}

// OutputContent returns the minified body when present, falling back to
// the full body. User-facing rendering always prefers the minified form.
func (t *Template) OutputContent() string {
	if t.MinifiedContent != "" {
		return t.MinifiedContent
	}
	return t.Content
}

// Clone returns a deep copy of the template. The cache layer hands out
// clones so callers can mutate Content (previews, replacements) without
// corrupting the cached master copy.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	clone := *t
	clone.CSSTemplates = slices.Clone(t.CSSTemplates)
	clone.JavascriptTemplates = slices.Clone(t.JavascriptTemplates)
	clone.ExternalFiles = slices.Clone(t.ExternalFiles)
	clone.WiserCDNFiles = slices.Clone(t.WiserCDNFiles)
	clone.LoginRoles = slices.Clone(t.LoginRoles)
	return &clone
}

// StripForLogin returns a reduced copy carrying only identity, type, and
// login metadata. It is what unauthenticated or unauthorized callers get
// instead of the real content.
func (t *Template) StripForLogin() *Template {
	return &Template{
		ID:               t.ID,
		Name:             t.Name,
		Type:             t.Type,
		LoginRequired:    t.LoginRequired,
		LoginRoles:       slices.Clone(t.LoginRoles),
		LoginRedirectURL: t.LoginRedirectURL,
	}
}

// ContentExtension returns the file extension used for the on-disk output
// cache partition of this template type.
func (t TemplateType) ContentExtension() string {
	switch t {
	case TemplateTypeCSS, TemplateTypeSCSS:
		return ".css"
	case TemplateTypeJS:
		return ".js"
	case TemplateTypeQuery, TemplateTypeRoutine:
		return ".sql"
	default:
		return ".html"
	}
}
