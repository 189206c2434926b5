// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package templates implements the template resolution and rendering
// pipeline: repository lookups with environment-aware version selection,
// inclusion expansion, image templating, dynamic-content substitution, and
// output cache-name derivation. CachedService decorates the plain service
// with coalesced in-memory caching behind the same interface.
package templates

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"geekscore/internal/components"
	"geekscore/internal/imaging"
	"geekscore/internal/models"
	"geekscore/internal/rendercache"
	"geekscore/internal/replacements"
	"geekscore/internal/requestctx"
	"geekscore/internal/store"
)

// Service is the capability set of the template pipeline. The caching
// decorator implements the same interface, so consumers choose cached or
// uncached by construction, not by type switching.
type Service interface {
	GetTemplate(ctx context.Context, rc *requestctx.Context, lookup store.Lookup, skipPermissions bool) (*models.Template, error)
	GetTemplateContent(ctx context.Context, rc *requestctx.Context, id int) (string, error)
	GetTemplateCacheSettings(ctx context.Context, id int) (*models.Template, error)
	GetTemplatePermissionSettings(ctx context.Context, id int) (*models.Template, error)
	CheckTemplatePermissions(ctx context.Context, rc *requestctx.Context, tmpl *models.Template) *models.Template
	GetTemplates(ctx context.Context, ids []int, includeContent bool) ([]models.Template, error)
	GetTemplateIDFromName(ctx context.Context, name string, tmplType models.TemplateType) (int, error)

	GetGeneralTemplates(ctx context.Context, rc *requestctx.Context, tmplType models.TemplateType) ([]models.Template, error)
	GetGeneralTemplateValue(ctx context.Context, rc *requestctx.Context, tmplType models.TemplateType, insertMode models.ResourceInsertMode) (*models.TemplateResponse, error)
	GetCombinedTemplateValue(ctx context.Context, rc *requestctx.Context, ids []int, tmplType models.TemplateType) (*models.TemplateResponse, error)

	DoReplaces(ctx context.Context, rc *requestctx.Context, input string, opts ReplaceOptions) (string, error)
	HandleIncludes(ctx context.Context, rc *requestctx.Context, input string, opts ReplaceOptions) (string, error)
	HandleImageTemplating(ctx context.Context, input string) (string, error)

	ReplaceAllDynamicContent(ctx context.Context, rc *requestctx.Context, input string, overrides map[int]models.DynamicContent) (string, error)
	GetDynamicContentData(ctx context.Context, id int) (*models.DynamicContent, error)
	GenerateDynamicContentHTML(ctx context.Context, rc *requestctx.Context, content *models.DynamicContent, extraData map[string]string) (string, error)

	GetTemplateOutputCacheFileName(rc *requestctx.Context, tmpl *models.Template) (string, error)
	ExecutePreLoadQuery(ctx context.Context, rc *requestctx.Context, tmpl *models.Template) error
}

// ReplaceOptions controls which passes DoReplaces applies.
type ReplaceOptions struct {
	replacements.Options

	// TemplateType gives inclusion lookups their type context.
	TemplateType models.TemplateType

	// HandleIncludes, HandleImageTemplating, and HandleDynamicContent
	// switch the corresponding pipeline stages. Dynamic content is always
	// skipped for SQL-bound content regardless of HandleDynamicContent.
	HandleIncludes        bool
	HandleImageTemplating bool
	HandleDynamicContent  bool
}

// DefaultReplaceOptions enables the full pipeline for HTML content.
func DefaultReplaceOptions() ReplaceOptions {
	return ReplaceOptions{
		Options: replacements.Options{
			HandleRequest:          true,
			EvaluateLogicSnippets:  true,
			HandleVariableDefaults: true,
		},
		TemplateType:          models.TemplateTypeHTML,
		HandleIncludes:        true,
		HandleImageTemplating: true,
		HandleDynamicContent:  true,
	}
}

// QueryReplaceOptions configures the pipeline for content destined for SQL
// text: no dynamic content, quoted value escaping.
func QueryReplaceOptions() ReplaceOptions {
	return ReplaceOptions{
		Options: replacements.Options{
			HandleRequest:          true,
			RemoveUnknownVariables: true,
			ForQuery:               true,
			HandleVariableDefaults: true,
		},
		TemplateType:   models.TemplateTypeQuery,
		HandleIncludes: true,
	}
}

// TemplatesService is the uncached pipeline implementation.
type TemplatesService struct {
	db          *sql.DB
	templates   *store.TemplateStore
	dynamic     *store.DynamicContentStore
	renderLog   *store.RenderLogStore
	settings    *store.SettingStore
	replacer    replacements.Replacer
	imaging     *imaging.Engine
	registry    *components.Registry
	environment models.Environment
	branch      string

	// provider routes recursive lookups (inclusions, dynamic content)
	// back through the outermost decorator so nested resolution benefits
	// from caching. Defaults to the service itself.
	provider Service
}

// Deps bundles the collaborators of a TemplatesService.
type Deps struct {
	DB          *sql.DB
	Templates   *store.TemplateStore
	Dynamic     *store.DynamicContentStore
	RenderLog   *store.RenderLogStore
	Settings    *store.SettingStore
	Replacer    replacements.Replacer
	Imaging     *imaging.Engine
	Registry    *components.Registry
	Environment models.Environment
	Branch      string
}

// NewService creates the uncached template service.
func NewService(deps Deps) *TemplatesService {
	s := &TemplatesService{
		db:          deps.DB,
		templates:   deps.Templates,
		dynamic:     deps.Dynamic,
		renderLog:   deps.RenderLog,
		settings:    deps.Settings,
		replacer:    deps.Replacer,
		imaging:     deps.Imaging,
		registry:    deps.Registry,
		environment: deps.Environment,
		branch:      deps.Branch,
	}
	s.provider = s
	return s
}

// SetProvider points recursive lookups at the outermost decorator.
// Called by CachedService during construction.
func (s *TemplatesService) SetProvider(p Service) {
	s.provider = p
}

// GetTemplate resolves a template and, unless skipped, applies the login
// permission check for Html and Query templates.
func (s *TemplatesService) GetTemplate(ctx context.Context, rc *requestctx.Context, lookup store.Lookup, skipPermissions bool) (*models.Template, error) {
	tmpl, err := s.templates.GetTemplate(ctx, lookup)
	if err != nil {
		return nil, err
	}

	if !skipPermissions {
		tmpl = s.CheckTemplatePermissions(ctx, rc, tmpl)
	}
	return tmpl, nil
}

// GetTemplateContent returns only the body of a template, minified when
// available.
func (s *TemplatesService) GetTemplateContent(ctx context.Context, rc *requestctx.Context, id int) (string, error) {
	tmpl, err := s.templates.GetTemplateContent(ctx, id)
	if err != nil {
		return "", err
	}
	return tmpl.OutputContent(), nil
}

// GetTemplateCacheSettings returns the template's caching attributes
// without its body; callers use it to pre-check cache entries.
func (s *TemplatesService) GetTemplateCacheSettings(ctx context.Context, id int) (*models.Template, error) {
	return s.GetTemplate(ctx, nil, store.Lookup{ID: id}, true)
}

// GetTemplatePermissionSettings returns the template's login attributes
// without its body.
func (s *TemplatesService) GetTemplatePermissionSettings(ctx context.Context, id int) (*models.Template, error) {
	return s.GetTemplate(ctx, nil, store.Lookup{ID: id}, true)
}

// GetTemplates bulk-resolves an id list.
func (s *TemplatesService) GetTemplates(ctx context.Context, ids []int, includeContent bool) ([]models.Template, error) {
	return s.templates.GetTemplates(ctx, ids, includeContent)
}

// GetTemplateIDFromName maps a template name to its id for the current
// environment.
func (s *TemplatesService) GetTemplateIDFromName(ctx context.Context, name string, tmplType models.TemplateType) (int, error) {
	return s.templates.GetTemplateIDFromName(ctx, name, tmplType)
}

// GetGeneralTemplates returns the "load always" templates of a type.
func (s *TemplatesService) GetGeneralTemplates(ctx context.Context, _ *requestctx.Context, tmplType models.TemplateType) ([]models.Template, error) {
	return s.templates.GetGeneralTemplates(ctx, tmplType)
}

// GetGeneralTemplateValue aggregates every "load always" template of the
// given type and insert mode into one TemplateResponse.
func (s *TemplatesService) GetGeneralTemplateValue(ctx context.Context, rc *requestctx.Context, tmplType models.TemplateType, insertMode models.ResourceInsertMode) (*models.TemplateResponse, error) {
	candidates, err := s.provider.GetGeneralTemplates(ctx, rc, tmplType)
	if err != nil {
		return nil, err
	}

	var selected []models.Template
	for _, tmpl := range candidates {
		if tmpl.InsertMode == insertMode {
			selected = append(selected, tmpl)
		}
	}
	return s.aggregateTemplates(ctx, rc, selected)
}

// GetCombinedTemplateValue aggregates an explicit id set of templates into
// one TemplateResponse, preserving the requested order.
func (s *TemplatesService) GetCombinedTemplateValue(ctx context.Context, rc *requestctx.Context, ids []int, tmplType models.TemplateType) (*models.TemplateResponse, error) {
	candidates, err := s.GetTemplates(ctx, ids, true)
	if err != nil {
		return nil, err
	}

	var selected []models.Template
	for _, tmpl := range candidates {
		if tmplType == "" || tmpl.Type == tmplType {
			selected = append(selected, tmpl)
		}
	}
	return s.aggregateTemplates(ctx, rc, selected)
}

// aggregateTemplates concatenates the content of all applicable templates,
// deduplicated by id and gated by URL regex, merging external files and
// tracking the newest change date.
func (s *TemplatesService) aggregateTemplates(ctx context.Context, rc *requestctx.Context, candidates []models.Template) (*models.TemplateResponse, error) {
	response := &models.TemplateResponse{}
	seen := make(map[int]bool)

	for i := range candidates {
		tmpl := &candidates[i]
		if seen[tmpl.ID] {
			continue
		}
		seen[tmpl.ID] = true

		if !templateApplies(rc, tmpl) {
			continue
		}

		content, err := s.provider.DoReplaces(ctx, rc, tmpl.OutputContent(), resourceReplaceOptions(tmpl.Type))
		if err != nil {
			return nil, fmt.Errorf("aggregate template %d: %w", tmpl.ID, err)
		}
		response.Content += content

		ordering := len(response.ExternalFiles)
		for _, uri := range tmpl.ExternalFiles {
			response.ExternalFiles = append(response.ExternalFiles, models.PageResource{
				URI:        uri,
				InsertMode: tmpl.InsertMode,
				Ordering:   ordering,
			})
			ordering++
		}
		// CDN files are stored as bare file names and served through the
		// /cdn/ route backed by object storage.
		for _, name := range tmpl.WiserCDNFiles {
			response.ExternalFiles = append(response.ExternalFiles, models.PageResource{
				URI:        "/cdn/" + name,
				InsertMode: tmpl.InsertMode,
				Ordering:   ordering,
			})
			ordering++
		}

		if tmpl.LastChanged.After(response.LastChangeDate) {
			response.LastChangeDate = tmpl.LastChanged
		}
	}

	return response, nil
}

// resourceReplaceOptions tunes the pipeline for CSS/JS aggregation: no
// dynamic content and no image templating inside stylesheets or scripts.
func resourceReplaceOptions(tmplType models.TemplateType) ReplaceOptions {
	opts := DefaultReplaceOptions()
	opts.TemplateType = tmplType
	switch tmplType {
	case models.TemplateTypeCSS, models.TemplateTypeSCSS, models.TemplateTypeJS:
		opts.HandleDynamicContent = false
		opts.HandleImageTemplating = false
	}
	return opts
}

// templateApplies evaluates a template's URL regex against the request.
// CSS/SCSS/JS templates always apply: their gating happens at link time.
func templateApplies(rc *requestctx.Context, tmpl *models.Template) bool {
	if tmpl.URLRegex == "" {
		return true
	}
	switch tmpl.Type {
	case models.TemplateTypeCSS, models.TemplateTypeSCSS, models.TemplateTypeJS:
		return true
	}
	if rc == nil || !rc.HasRequest() {
		return true
	}

	matched, err := regexp.MatchString(tmpl.URLRegex, rc.FullURL())
	if err != nil {
		return false
	}
	return matched
}

// GetTemplateOutputCacheFileName derives the deterministic rendered-output
// cache file name for the template under the current request.
func (s *TemplatesService) GetTemplateOutputCacheFileName(rc *requestctx.Context, tmpl *models.Template) (string, error) {
	return rendercache.FileName(rc, tmpl, s.branch)
}

// ExecutePreLoadQuery runs the template's pre-load query, if any, and
// attaches its single-row result to the request context under the
// "preload_" prefix for the replacement pass.
func (s *TemplatesService) ExecutePreLoadQuery(ctx context.Context, rc *requestctx.Context, tmpl *models.Template) error {
	if tmpl.PreLoadQuery == "" || rc == nil {
		return nil
	}

	query, err := s.provider.DoReplaces(ctx, rc, tmpl.PreLoadQuery, QueryReplaceOptions())
	if err != nil {
		return fmt.Errorf("pre-load query replacements: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("pre-load query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return rows.Err()
	}

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("pre-load query columns: %w", err)
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return fmt.Errorf("pre-load query scan: %w", err)
	}

	if rc.PreLoadData == nil {
		rc.PreLoadData = make(map[string]string, len(columns))
	}
	for i, col := range columns {
		rc.PreLoadData["preload_"+strings.ToLower(col)] = formatValue(values[i])
	}

	return nil
}

// formatValue renders a scanned database value for string substitution.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
