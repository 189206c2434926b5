// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"geekscore/internal/models"
)

// ErrNoIdentifier is returned when a template lookup supplies neither an
// id nor a name. One of the two is required.
var ErrNoIdentifier = errors.New("template lookup requires an id or a name")

// TemplateStore handles all template read operations against the Wiser
// schema. Templates are authored elsewhere; this store only reads.
type TemplateStore struct {
	db          *sql.DB
	environment models.Environment
}

// NewTemplateStore creates a TemplateStore resolving versions for the
// given environment.
func NewTemplateStore(db *sql.DB, environment models.Environment) *TemplateStore {
	return &TemplateStore{db: db, environment: environment}
}

// Lookup describes one template lookup. Exactly one of ID/Name must be
// set; ParentID or ParentName disambiguate templates sharing a name.
type Lookup struct {
	ID             int
	Name           string
	Type           models.TemplateType
	ParentID       int
	ParentName     string
	IncludeContent bool
}

// templateColumns is the full column list scanned into a Template.
const templateColumns = `
	t.template_id, t.parent_id, t.template_name, t.template_type,
	t.template_data, t.template_data_minified,
	t.version, t.published_environment, t.changed_on,
	t.ordering, t.insert_mode, t.load_always, t.url_regex,
	t.css_templates, t.javascript_templates, t.external_files, t.wiser_cdn_files,
	t.pre_load_query,
	t.cache_minutes, t.cache_location, t.cache_per_url, t.cache_per_querystring,
	t.cache_per_hostname, t.cache_per_user, t.cache_using_regex, t.cache_regex,
	t.login_required, t.login_roles, t.login_redirect_url,
	t.is_default_header, t.is_default_footer, t.default_header_footer_regex`

// GetTemplate resolves a template by id or by name (optionally scoped to a
// parent), applying environment publish filtering and version selection.
// A miss returns an empty Template with ID 0, never an error; callers test
// for ID > 0.
func (s *TemplateStore) GetTemplate(ctx context.Context, lookup Lookup) (*models.Template, error) {
	if lookup.ID <= 0 && lookup.Name == "" {
		return nil, ErrNoIdentifier
	}

	if lookup.Type == models.TemplateTypeQuery {
		return s.getQueryTemplate(ctx, lookup)
	}

	var conditions []string
	var args []any

	if lookup.ID > 0 {
		args = append(args, lookup.ID)
		conditions = append(conditions, fmt.Sprintf("t.template_id = $%d", len(args)))
	} else {
		args = append(args, lookup.Name)
		conditions = append(conditions, fmt.Sprintf("LOWER(t.template_name) = LOWER($%d)", len(args)))
		if lookup.Type != "" && lookup.Type != models.TemplateTypeUnknown {
			args = append(args, string(lookup.Type))
			conditions = append(conditions, fmt.Sprintf("t.template_type = $%d", len(args)))
		}
		if lookup.ParentID > 0 {
			args = append(args, lookup.ParentID)
			conditions = append(conditions, fmt.Sprintf("t.parent_id = $%d", len(args)))
		} else if lookup.ParentName != "" {
			args = append(args, lookup.ParentName)
			conditions = append(conditions, fmt.Sprintf(
				"t.parent_id IN (SELECT template_id FROM wiser_template WHERE LOWER(template_name) = LOWER($%d))",
				len(args)))
		}
	}

	conditions = append(conditions, "t.removed = FALSE")
	if env := s.environmentCondition(&args); env != "" {
		conditions = append(conditions, env)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM wiser_template t
		WHERE %s
		ORDER BY t.version DESC
		LIMIT 1`, templateColumns, strings.Join(conditions, " AND "))

	row := s.db.QueryRowContext(ctx, query, args...)
	tmpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return &models.Template{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}

	if !lookup.IncludeContent {
		tmpl.Content = ""
		tmpl.MinifiedContent = ""
		tmpl.PreLoadQuery = ""
	}

	if err := s.resolveParentNames(ctx, tmpl); err != nil {
		return nil, err
	}

	return tmpl, nil
}

// getQueryTemplate resolves a Query-type template from its own partition
// of the schema. Query templates hold SQL text, not markup.
func (s *TemplateStore) getQueryTemplate(ctx context.Context, lookup Lookup) (*models.Template, error) {
	var conditions []string
	var args []any

	if lookup.ID > 0 {
		args = append(args, lookup.ID)
		conditions = append(conditions, fmt.Sprintf("t.query_id = $%d", len(args)))
	} else {
		args = append(args, lookup.Name)
		conditions = append(conditions, fmt.Sprintf("LOWER(t.query_name) = LOWER($%d)", len(args)))
	}

	conditions = append(conditions, "t.removed = FALSE")
	if env := s.environmentCondition(&args); env != "" {
		conditions = append(conditions, env)
	}

	query := fmt.Sprintf(`
		SELECT t.query_id, t.query_name, t.query_text, t.version,
		       t.published_environment, t.changed_on,
		       t.login_required, t.login_roles, t.login_redirect_url
		FROM wiser_query t
		WHERE %s
		ORDER BY t.version DESC
		LIMIT 1`, strings.Join(conditions, " AND "))

	tmpl := &models.Template{Type: models.TemplateTypeQuery}
	var roles string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&tmpl.ID, &tmpl.Name, &tmpl.Content, &tmpl.Version,
		&tmpl.PublishedEnvironment, &tmpl.LastChanged,
		&tmpl.LoginRequired, &roles, &tmpl.LoginRedirectURL,
	)
	if err == sql.ErrNoRows {
		return &models.Template{Type: models.TemplateTypeQuery}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get query template: %w", err)
	}

	tmpl.LoginRoles = splitList(roles)
	if !lookup.IncludeContent {
		tmpl.Content = ""
	}
	return tmpl, nil
}

// GetTemplateContent is the lighter variant of GetTemplate: only the body
// columns are fetched, for callers that need nothing else.
func (s *TemplateStore) GetTemplateContent(ctx context.Context, id int) (*models.Template, error) {
	if id <= 0 {
		return nil, ErrNoIdentifier
	}

	var args []any
	conditions := []string{"t.removed = FALSE"}
	args = append(args, id)
	conditions = append(conditions, fmt.Sprintf("t.template_id = $%d", len(args)))
	if env := s.environmentCondition(&args); env != "" {
		conditions = append(conditions, env)
	}

	query := fmt.Sprintf(`
		SELECT t.template_id, t.template_name, t.template_type,
		       t.template_data, t.template_data_minified, t.version, t.changed_on
		FROM wiser_template t
		WHERE %s
		ORDER BY t.version DESC
		LIMIT 1`, strings.Join(conditions, " AND "))

	tmpl := &models.Template{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&tmpl.ID, &tmpl.Name, &tmpl.Type,
		&tmpl.Content, &tmpl.MinifiedContent, &tmpl.Version, &tmpl.LastChanged,
	)
	if err == sql.ErrNoRows {
		return &models.Template{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template content: %w", err)
	}
	return tmpl, nil
}

// GetTemplateIDFromName resolves a template name to its id, or 0 when no
// such template is published for the current environment.
func (s *TemplateStore) GetTemplateIDFromName(ctx context.Context, name string, tmplType models.TemplateType) (int, error) {
	if name == "" {
		return 0, ErrNoIdentifier
	}

	tmpl, err := s.GetTemplate(ctx, Lookup{Name: name, Type: tmplType})
	if err != nil {
		return 0, err
	}
	return tmpl.ID, nil
}

// GetTemplates resolves a list of template ids in one round trip, keeping
// the requested order. Ids that miss are silently absent from the result.
func (s *TemplateStore) GetTemplates(ctx context.Context, ids []int, includeContent bool) ([]models.Template, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	var args []any
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		fmt.Sprintf("t.template_id IN (%s)", strings.Join(placeholders, ", ")),
		"t.removed = FALSE",
	}
	if env := s.environmentCondition(&args); env != "" {
		conditions = append(conditions, env)
	}

	// DISTINCT ON picks the newest eligible version per template id.
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (t.template_id) %s
		FROM wiser_template t
		WHERE %s
		ORDER BY t.template_id, t.version DESC`,
		templateColumns, strings.Join(conditions, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get templates: %w", err)
	}
	defer rows.Close()

	byID := make(map[int]models.Template)
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if !includeContent {
			tmpl.Content = ""
			tmpl.MinifiedContent = ""
			tmpl.PreLoadQuery = ""
		}
		byID[tmpl.ID] = *tmpl
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get templates: %w", err)
	}

	var templates []models.Template
	for _, id := range ids {
		if tmpl, ok := byID[id]; ok {
			templates = append(templates, tmpl)
		}
	}
	return templates, nil
}

// GetGeneralTemplates returns the newest eligible version of every
// "load always" template of the given type, ordered by configured sort
// order. This feeds the bulk cache behind GetGeneralTemplateValue.
func (s *TemplateStore) GetGeneralTemplates(ctx context.Context, tmplType models.TemplateType) ([]models.Template, error) {
	var args []any
	args = append(args, string(tmplType))
	conditions := []string{
		"t.template_type = $1",
		"t.load_always = TRUE",
		"t.removed = FALSE",
	}
	if env := s.environmentCondition(&args); env != "" {
		conditions = append(conditions, env)
	}

	query := fmt.Sprintf(`
		SELECT * FROM (
			SELECT DISTINCT ON (t.template_id) %s
			FROM wiser_template t
			WHERE %s
			ORDER BY t.template_id, t.version DESC
		) latest
		ORDER BY latest.ordering, latest.template_id`,
		templateColumns, strings.Join(conditions, " AND "))

	return s.queryTemplates(ctx, query, args...)
}

// GetDefaultHeaderFooterCandidates returns all templates flagged as the
// default header (or footer) for the environment, ordered by sort order.
// The caller applies per-candidate URL regexes; the first match wins.
func (s *TemplateStore) GetDefaultHeaderFooterCandidates(ctx context.Context, footer bool) ([]models.Template, error) {
	flag := "t.is_default_header = TRUE"
	if footer {
		flag = "t.is_default_footer = TRUE"
	}

	var args []any
	conditions := []string{flag, "t.removed = FALSE"}
	if env := s.environmentCondition(&args); env != "" {
		conditions = append(conditions, env)
	}

	query := fmt.Sprintf(`
		SELECT * FROM (
			SELECT DISTINCT ON (t.template_id) %s
			FROM wiser_template t
			WHERE %s
			ORDER BY t.template_id, t.version DESC
		) latest
		ORDER BY latest.ordering, latest.template_id`,
		templateColumns, strings.Join(conditions, " AND "))

	return s.queryTemplates(ctx, query, args...)
}

// environmentCondition appends the publish-mask filter for non-development
// environments. Development takes the newest version regardless of mask,
// so no condition is added there.
func (s *TemplateStore) environmentCondition(args *[]any) string {
	if s.environment == models.EnvironmentDevelopment {
		return ""
	}
	*args = append(*args, int(s.environment))
	return fmt.Sprintf("(t.published_environment & $%d) > 0", len(*args))
}

// resolveParentNames walks the parent chain (at most 5 ancestor levels) to
// fill ParentName and RootName, used for cache-key namespacing and for
// parent\name inclusion qualifiers.
func (s *TemplateStore) resolveParentNames(ctx context.Context, tmpl *models.Template) error {
	parentID := tmpl.ParentID
	for level := 0; parentID > 0 && level < 5; level++ {
		var name string
		var nextParent int
		err := s.db.QueryRowContext(ctx, `
			SELECT template_name, parent_id FROM wiser_template
			WHERE template_id = $1 AND removed = FALSE
			ORDER BY version DESC
			LIMIT 1`, parentID).Scan(&name, &nextParent)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return fmt.Errorf("resolve parent chain: %w", err)
		}
		if level == 0 {
			tmpl.ParentName = name
		}
		tmpl.RootName = name
		parentID = nextParent
	}
	return nil
}

// queryTemplates runs a multi-row template query and scans the results.
func (s *TemplateStore) queryTemplates(ctx context.Context, query string, args ...any) ([]models.Template, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *tmpl)
	}
	return templates, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTemplate maps one wiser_template row onto a Template entity.
func scanTemplate(row scanner) (*models.Template, error) {
	tmpl := &models.Template{}
	var cssIDs, jsIDs, externalFiles, cdnFiles, loginRoles string

	err := row.Scan(
		&tmpl.ID, &tmpl.ParentID, &tmpl.Name, &tmpl.Type,
		&tmpl.Content, &tmpl.MinifiedContent,
		&tmpl.Version, &tmpl.PublishedEnvironment, &tmpl.LastChanged,
		&tmpl.SortOrder, &tmpl.InsertMode, &tmpl.LoadAlways, &tmpl.URLRegex,
		&cssIDs, &jsIDs, &externalFiles, &cdnFiles,
		&tmpl.PreLoadQuery,
		&tmpl.CachingMinutes, &tmpl.CachingLocation, &tmpl.CachePerURL, &tmpl.CachePerQueryString,
		&tmpl.CachePerHostName, &tmpl.CachePerUser, &tmpl.CacheUsingRegex, &tmpl.CachingRegex,
		&tmpl.LoginRequired, &loginRoles, &tmpl.LoginRedirectURL,
		&tmpl.IsDefaultHeader, &tmpl.IsDefaultFooter, &tmpl.DefaultHeaderFooterRegex,
	)
	if err != nil {
		return nil, err
	}

	tmpl.CSSTemplates = splitIDList(cssIDs)
	tmpl.JavascriptTemplates = splitIDList(jsIDs)
	tmpl.ExternalFiles = splitList(externalFiles)
	tmpl.WiserCDNFiles = splitList(cdnFiles)
	tmpl.LoginRoles = splitList(loginRoles)

	return tmpl, nil
}

// splitList splits a comma/newline separated column value into trimmed,
// non-empty items.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	for _, item := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	}) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// splitIDList parses a comma-separated id column, skipping junk values.
func splitIDList(s string) []int {
	var ids []int
	for _, item := range splitList(s) {
		if id, err := strconv.Atoi(item); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
