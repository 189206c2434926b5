// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package pages assembles fully rendered page view models: it combines a
// page template's expanded body with its global header/footer, splits
// linked CSS/JS into insert-mode buckets, and composes SEO metadata.
package pages

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"geekscore/internal/models"
	"geekscore/internal/requestctx"
	"geekscore/internal/store"
	"geekscore/internal/templates"
)

// insertModes is the fixed bucket order for page resources.
var insertModes = []models.ResourceInsertMode{
	models.InsertModeStandard,
	models.InsertModeInlineHead,
	models.InsertModeSyncFooter,
	models.InsertModeAsyncFooter,
}

// Service assembles page view models on top of the template pipeline.
type Service struct {
	templates templates.Service
	store     *store.TemplateStore
}

// New creates the page assembly service.
func New(tmpl templates.Service, templateStore *store.TemplateStore) *Service {
	return &Service{templates: tmpl, store: templateStore}
}

// CreatePageViewModel builds the complete view model for one page: the
// expanded body plus CSS and JS resources bucketed by insert mode, with
// cache-busting suffixes and SEO metadata from the request context.
func (s *Service) CreatePageViewModel(ctx context.Context, rc *requestctx.Context, pageTemplate *models.Template, body string) (*models.PageViewModel, error) {
	model := &models.PageViewModel{Body: body}

	css, err := s.buildResourceModel(ctx, rc, models.TemplateTypeCSS, pageTemplate.CSSTemplates)
	if err != nil {
		return nil, fmt.Errorf("assemble css: %w", err)
	}
	model.CSS = *css

	js, err := s.buildResourceModel(ctx, rc, models.TemplateTypeJS, pageTemplate.JavascriptTemplates)
	if err != nil {
		return nil, fmt.Errorf("assemble javascript: %w", err)
	}
	model.JS = *js

	s.SetPageSeoData(rc, pageTemplate)
	model.MetaData = buildMetaData(rc)

	return model, nil
}

// buildResourceModel fills the general and page buckets of one resource
// kind. General content comes from "load always" templates; page content
// from the templates linked to the page, grouped by their insert mode.
func (s *Service) buildResourceModel(ctx context.Context, rc *requestctx.Context, tmplType models.TemplateType, linkedIDs []int) (*models.PageResourceModel, error) {
	model := &models.PageResourceModel{}
	var generalChanged, pageChanged time.Time

	for _, mode := range insertModes {
		general, err := s.templates.GetGeneralTemplateValue(ctx, rc, tmplType, mode)
		if err != nil {
			return nil, fmt.Errorf("general templates: %w", err)
		}
		assignBucket(model, mode, true, general.Content)
		model.ExternalFiles = append(model.ExternalFiles, general.ExternalFiles...)
		if general.LastChangeDate.After(generalChanged) {
			generalChanged = general.LastChangeDate
		}
	}

	if len(linkedIDs) > 0 {
		grouped, err := s.groupByInsertMode(ctx, tmplType, linkedIDs)
		if err != nil {
			return nil, err
		}
		for _, mode := range insertModes {
			ids := grouped[mode]
			if len(ids) == 0 {
				continue
			}
			page, err := s.templates.GetCombinedTemplateValue(ctx, rc, ids, tmplType)
			if err != nil {
				return nil, fmt.Errorf("page templates: %w", err)
			}
			assignBucket(model, mode, false, page.Content)
			model.ExternalFiles = append(model.ExternalFiles, page.ExternalFiles...)
			if page.LastChangeDate.After(pageChanged) {
				pageChanged = page.LastChangeDate
			}
		}
	}

	if !generalChanged.IsZero() {
		model.GeneralCacheSuffix = cacheSuffix(generalChanged)
	}
	if !pageChanged.IsZero() {
		model.PageCacheSuffix = cacheSuffix(pageChanged)
	}

	sort.SliceStable(model.ExternalFiles, func(i, j int) bool {
		return model.ExternalFiles[i].Ordering < model.ExternalFiles[j].Ordering
	})

	return model, nil
}

// maxResourceLinkDepth bounds the linked-resource chain, matching the
// parent-chain bound in the store.
const maxResourceLinkDepth = 5

// groupByInsertMode partitions linked template ids by their insert mode,
// preserving link order within each bucket. Linked templates can link
// further templates of the same kind; the chain is followed to at most
// maxResourceLinkDepth levels, each id contributing once.
func (s *Service) groupByInsertMode(ctx context.Context, tmplType models.TemplateType, ids []int) (map[models.ResourceInsertMode][]int, error) {
	grouped := make(map[models.ResourceInsertMode][]int, len(insertModes))
	seen := make(map[int]bool, len(ids))

	pending := ids
	for depth := 0; len(pending) > 0 && depth < maxResourceLinkDepth; depth++ {
		linked, err := s.templates.GetTemplates(ctx, pending, false)
		if err != nil {
			return nil, fmt.Errorf("linked templates: %w", err)
		}

		pending = nil
		for _, tmpl := range linked {
			if seen[tmpl.ID] {
				continue
			}
			seen[tmpl.ID] = true
			grouped[tmpl.InsertMode] = append(grouped[tmpl.InsertMode], tmpl.ID)

			for _, next := range linkedResourceIDs(&tmpl, tmplType) {
				if !seen[next] {
					pending = append(pending, next)
				}
			}
		}
	}
	return grouped, nil
}

// linkedResourceIDs returns the ids a resource template links for the
// resource kind being assembled.
func linkedResourceIDs(tmpl *models.Template, tmplType models.TemplateType) []int {
	if tmplType == models.TemplateTypeJS {
		return tmpl.JavascriptTemplates
	}
	return tmpl.CSSTemplates
}

func assignBucket(model *models.PageResourceModel, mode models.ResourceInsertMode, general bool, content string) {
	switch mode {
	case models.InsertModeStandard:
		if general {
			model.GeneralStandard += content
		} else {
			model.PageStandard += content
		}
	case models.InsertModeInlineHead:
		if general {
			model.GeneralInlineHead += content
		} else {
			model.PageInlineHead += content
		}
	case models.InsertModeSyncFooter:
		if general {
			model.GeneralSyncFooter += content
		} else {
			model.PageSyncFooter += content
		}
	case models.InsertModeAsyncFooter:
		if general {
			model.GeneralAsyncFooter += content
		} else {
			model.PageAsyncFooter += content
		}
	}
}

// cacheSuffix turns a change date into a ?v= cache-busting value.
func cacheSuffix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// GetGlobalHeader resolves the default header for the request: the first
// default-header candidate whose URL regex matches wins, an empty regex
// matches every URL. Returns empty content when no candidate applies.
func (s *Service) GetGlobalHeader(ctx context.Context, rc *requestctx.Context) (string, *models.Template, error) {
	return s.globalHeaderFooter(ctx, rc, false)
}

// GetGlobalFooter resolves the default footer for the request; selection
// mirrors GetGlobalHeader.
func (s *Service) GetGlobalFooter(ctx context.Context, rc *requestctx.Context) (string, *models.Template, error) {
	return s.globalHeaderFooter(ctx, rc, true)
}

func (s *Service) globalHeaderFooter(ctx context.Context, rc *requestctx.Context, footer bool) (string, *models.Template, error) {
	candidates, err := s.store.GetDefaultHeaderFooterCandidates(ctx, footer)
	if err != nil {
		return "", nil, fmt.Errorf("header/footer candidates: %w", err)
	}

	for i := range candidates {
		tmpl := &candidates[i]
		if !headerFooterApplies(rc, tmpl.DefaultHeaderFooterRegex) {
			continue
		}

		content, err := s.templates.DoReplaces(ctx, rc, tmpl.OutputContent(), templates.DefaultReplaceOptions())
		if err != nil {
			return "", nil, fmt.Errorf("expand header/footer %d: %w", tmpl.ID, err)
		}
		return content, tmpl, nil
	}

	return "", nil, nil
}

func headerFooterApplies(rc *requestctx.Context, pattern string) bool {
	if pattern == "" {
		return true
	}
	if rc == nil || !rc.HasRequest() {
		return false
	}
	matched, err := regexp.MatchString(pattern, rc.FullURL())
	return err == nil && matched
}

// SetPageSeoData fills request-context SEO fields a component has not
// already set: the template name becomes the page title and the request
// URL without its query string becomes the self-referencing canonical.
func (s *Service) SetPageSeoData(rc *requestctx.Context, pageTemplate *models.Template) {
	if rc == nil {
		return
	}

	if rc.Seo.PageTitle == "" && pageTemplate != nil {
		rc.Seo.PageTitle = pageTemplate.Name
	}
	if rc.Seo.Canonical == "" && rc.HasRequest() {
		rc.Seo.Canonical = rc.Scheme + "://" + rc.Host + rc.Path
	}
}

// SetOpenGraphData merges Open Graph properties into the request context.
// Existing keys set by components stay untouched.
func (s *Service) SetOpenGraphData(rc *requestctx.Context, values map[string]string) {
	if rc == nil || len(values) == 0 {
		return
	}
	if rc.OpenGraph == nil {
		rc.OpenGraph = make(map[string]string, len(values))
	}
	for key, value := range values {
		if _, ok := rc.OpenGraph[key]; !ok {
			rc.OpenGraph[key] = value
		}
	}
}

// buildMetaData snapshots the request context's SEO state into the view
// model.
func buildMetaData(rc *requestctx.Context) models.PageMetaDataModel {
	if rc == nil {
		return models.PageMetaDataModel{}
	}

	meta := models.PageMetaDataModel{
		PageTitle:        rc.Seo.PageTitle,
		SeoText:          rc.Seo.SeoText,
		MetaDescription:  rc.Seo.MetaDescription,
		Canonical:        rc.Seo.Canonical,
		Robots:           rc.Seo.Robots,
		PreviousPageLink: rc.Seo.PreviousPageLink,
		NextPageLink:     rc.Seo.NextPageLink,
	}
	if len(rc.OpenGraph) > 0 {
		meta.OpenGraph = make(map[string]string, len(rc.OpenGraph))
		for key, value := range rc.OpenGraph {
			meta.OpenGraph[key] = value
		}
	}
	return meta
}
