// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package templates

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/viccon/sturdyc"

	"geekscore/internal/models"
	"geekscore/internal/requestctx"
	"geekscore/internal/store"
)

const (
	templateCacheCapacity = 2000
	templateCacheShards   = 16
	bulkCacheCapacity     = 128
	cacheEvictionPercent  = 10
)

// CachedService decorates TemplatesService with coalesced in-memory
// caching of template and dynamic-content lookups. Concurrent requests
// for the same key share a single database fetch; entries expire on a
// fixed TTL, accepting short staleness over per-request invalidation.
// Every hit returns a clone, so callers can mutate results freely.
//
// Login permission checks run per request on top of the cached value and
// are never cached themselves.
type CachedService struct {
	*TemplatesService

	branch        string
	templateCache *sturdyc.Client[*models.Template]
	bulkCache     *sturdyc.Client[[]models.Template]
	dynamicCache  *sturdyc.Client[[]models.DynamicContent]
}

// NewCachedService wraps a TemplatesService in the caching decorator and
// routes the inner service's recursive lookups back through the cache.
func NewCachedService(inner *TemplatesService, ttl time.Duration) *CachedService {
	c := &CachedService{
		TemplatesService: inner,
		branch:           inner.branch,
		templateCache:    sturdyc.New[*models.Template](templateCacheCapacity, templateCacheShards, ttl, cacheEvictionPercent),
		bulkCache:        sturdyc.New[[]models.Template](bulkCacheCapacity, 1, ttl, cacheEvictionPercent),
		dynamicCache:     sturdyc.New[[]models.DynamicContent](bulkCacheCapacity, 1, ttl, cacheEvictionPercent),
	}
	inner.SetProvider(c)
	return c
}

// GetTemplate resolves through the cache. The stored value is always the
// unstripped template; permission stripping applies to the clone handed to
// the caller.
func (c *CachedService) GetTemplate(ctx context.Context, rc *requestctx.Context, lookup store.Lookup, skipPermissions bool) (*models.Template, error) {
	deviation := ""
	if rc != nil {
		deviation = rc.DeviationSuffix()
	}
	key := templateCacheKey(c.branch, lookup, deviation)
	tmpl, err := c.templateCache.GetOrFetch(ctx, key, func(ctx context.Context) (*models.Template, error) {
		return c.TemplatesService.GetTemplate(ctx, nil, lookup, true)
	})
	if err != nil {
		return nil, err
	}

	tmpl = tmpl.Clone()
	if !skipPermissions {
		tmpl = c.CheckTemplatePermissions(ctx, rc, tmpl)
	}
	return tmpl, nil
}

// GetTemplates resolves a bulk id lookup through the cache.
func (c *CachedService) GetTemplates(ctx context.Context, ids []int, includeContent bool) ([]models.Template, error) {
	key := bulkCacheKey(c.branch, ids, includeContent)
	templates, err := c.bulkCache.GetOrFetch(ctx, key, func(ctx context.Context) ([]models.Template, error) {
		return c.TemplatesService.GetTemplates(ctx, ids, includeContent)
	})
	if err != nil {
		return nil, err
	}
	return cloneTemplates(templates), nil
}

// GetGeneralTemplates caches the "load always" template set per type.
func (c *CachedService) GetGeneralTemplates(ctx context.Context, rc *requestctx.Context, tmplType models.TemplateType) ([]models.Template, error) {
	key := "generals:" + c.branch + ":" + string(tmplType)
	templates, err := c.bulkCache.GetOrFetch(ctx, key, func(ctx context.Context) ([]models.Template, error) {
		return c.TemplatesService.GetGeneralTemplates(ctx, rc, tmplType)
	})
	if err != nil {
		return nil, err
	}
	return cloneTemplates(templates), nil
}

// GetDynamicContentData resolves from the cached full dynamic-content set
// of the current environment, so a page with many components costs one
// query per TTL window instead of one per placeholder.
func (c *CachedService) GetDynamicContentData(ctx context.Context, id int) (*models.DynamicContent, error) {
	all, err := c.dynamicCache.GetOrFetch(ctx, "dynamiccontent:"+c.branch, func(ctx context.Context) ([]models.DynamicContent, error) {
		return c.dynamic.All(ctx)
	})
	if err != nil {
		return nil, err
	}

	for i := range all {
		if all[i].ID == id {
			return all[i].Clone(), nil
		}
	}

	// Freshly published content may postdate the cached set.
	return c.TemplatesService.GetDynamicContentData(ctx, id)
}

func templateCacheKey(branch string, lookup store.Lookup, deviation string) string {
	var b strings.Builder
	b.WriteString("template:")
	b.WriteString(branch)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(lookup.ID))
	b.WriteString(":")
	b.WriteString(strings.ToLower(lookup.Name))
	b.WriteString(":")
	b.WriteString(string(lookup.Type))
	b.WriteString(":")
	b.WriteString(strconv.Itoa(lookup.ParentID))
	b.WriteString(":")
	b.WriteString(strings.ToLower(lookup.ParentName))
	b.WriteString(":")
	b.WriteString(strconv.FormatBool(lookup.IncludeContent))
	b.WriteString(":")
	b.WriteString(deviation)
	return b.String()
}

func bulkCacheKey(branch string, ids []int, includeContent bool) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("templates:%s:%s:%t", branch, strings.Join(parts, ","), includeContent)
}

func cloneTemplates(templates []models.Template) []models.Template {
	clones := make([]models.Template, len(templates))
	for i := range templates {
		clones[i] = *templates[i].Clone()
	}
	return clones
}
