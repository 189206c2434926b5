// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// TemplateResponse aggregates the output of several templates of one type:
// concatenated content, merged external resource lists, and the newest
// change date across all contributors. The change date feeds cache-busting
// query parameters on generated <script>/<link> URLs.
type TemplateResponse struct {
	Content        string         `json:"content"`
	ExternalFiles  []PageResource `json:"external_files"`
	LastChangeDate time.Time      `json:"last_change_date"`
}

// PageResource is a single externally hosted file referenced by a page.
type PageResource struct {
	URI        string             `json:"uri"`
	InsertMode ResourceInsertMode `json:"insert_mode"`
	Ordering   int                `json:"ordering"`
}

// PageViewModel is the assembled result handed to the hosting application
// for final response composition. CSS and JS are split into four insert
// buckets each; the body carries the fully expanded page HTML.
type PageViewModel struct {
	CSS  PageResourceModel `json:"css"`
	JS   PageResourceModel `json:"javascript"`
	Body string            `json:"body"`

	MetaData PageMetaDataModel `json:"meta_data"`
}

// PageResourceModel groups one resource kind (CSS or JS) by insert mode.
type PageResourceModel struct {
	GeneralStandard    string `json:"general_standard"`
	GeneralInlineHead  string `json:"general_inline_head"`
	GeneralSyncFooter  string `json:"general_sync_footer"`
	GeneralAsyncFooter string `json:"general_async_footer"`

	PageStandard    string `json:"page_standard"`
	PageInlineHead  string `json:"page_inline_head"`
	PageSyncFooter  string `json:"page_sync_footer"`
	PageAsyncFooter string `json:"page_async_footer"`

	ExternalFiles []PageResource `json:"external_files"`

	// GeneralCacheSuffix and PageCacheSuffix are ?v= cache-busting values
	// derived from the newest contributing template change date.
	GeneralCacheSuffix string `json:"general_cache_suffix"`
	PageCacheSuffix    string `json:"page_cache_suffix"`
}

// PageMetaDataModel carries SEO and Open Graph values for the page head.
// Component-set values always win over computed defaults.
type PageMetaDataModel struct {
	PageTitle        string            `json:"page_title"`
	GlobalPageTitle  string            `json:"global_page_title"`
	SeoText          string            `json:"seo_text"`
	MetaDescription  string            `json:"meta_description"`
	Canonical        string            `json:"canonical"`
	Robots           string            `json:"robots"`
	PreviousPageLink string            `json:"previous_page_link"`
	NextPageLink     string            `json:"next_page_link"`
	OpenGraph        map[string]string `json:"open_graph"`
}
