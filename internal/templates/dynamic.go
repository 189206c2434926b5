// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package templates

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"geekscore/internal/models"
	"geekscore/internal/requestctx"
	"geekscore/internal/store"
)

// dynamicContentTimeout bounds one full dynamic-content pass over a page.
const dynamicContentTimeout = 3 * time.Minute

var (
	// dynamicContentPattern matches the placeholder elements components
	// render into. Attribute order inside the tag is free.
	dynamicContentPattern = regexp.MustCompile(`<div[^>]*class="dynamic-content"[^>]*>\s*(?:<h2>[^<]*</h2>\s*)?</div>`)

	contentIDAttr = regexp.MustCompile(`content-id="(\d+)"`)
	extraDataAttr = regexp.MustCompile(`extra-data="([^"]*)"`)
)

// ReplaceAllDynamicContent substitutes every dynamic-content placeholder
// in the input with its rendered component output. Each component renders
// in isolation: a failing or panicking renderer yields an inline error
// fragment for that placeholder only and the rest of the page completes.
// Overrides, keyed by content id, take precedence over stored data.
func (s *TemplatesService) ReplaceAllDynamicContent(ctx context.Context, rc *requestctx.Context, input string, overrides map[int]models.DynamicContent) (string, error) {
	if !strings.Contains(input, `class="dynamic-content"`) {
		return input, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dynamicContentTimeout)
	defer cancel()

	matches := dynamicContentPattern.FindAllStringIndex(input, -1)
	if len(matches) == 0 {
		return input, nil
	}

	result := input
	for i := len(matches) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("dynamic content pass: %w", err)
		}

		placeholder := input[matches[i][0]:matches[i][1]]
		replacement, ok := s.renderPlaceholder(ctx, rc, placeholder, overrides)
		if !ok {
			continue
		}
		result = result[:matches[i][0]] + replacement + result[matches[i][1]:]
	}

	return result, nil
}

// renderPlaceholder resolves and renders one placeholder. The second
// return value is false when the placeholder should stay in the output
// untouched (unparsable id).
func (s *TemplatesService) renderPlaceholder(ctx context.Context, rc *requestctx.Context, placeholder string, overrides map[int]models.DynamicContent) (string, bool) {
	idMatch := contentIDAttr.FindStringSubmatch(placeholder)
	if idMatch == nil {
		slog.WarnContext(ctx, "dynamic content placeholder without content-id",
			slog.String("placeholder", placeholder))
		return "", false
	}
	contentID, err := strconv.Atoi(idMatch[1])
	if err != nil || contentID <= 0 {
		slog.WarnContext(ctx, "invalid dynamic content id",
			slog.String("raw", idMatch[1]))
		return "", false
	}

	extraData := parseExtraData(placeholder)

	var content *models.DynamicContent
	if override, ok := overrides[contentID]; ok {
		content = &override
	} else {
		content, err = s.provider.GetDynamicContentData(ctx, contentID)
		if err != nil {
			slog.ErrorContext(ctx, "load dynamic content",
				slog.Int("content_id", contentID),
				slog.Any("error", err))
			return s.errorFragment(contentID, err), true
		}
	}

	if content == nil || content.ID == 0 {
		slog.DebugContext(ctx, "dynamic content not found",
			slog.Int("content_id", contentID))
		return fmt.Sprintf("<!-- Dynamic content %d not found -->", contentID), true
	}

	rendered, err := s.GenerateDynamicContentHTML(ctx, rc, content, extraData)
	if err != nil {
		return s.errorFragment(contentID, err), true
	}

	return fmt.Sprintf("<!-- Start dynamic content %d -->%s<!-- End dynamic content %d -->",
		contentID, rendered, contentID), true
}

// parseExtraData decodes the extra-data attribute of a placeholder into a
// key=value map. Values arrive HTML-escaped inside the attribute.
func parseExtraData(placeholder string) map[string]string {
	m := extraDataAttr.FindStringSubmatch(placeholder)
	if m == nil || m[1] == "" {
		return nil
	}

	raw := html.UnescapeString(m[1])
	extraData := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			continue
		}
		extraData[key] = value
	}
	if len(extraData) == 0 {
		return nil
	}
	return extraData
}

// GetDynamicContentData loads one dynamic-content instance by id.
func (s *TemplatesService) GetDynamicContentData(ctx context.Context, id int) (*models.DynamicContent, error) {
	return s.dynamic.Get(ctx, id)
}

// GenerateDynamicContentHTML dispatches one dynamic-content instance to
// its registered component renderer. Panics inside renderers are caught
// and surfaced as errors so one broken component cannot take down the
// request. Render timings go to the database when logging is enabled for
// the component.
func (s *TemplatesService) GenerateDynamicContentHTML(ctx context.Context, rc *requestctx.Context, content *models.DynamicContent, extraData map[string]string) (output string, err error) {
	started := time.Now()
	logRender := s.settings != nil && s.settings.RenderLoggingEnabled(ctx, content.ID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("component %q panicked: %v", content.Name, r)
			slog.ErrorContext(ctx, "recovered component panic",
				slog.Int("content_id", content.ID),
				slog.String("component", content.Name),
				slog.Any("panic", r))
		}
		if logRender && s.renderLog != nil {
			s.logRender(ctx, rc, content, started, err)
		}
	}()

	renderer, err := s.registry.Get(content.Name)
	if err != nil {
		return "", err
	}

	output, err = renderer.Render(ctx, rc, content, extraData)
	if err != nil {
		return "", fmt.Errorf("render component %q: %w", content.Name, err)
	}
	return output, nil
}

// logRender writes one best-effort render log entry.
func (s *TemplatesService) logRender(ctx context.Context, rc *requestctx.Context, content *models.DynamicContent, started time.Time, renderErr error) {
	entry := store.RenderLogEntry{
		ContentID:   content.ID,
		Version:     content.Version,
		Environment: s.environment.String(),
		StartedAt:   started,
		EndedAt:     time.Now(),
	}
	if rc != nil {
		entry.URL = rc.FullURL()
		entry.UserID = rc.User.ID
		entry.LanguageCode = rc.LanguageCode
	}
	if renderErr != nil {
		entry.Error = renderErr.Error()
	}
	s.renderLog.Log(ctx, entry)
}

// errorFragment renders the inline replacement for a failed component.
// Error details only appear on development and test so production markup
// never leaks internals.
func (s *TemplatesService) errorFragment(contentID int, err error) string {
	if s.isDevOrTest() {
		return fmt.Sprintf("<!-- Error rendering dynamic content %d: %s -->",
			contentID, html.EscapeString(err.Error()))
	}
	return fmt.Sprintf("<!-- Error rendering dynamic content %d -->", contentID)
}
