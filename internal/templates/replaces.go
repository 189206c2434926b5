// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package templates

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"geekscore/internal/models"
	"geekscore/internal/requestctx"
	"geekscore/internal/store"
)

// maxIncludePasses bounds inclusion expansion. Markers still present after
// the final pass stay in the output verbatim.
const maxIncludePasses = 10

var (
	// bracketIncludePattern matches <[name]> and <[parent\name]>, where
	// name may carry {variable} parts resolved before lookup.
	bracketIncludePattern = regexp.MustCompile(`<\[([^\[\]>]+)\]>`)

	// wordIncludePattern matches [include[name]] and
	// [include[name?key=value&amp;key2=value2]].
	wordIncludePattern = regexp.MustCompile(`\[include\[([^\]?]+)(?:\?([^\]]*))?\]\]`)
)

// DoReplaces runs the full replacement pipeline over the input in a fixed
// order: pre-load data and plain variables, inclusions, image templating,
// dynamic content, and finally logic snippets. Each stage operates on the
// output of the previous one.
func (s *TemplatesService) DoReplaces(ctx context.Context, rc *requestctx.Context, input string, opts ReplaceOptions) (string, error) {
	if input == "" {
		return input, nil
	}

	result, err := s.replacer.DoAllReplacements(ctx, rc, input, nil, opts.Options)
	if err != nil {
		return input, fmt.Errorf("variable replacements: %w", err)
	}

	if opts.HandleIncludes {
		result, err = s.provider.HandleIncludes(ctx, rc, result, opts)
		if err != nil {
			return input, fmt.Errorf("handle includes: %w", err)
		}
	}

	if opts.HandleImageTemplating {
		result, err = s.provider.HandleImageTemplating(ctx, result)
		if err != nil {
			return input, fmt.Errorf("image templating: %w", err)
		}
	}

	if opts.HandleDynamicContent && !opts.ForQuery {
		result, err = s.provider.ReplaceAllDynamicContent(ctx, rc, result, nil)
		if err != nil {
			return input, fmt.Errorf("dynamic content: %w", err)
		}
	}

	if opts.EvaluateLogicSnippets {
		result = s.replacer.EvaluateTemplate(result)
	}

	return result, nil
}

// HandleIncludes expands <[name]> and [include[name]] markers by splicing
// in the content of the referenced templates. Expansion repeats until no
// markers remain or the pass bound is reached, so nested inclusions
// resolve without unbounded recursion on cyclic references.
func (s *TemplatesService) HandleIncludes(ctx context.Context, rc *requestctx.Context, input string, opts ReplaceOptions) (string, error) {
	result := input

	for pass := 0; pass < maxIncludePasses; pass++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !strings.Contains(result, "<[") && !strings.Contains(result, "[include[") {
			return result, nil
		}

		expanded, err := s.expandIncludesOnce(ctx, rc, result, opts)
		if err != nil {
			return result, err
		}
		if expanded == result {
			return result, nil
		}
		result = expanded
	}

	if strings.Contains(result, "<[") || strings.Contains(result, "[include[") {
		slog.WarnContext(ctx, "inclusion markers remain after maximum expansion passes",
			slog.Int("passes", maxIncludePasses))
	}

	return result, nil
}

// expandIncludesOnce performs one expansion pass over both marker
// syntaxes. Matches are spliced back to front so indexes stay valid.
func (s *TemplatesService) expandIncludesOnce(ctx context.Context, rc *requestctx.Context, input string, opts ReplaceOptions) (string, error) {
	result, err := s.expandMarkers(ctx, rc, input, bracketIncludePattern, opts)
	if err != nil {
		return input, err
	}
	return s.expandMarkers(ctx, rc, result, wordIncludePattern, opts)
}

func (s *TemplatesService) expandMarkers(ctx context.Context, rc *requestctx.Context, input string, pattern *regexp.Regexp, opts ReplaceOptions) (string, error) {
	matches := pattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input, nil
	}

	result := input
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		name := input[m[2]:m[3]]

		var rawParams string
		if len(m) >= 6 && m[4] >= 0 {
			rawParams = input[m[4]:m[5]]
		}

		content, err := s.resolveInclude(ctx, rc, name, rawParams, opts)
		if err != nil {
			return input, err
		}

		result = result[:m[0]] + content + result[m[1]:]
	}

	return result, nil
}

// resolveInclude looks up one included template and prepares its content
// for splicing: parameter values first, then regular variable replacement.
// Unknown templates resolve to an empty string rather than failing the
// whole render.
func (s *TemplatesService) resolveInclude(ctx context.Context, rc *requestctx.Context, name, rawParams string, opts ReplaceOptions) (string, error) {
	if strings.Contains(name, "{") {
		resolved, err := s.replacer.DoAllReplacements(ctx, rc, name, nil, opts.Options)
		if err != nil {
			return "", fmt.Errorf("resolve include name %q: %w", name, err)
		}
		name = resolved
	}

	lookup := store.Lookup{
		Name:           name,
		Type:           opts.TemplateType,
		IncludeContent: true,
	}
	if parent, child, found := strings.Cut(name, `\`); found {
		lookup.ParentName = parent
		lookup.Name = child
	}

	tmpl, err := s.provider.GetTemplate(ctx, rc, lookup, false)
	if err != nil {
		return "", fmt.Errorf("include %q: %w", name, err)
	}
	if tmpl.ID == 0 {
		slog.DebugContext(ctx, "included template not found",
			slog.String("name", name))
		return "", nil
	}

	content := tmpl.OutputContent()

	if rawParams != "" {
		params, err := parseIncludeParams(rawParams)
		if err != nil {
			slog.WarnContext(ctx, "unparsable include parameters",
				slog.String("name", name),
				slog.String("params", rawParams))
		} else {
			content, err = s.replacer.DoAllReplacements(ctx, rc, content, params, opts.Options)
			if err != nil {
				return "", fmt.Errorf("include %q parameters: %w", name, err)
			}
			return content, nil
		}
	}

	content, err = s.replacer.DoAllReplacements(ctx, rc, content, nil, opts.Options)
	if err != nil {
		return "", fmt.Errorf("include %q replacements: %w", name, err)
	}
	return content, nil
}

// parseIncludeParams decodes the ?key=value&key2=value2 parameter block of
// an include marker. The block arrives HTML-escaped inside markup.
func parseIncludeParams(raw string) (map[string]string, error) {
	raw = strings.ReplaceAll(raw, "&amp;", "&")
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, err
	}

	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}
	return params, nil
}

// HandleImageTemplating expands [image[...]] markers into responsive
// <picture> elements.
func (s *TemplatesService) HandleImageTemplating(ctx context.Context, input string) (string, error) {
	if s.imaging == nil || !strings.Contains(input, "[image[") {
		return input, nil
	}
	return s.imaging.HandleImageTemplating(ctx, input)
}

// isDevOrTest reports whether component error details may be shown in
// rendered output.
func (s *TemplatesService) isDevOrTest() bool {
	return s.environment == models.EnvironmentDevelopment || s.environment == models.EnvironmentTest
}
