// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package replacements resolves {variable} placeholders in template markup
// from data rows, request values, cookies, and the visitor session, and
// evaluates inline [if]...[endif] logic snippets.
//
// All patterns here run on Go's RE2 engine, which guarantees linear-time
// matching, so pathological input cannot stall a render the way a
// backtracking engine could. Expansion loops additionally check the
// request context deadline between passes.
package replacements

import (
	"context"
	"regexp"
	"strings"

	"geekscore/internal/requestctx"
)

// Options controls which replacement sources and passes apply.
type Options struct {
	// HandleRequest resolves variables from query string, cookies, and
	// session values. Disabled for content rendered outside a request.
	HandleRequest bool

	// EvaluateLogicSnippets runs the [if]...[endif] pass after
	// substitution.
	EvaluateLogicSnippets bool

	// RemoveUnknownVariables strips placeholders that no source resolved.
	RemoveUnknownVariables bool

	// ForQuery marks output destined for SQL text: resolved values are
	// quoted-escaped so user input cannot break out of string literals.
	ForQuery bool

	// HandleVariableDefaults honors the {name~default} fallback syntax.
	HandleVariableDefaults bool
}

// Replacer is the string-replacement collaborator of the template
// services. The default implementation resolves variables from the
// explicit request context; tests swap in fakes.
type Replacer interface {
	DoAllReplacements(ctx context.Context, rc *requestctx.Context, input string, row map[string]string, opts Options) (string, error)
	EvaluateTemplate(input string) string
}

// variablePattern matches {name} and {name~default} placeholders.
var variablePattern = regexp.MustCompile(`\{([a-zA-Z0-9_.:-]+?)(~([^{}]*))?\}`)

// DefaultReplacer resolves placeholders against a request context and an
// optional data row.
type DefaultReplacer struct{}

// NewDefaultReplacer returns the standard Replacer implementation.
func NewDefaultReplacer() *DefaultReplacer {
	return &DefaultReplacer{}
}

// DoAllReplacements substitutes every {variable} in the input. Resolution
// order per variable: data row, pre-load data, request query string,
// cookies, built-in request values. Unresolved placeholders survive
// unless RemoveUnknownVariables is set.
func (r *DefaultReplacer) DoAllReplacements(ctx context.Context, rc *requestctx.Context, input string, row map[string]string, opts Options) (string, error) {
	if input == "" || !strings.Contains(input, "{") {
		return input, nil
	}
	if err := ctx.Err(); err != nil {
		return input, err
	}

	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		name := groups[1]
		fallback := groups[3]
		hasFallback := opts.HandleVariableDefaults && groups[2] != ""

		value, found := r.resolve(rc, name, row, opts)
		if !found {
			if hasFallback {
				value = fallback
				found = true
			} else if opts.RemoveUnknownVariables {
				return ""
			} else {
				return match
			}
		}

		if opts.ForQuery {
			value = escapeForQuery(value)
		}
		return value
	})

	return result, nil
}

// resolve looks a variable up in every configured source.
func (r *DefaultReplacer) resolve(rc *requestctx.Context, name string, row map[string]string, opts Options) (string, bool) {
	if row != nil {
		if v, ok := row[name]; ok {
			return v, true
		}
	}

	if rc == nil {
		return "", false
	}

	if v, ok := rc.PreLoadData[name]; ok {
		return v, true
	}

	if !opts.HandleRequest {
		return "", false
	}

	if rc.Query.Has(name) {
		return rc.Query.Get(name), true
	}
	if v, ok := rc.Cookies[name]; ok {
		return v, true
	}

	switch strings.ToLower(name) {
	case "host", "hostname":
		return rc.Host, rc.Host != ""
	case "path":
		return rc.Path, rc.Path != ""
	case "url":
		return rc.FullURL(), rc.HasRequest()
	case "querystring":
		return rc.RawQuery, true
	case "languagecode", "language_code":
		return rc.LanguageCode, rc.LanguageCode != ""
	}

	return "", false
}

// escapeForQuery doubles single quotes so a resolved value cannot break
// out of a SQL string literal. Identifiers are never substituted this way.
func escapeForQuery(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
