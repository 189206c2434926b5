// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package rendercache caches fully rendered template output, keyed by a
// deterministic file name derived from the template's cache settings and
// the request. Two backends exist: the local filesystem and Valkey.
package rendercache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"geekscore/internal/models"
	"geekscore/internal/requestctx"
	"geekscore/internal/slug"
)

// ErrInvalidCacheSettings is returned for malformed cache configuration,
// such as "cache using regex" enabled without a regex.
var ErrInvalidCacheSettings = errors.New("invalid template cache settings")

// FileName derives the output cache file name for a template under the
// current request. The empty string (with nil error) means this particular
// render must not be cached: caching disabled on the template, or a
// caching regex that does not match the request URL.
//
// The name is deterministic: identical template settings and identical
// request context (URL, cookies, language, user) always produce the same
// name, and changing any cache-dimension input changes it.
func FileName(rc *requestctx.Context, tmpl *models.Template, branch string) (string, error) {
	if tmpl.CachingMinutes == models.NoCache {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "template_%d", tmpl.ID)

	if tmpl.CacheUsingRegex {
		part, ok, err := regexKeyPart(rc, tmpl)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", nil
		}
		b.WriteString(part)
	} else if part := urlKeyPart(rc, tmpl); part != "" {
		b.WriteString(part)
	}

	b.WriteString(rc.DeviationSuffix())

	if rc.LanguageCode != "" {
		b.WriteString("_lang-")
		b.WriteString(rc.LanguageCode)
	}

	if tmpl.LoginRequired {
		if rc.User.LoggedIn {
			b.WriteString("_auth")
		} else {
			b.WriteString("_anon")
		}
	}
	if tmpl.CachePerUser && rc.User.LoggedIn {
		b.WriteString("_user-")
		b.WriteString(strconv.Itoa(rc.User.ID))
	}

	if branch != "" {
		b.WriteString("_branch-")
		b.WriteString(branch)
	}

	return slug.SanitizeFileName(b.String()) + tmpl.Type.ContentExtension(), nil
}

// regexKeyPart extracts named capture groups from the caching regex
// applied to the full request URL. A non-matching URL means the request
// is not cacheable under this template's settings.
func regexKeyPart(rc *requestctx.Context, tmpl *models.Template) (string, bool, error) {
	if tmpl.CachingRegex == "" {
		return "", false, fmt.Errorf("%w: template %d enables regex caching without a regex", ErrInvalidCacheSettings, tmpl.ID)
	}

	re, err := regexp.Compile(tmpl.CachingRegex)
	if err != nil {
		return "", false, fmt.Errorf("%w: template %d regex: %v", ErrInvalidCacheSettings, tmpl.ID, err)
	}

	match := re.FindStringSubmatch(rc.FullURL())
	if match == nil {
		return "", false, nil
	}

	var b strings.Builder
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		b.WriteString("_")
		b.WriteString(name)
		b.WriteString("-")
		b.WriteString(match[i])
	}
	return b.String(), true, nil
}

// urlKeyPart hashes the requested cache dimensions (host, path, query)
// into one short key segment.
func urlKeyPart(rc *requestctx.Context, tmpl *models.Template) string {
	var parts []string
	if tmpl.CachePerHostName {
		parts = append(parts, rc.Host)
	}
	if tmpl.CachePerURL {
		parts = append(parts, rc.Path)
	}
	if tmpl.CachePerQueryString {
		parts = append(parts, rc.RawQuery)
	}
	if len(parts) == 0 {
		return ""
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return "_url-" + hex.EncodeToString(sum[:])[:20]
}

// Duration converts a template's CachingMinutes into a concrete TTL,
// substituting the configured default for zero. NoCache yields zero.
func Duration(tmpl *models.Template, defaultMinutes int) time.Duration {
	switch {
	case tmpl.CachingMinutes == models.NoCache:
		return 0
	case tmpl.CachingMinutes == 0:
		return time.Duration(defaultMinutes) * time.Minute
	default:
		return time.Duration(tmpl.CachingMinutes) * time.Minute
	}
}
