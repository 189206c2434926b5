// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package imaging expands [image[...]] markers in template markup into
// responsive <picture> elements. Pixel work happens elsewhere: the emitted
// URLs carry width/height/resize-mode segments for the image proxy, plus
// WebP and fallback sources at 1x and 2x densities per breakpoint.
package imaging

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"geekscore/internal/store"
)

// imagePattern matches one [image[...]] marker. RE2 keeps this linear in
// input size.
var imagePattern = regexp.MustCompile(`\[image\[([^]]*)\]\]`)

// DefaultURLTemplate is the image-proxy URL shape used when none is
// configured. Tokens: <item_id> <type> <width> <height> <number>
// <resizemode> <filetype> <filename>.
const DefaultURLTemplate = "/image/wiser/<item_id>/<type>/<resizemode>/<width>x<height>/<number>/<filename>"

// marker is one parsed [image[...]] occurrence.
type marker struct {
	itemID       int64
	fileName     string
	propertyName string
	extension    string
	index        int
	resizeMode   string
	altText      string
	fileType     string
	breakpoints  []breakpoint
}

// breakpoint is one viewport(WxH) set.
type breakpoint struct {
	viewport int
	width    int
	height   int
}

// Engine expands image markers using stored file metadata.
type Engine struct {
	files       *store.ItemFileStore
	urlTemplate string
	baseURL     string
}

// New creates an imaging engine. urlTemplate may be empty to use the
// default; baseURL (a CDN or S3 public URL) may be empty for same-origin
// image serving.
func New(files *store.ItemFileStore, urlTemplate, baseURL string) *Engine {
	if urlTemplate == "" {
		urlTemplate = DefaultURLTemplate
	}
	return &Engine{
		files:       files,
		urlTemplate: urlTemplate,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// HandleImageTemplating replaces every [image[...]] marker in the input.
// A marker that cannot be parsed or whose image row is missing degrades to
// a fallback filename string; the rest of the page renders normally.
func (e *Engine) HandleImageTemplating(ctx context.Context, input string) (string, error) {
	if !strings.Contains(input, "[image[") {
		return input, nil
	}
	if err := ctx.Err(); err != nil {
		return input, err
	}

	var firstErr error
	result := imagePattern.ReplaceAllStringFunc(input, func(match string) string {
		body := imagePattern.FindStringSubmatch(match)[1]
		m, err := parseMarker(body)
		if err != nil {
			slog.Warn("invalid image marker skipped", "marker", body, "error", err)
			return ""
		}

		element, err := e.buildPicture(ctx, m)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ""
		}
		return element
	})

	return result, firstErr
}

// parseMarker splits "params:set:set..." into its parameter list and
// breakpoint sets. Parameters, in order: item-id-or-filename, property
// name, fallback extension, 1-based image index, resize mode, alt text,
// file type. Only the first is required.
func parseMarker(body string) (*marker, error) {
	paramPart, setPart, found := strings.Cut(body, ":")
	if !found || setPart == "" {
		return nil, fmt.Errorf("marker has no breakpoint sets")
	}

	params := strings.Split(paramPart, ",")
	if params[0] == "" {
		return nil, fmt.Errorf("marker has no item id or filename")
	}

	m := &marker{index: 1, resizeMode: "normal", extension: "jpg", fileType: "item"}
	if id, err := strconv.ParseInt(params[0], 10, 64); err == nil {
		m.itemID = id
	} else {
		m.fileName = params[0]
	}

	get := func(i int) string {
		if i < len(params) {
			return strings.TrimSpace(params[i])
		}
		return ""
	}
	if v := get(1); v != "" {
		m.propertyName = v
	}
	if v := get(2); v != "" {
		m.extension = strings.TrimPrefix(v, ".")
	}
	if v := get(3); v != "" {
		if idx, err := strconv.Atoi(v); err == nil && idx > 0 {
			m.index = idx
		}
	}
	if v := get(4); v != "" {
		m.resizeMode = v
	}
	m.altText = get(5)
	if v := get(6); v != "" {
		m.fileType = v
	}

	for _, set := range strings.Split(setPart, ":") {
		bp, err := parseBreakpoint(set)
		if err != nil {
			return nil, err
		}
		m.breakpoints = append(m.breakpoints, bp)
	}

	return m, nil
}

// breakpointPattern matches viewport(WxH), e.g. 1024(640x400).
var breakpointPattern = regexp.MustCompile(`^(\d+)\((\d+)x(\d+)\)$`)

func parseBreakpoint(set string) (breakpoint, error) {
	groups := breakpointPattern.FindStringSubmatch(strings.TrimSpace(set))
	if groups == nil {
		return breakpoint{}, fmt.Errorf("malformed breakpoint set %q", set)
	}
	viewport, _ := strconv.Atoi(groups[1])
	width, _ := strconv.Atoi(groups[2])
	height, _ := strconv.Atoi(groups[3])
	return breakpoint{viewport: viewport, width: width, height: height}, nil
}

// buildPicture renders the <picture> element for one marker.
func (e *Engine) buildPicture(ctx context.Context, m *marker) (string, error) {
	files, err := e.files.FindImages(ctx, m.itemID, m.fileName, m.propertyName)
	if err != nil {
		return "", fmt.Errorf("image marker lookup: %w", err)
	}

	// Missing index degrades to a bare fallback filename so the page
	// keeps a sensible placeholder instead of breaking.
	if len(files) < m.index {
		return e.fallbackFileName(m), nil
	}
	file := files[m.index-1]

	alt := m.altText
	if alt == "" {
		alt = file.Title
	}

	var b strings.Builder
	b.WriteString("<picture>")
	for _, bp := range m.breakpoints {
		media := fmt.Sprintf(`media="(min-width: %dpx)"`, bp.viewport)
		webpName := replaceExtension(file.FileName, "webp")
		fallbackName := replaceExtension(file.FileName, m.extension)

		fmt.Fprintf(&b, `<source %s srcset="%s 1x, %s 2x" type="image/webp">`,
			media,
			e.imageURL(file, m, bp.width, bp.height, webpName),
			e.imageURL(file, m, bp.width*2, bp.height*2, webpName))
		fmt.Fprintf(&b, `<source %s srcset="%s 1x, %s 2x" type="image/%s">`,
			media,
			e.imageURL(file, m, bp.width, bp.height, fallbackName),
			e.imageURL(file, m, bp.width*2, bp.height*2, fallbackName),
			m.extension)
	}

	last := m.breakpoints[len(m.breakpoints)-1]
	fmt.Fprintf(&b, `<img src="%s" alt="%s">`,
		e.imageURL(file, m, last.width, last.height, replaceExtension(file.FileName, m.extension)),
		html.EscapeString(alt))
	b.WriteString("</picture>")

	return b.String(), nil
}

// imageURL fills the URL template tokens for one concrete rendition.
// Optional path segments collapse when their value is empty or zero.
func (e *Engine) imageURL(file store.ItemFile, m *marker, width, height int, fileName string) string {
	url := e.urlTemplate
	url = replaceToken(url, "<item_id>", nonZero(file.ItemID))
	url = replaceToken(url, "<type>", m.propertyName)
	url = replaceToken(url, "<width>", strconv.Itoa(width))
	url = replaceToken(url, "<height>", strconv.Itoa(height))
	url = replaceToken(url, "<number>", strconv.Itoa(m.index))
	url = replaceToken(url, "<resizemode>", m.resizeMode)
	url = replaceToken(url, "<filetype>", m.fileType)
	url = replaceToken(url, "<filename>", fileName)

	// Collapse segments whose token resolved empty.
	for strings.Contains(url, "//") {
		url = strings.ReplaceAll(url, "//", "/")
	}

	return e.baseURL + url
}

func replaceToken(url, token, value string) string {
	return strings.ReplaceAll(url, token, value)
}

func nonZero(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

// replaceExtension swaps a filename's extension.
func replaceExtension(fileName, ext string) string {
	if idx := strings.LastIndex(fileName, "."); idx >= 0 {
		fileName = fileName[:idx]
	}
	return fileName + "." + ext
}

// fallbackFileName is what a missing image degrades to.
func (e *Engine) fallbackFileName(m *marker) string {
	name := m.fileName
	if name == "" {
		name = fmt.Sprintf("image-%d", m.itemID)
	}
	return fmt.Sprintf("%s-%d.%s", strings.TrimSuffix(name, "."+m.extension), m.index, m.extension)
}
