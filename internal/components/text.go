// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package components

import (
	"context"
	"encoding/json"
	"fmt"
	"html"

	"geekscore/internal/models"
	"geekscore/internal/requestctx"
)

// textSettings is the configuration payload of the built-in text component.
type textSettings struct {
	Text string `json:"text"`
	Tag  string `json:"tag"`
}

// Text is the simplest built-in component: it emits its configured text
// wrapped in an HTML tag. It doubles as the reference implementation for
// application-defined components.
func Text() Renderer {
	return RendererFunc(func(_ context.Context, _ *requestctx.Context, content *models.DynamicContent, extraData map[string]string) (string, error) {
		var settings textSettings
		if err := json.Unmarshal([]byte(content.SettingsJSON), &settings); err != nil {
			return "", fmt.Errorf("text component %d settings: %w", content.ID, err)
		}

		text := settings.Text
		if override, ok := extraData["text"]; ok {
			text = override
		}

		tag := settings.Tag
		if tag == "" {
			tag = "p"
		}

		return fmt.Sprintf("<%s>%s</%s>", tag, html.EscapeString(text), tag), nil
	})
}
