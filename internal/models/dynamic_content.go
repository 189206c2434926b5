// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// DynamicContent is a renderable component instance embedded in template
// markup via a placeholder element. The component name maps to a renderer
// implementation registered at startup; SettingsJSON carries its serialized
// configuration. Versioning follows the same environment rules as Template.
type DynamicContent struct {
	ID                   int         `json:"id"`
	Name                 string      `json:"name"`
	Title                string      `json:"title"`
	ComponentMode        string      `json:"component_mode"`
	SettingsJSON         string      `json:"settings_json"`
	Version              int         `json:"version"`
	PublishedEnvironment Environment `json:"published_environment"`
	LastChanged          time.Time   `json:"last_changed"`
}

// Clone returns a copy safe for callers to mutate.
func (d *DynamicContent) Clone() *DynamicContent {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}
