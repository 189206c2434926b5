// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package templates

import (
	"context"
	"log/slog"

	"geekscore/internal/models"
	"geekscore/internal/requestctx"
)

// CheckTemplatePermissions enforces the template's login requirement.
// Templates without a login requirement pass through untouched. A
// protected template returns with its content stripped when no request is
// attached, the visitor is anonymous, or the visitor is missing the
// required roles; the caching and redirect attributes survive so callers
// can still route the visitor to the login page.
func (s *TemplatesService) CheckTemplatePermissions(ctx context.Context, rc *requestctx.Context, tmpl *models.Template) *models.Template {
	if tmpl == nil || !tmpl.LoginRequired {
		return tmpl
	}

	switch tmpl.Type {
	case models.TemplateTypeHTML, models.TemplateTypeQuery:
	default:
		return tmpl
	}

	if rc == nil || !rc.HasRequest() {
		return tmpl.StripForLogin()
	}

	if !rc.User.LoggedIn {
		slog.DebugContext(ctx, "template requires login",
			slog.Int("template_id", tmpl.ID))
		return tmpl.StripForLogin()
	}

	if !rc.HasRole(tmpl.LoginRoles) {
		slog.DebugContext(ctx, "visitor missing required role",
			slog.Int("template_id", tmpl.ID),
			slog.Int("user_id", rc.User.ID))
		return tmpl.StripForLogin()
	}

	return tmpl
}
