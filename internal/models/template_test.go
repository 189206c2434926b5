package models

import "testing"

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		input string
		want  Environment
	}{
		{"development", EnvironmentDevelopment},
		{"dev", EnvironmentDevelopment},
		{"Test", EnvironmentTest},
		{"acceptance", EnvironmentAcceptance},
		{"live", EnvironmentLive},
		{"production", EnvironmentLive},
		{"  LIVE  ", EnvironmentLive},
		{"", EnvironmentLive},
		{"garbage", EnvironmentLive},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseEnvironment(tt.input); got != tt.want {
				t.Errorf("ParseEnvironment(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvironmentIncludes(t *testing.T) {
	mask := EnvironmentTest | EnvironmentLive

	if !mask.Includes(EnvironmentTest) {
		t.Error("mask should include test")
	}
	if !mask.Includes(EnvironmentLive) {
		t.Error("mask should include live")
	}
	if mask.Includes(EnvironmentAcceptance) {
		t.Error("mask should not include acceptance")
	}
}

func TestOutputContent(t *testing.T) {
	tmpl := &Template{Content: "full", MinifiedContent: "min"}
	if got := tmpl.OutputContent(); got != "min" {
		t.Errorf("OutputContent() = %q, want minified content", got)
	}

	tmpl.MinifiedContent = ""
	if got := tmpl.OutputContent(); got != "full" {
		t.Errorf("OutputContent() = %q, want full content", got)
	}
}

// TestClone verifies mutations on a clone never reach the original, which
// is what the object cache relies on.
func TestClone(t *testing.T) {
	original := &Template{
		ID:           1,
		Name:         "home",
		Content:      "<p>hello</p>",
		CSSTemplates: []int{10, 11},
		LoginRoles:   []string{"editor"},
	}

	clone := original.Clone()
	clone.Content = "changed"
	clone.CSSTemplates[0] = 99
	clone.LoginRoles[0] = "admin"

	if original.Content != "<p>hello</p>" {
		t.Error("clone mutation leaked into original content")
	}
	if original.CSSTemplates[0] != 10 {
		t.Error("clone mutation leaked into original css templates")
	}
	if original.LoginRoles[0] != "editor" {
		t.Error("clone mutation leaked into original roles")
	}
}

func TestStripForLogin(t *testing.T) {
	tmpl := &Template{
		ID:               5,
		Name:             "members",
		Type:             TemplateTypeHTML,
		Content:          "secret",
		MinifiedContent:  "secret-min",
		PreLoadQuery:     "SELECT 1",
		LoginRequired:    true,
		LoginRoles:       []string{"member"},
		LoginRedirectURL: "/login",
	}

	stripped := tmpl.StripForLogin()

	if stripped.Content != "" || stripped.MinifiedContent != "" {
		t.Error("stripped template still carries content")
	}
	if stripped.PreLoadQuery != "" {
		t.Error("stripped template still carries its pre-load query")
	}
	if stripped.ID != 5 || stripped.Name != "members" {
		t.Error("stripped template lost its identity")
	}
	if !stripped.LoginRequired || stripped.LoginRedirectURL != "/login" {
		t.Error("stripped template lost its login metadata")
	}
}

func TestContentExtension(t *testing.T) {
	tests := []struct {
		tmplType TemplateType
		want     string
	}{
		{TemplateTypeCSS, ".css"},
		{TemplateTypeSCSS, ".css"},
		{TemplateTypeJS, ".js"},
		{TemplateTypeQuery, ".sql"},
		{TemplateTypeRoutine, ".sql"},
		{TemplateTypeHTML, ".html"},
		{TemplateTypeUnknown, ".html"},
	}

	for _, tt := range tests {
		if got := tt.tmplType.ContentExtension(); got != tt.want {
			t.Errorf("ContentExtension(%s) = %q, want %q", tt.tmplType, got, tt.want)
		}
	}
}
