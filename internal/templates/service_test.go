package templates

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"geekscore/internal/components"
	"geekscore/internal/models"
	"geekscore/internal/replacements"
	"geekscore/internal/requestctx"
	"geekscore/internal/store"
)

// stubProvider answers template and dynamic-content lookups from maps so
// the pipeline logic tests run without a database. All other Service
// methods delegate to the embedded real service.
type stubProvider struct {
	Service
	svc     *TemplatesService
	byName  map[string]*models.Template
	byID    map[int]*models.Template
	dynamic map[int]*models.DynamicContent
	lookups int
}

func (p *stubProvider) GetTemplate(ctx context.Context, rc *requestctx.Context, lookup store.Lookup, skipPermissions bool) (*models.Template, error) {
	p.lookups++

	var tmpl *models.Template
	if lookup.ID > 0 {
		tmpl = p.byID[lookup.ID]
	} else {
		key := strings.ToLower(lookup.Name)
		if lookup.ParentName != "" {
			key = strings.ToLower(lookup.ParentName) + `\` + key
		}
		tmpl = p.byName[key]
	}
	if tmpl == nil {
		return &models.Template{}, nil
	}

	tmpl = tmpl.Clone()
	if !skipPermissions {
		tmpl = p.svc.CheckTemplatePermissions(ctx, rc, tmpl)
	}
	return tmpl, nil
}

func (p *stubProvider) GetDynamicContentData(_ context.Context, id int) (*models.DynamicContent, error) {
	if dc, ok := p.dynamic[id]; ok {
		return dc.Clone(), nil
	}
	return &models.DynamicContent{}, nil
}

func newTestService(registry *components.Registry) (*TemplatesService, *stubProvider) {
	if registry == nil {
		registry = components.NewRegistry()
	}
	svc := NewService(Deps{
		Replacer:    replacements.NewDefaultReplacer(),
		Registry:    registry,
		Environment: models.EnvironmentDevelopment,
		Branch:      "main",
	})
	stub := &stubProvider{
		Service: svc,
		svc:     svc,
		byName:  map[string]*models.Template{},
		byID:    map[int]*models.Template{},
		dynamic: map[int]*models.DynamicContent{},
	}
	svc.SetProvider(stub)
	return svc, stub
}

func webRequest() *requestctx.Context {
	rc := requestctx.New()
	rc.Scheme = "https"
	rc.Host = "example.com"
	rc.Path = "/"
	return rc
}

func TestHandleIncludes_Basic(t *testing.T) {
	svc, stub := newTestService(nil)
	stub.byName["header"] = &models.Template{ID: 1, Name: "header", Content: "<header>site</header>"}

	got, err := svc.HandleIncludes(context.Background(), webRequest(),
		"<[header]><main>body</main>", DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("HandleIncludes: %v", err)
	}
	if got != "<header>site</header><main>body</main>" {
		t.Errorf("got %q", got)
	}
}

func TestHandleIncludes_BothSyntaxes(t *testing.T) {
	svc, stub := newTestService(nil)
	stub.byName["menu"] = &models.Template{ID: 2, Name: "menu", Content: "[menu]"}
	stub.byName["footer"] = &models.Template{ID: 3, Name: "footer", Content: "[footer]"}

	got, err := svc.HandleIncludes(context.Background(), webRequest(),
		"<[menu]> and [include[footer]]", DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("HandleIncludes: %v", err)
	}
	if got != "[menu] and [footer]" {
		t.Errorf("got %q", got)
	}
}

func TestHandleIncludes_ParentPath(t *testing.T) {
	svc, stub := newTestService(nil)
	stub.byName[`layout\header`] = &models.Template{ID: 4, Name: "header", ParentName: "layout", Content: "scoped"}

	got, err := svc.HandleIncludes(context.Background(), webRequest(),
		`<[layout\header]>`, DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("HandleIncludes: %v", err)
	}
	if got != "scoped" {
		t.Errorf("got %q", got)
	}
}

// TestHandleIncludes_Parameters covers the parameterized include syntax,
// including the HTML-escaped ampersand between parameters.
func TestHandleIncludes_Parameters(t *testing.T) {
	svc, stub := newTestService(nil)
	stub.byName["greeting"] = &models.Template{ID: 5, Name: "greeting", Content: "Hello {name}, you chose {color}."}

	got, err := svc.HandleIncludes(context.Background(), webRequest(),
		"[include[greeting?name=Ada&amp;color=red]]", DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("HandleIncludes: %v", err)
	}
	if got != "Hello Ada, you chose red." {
		t.Errorf("got %q", got)
	}
}

func TestHandleIncludes_VariableName(t *testing.T) {
	svc, stub := newTestService(nil)
	stub.byName["main-menu"] = &models.Template{ID: 6, Name: "main-menu", Content: "menu!"}

	rc := webRequest()
	rc.Query.Set("section", "main")

	got, err := svc.HandleIncludes(context.Background(), rc,
		"<[{section}-menu]>", DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("HandleIncludes: %v", err)
	}
	if got != "menu!" {
		t.Errorf("got %q", got)
	}
}

func TestHandleIncludes_UnknownResolvesEmpty(t *testing.T) {
	svc, _ := newTestService(nil)

	got, err := svc.HandleIncludes(context.Background(), webRequest(),
		"a<[missing]>b", DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("HandleIncludes: %v", err)
	}
	if got != "ab" {
		t.Errorf("got %q", got)
	}
}

// TestHandleIncludes_NestedDepth verifies a ten-deep inclusion chain
// expands fully while a cyclic reference stops at the pass bound instead
// of recursing forever.
func TestHandleIncludes_NestedDepth(t *testing.T) {
	svc, stub := newTestService(nil)

	stub.byName["level10"] = &models.Template{ID: 20, Name: "level10", Content: "bottom"}
	for i := 1; i <= 9; i++ {
		name := "level" + strconv.Itoa(i)
		next := "level" + strconv.Itoa(i+1)
		stub.byName[name] = &models.Template{ID: 10 + i, Name: name, Content: "<[" + next + "]>"}
	}

	got, err := svc.HandleIncludes(context.Background(), webRequest(), "<[level1]>", DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("HandleIncludes: %v", err)
	}
	if got != "bottom" {
		t.Errorf("ten-deep chain got %q, want full expansion", got)
	}

	stub.byName["loop"] = &models.Template{ID: 30, Name: "loop", Content: "x<[loop]>"}
	got, err = svc.HandleIncludes(context.Background(), webRequest(), "<[loop]>", DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("HandleIncludes: %v", err)
	}
	if !strings.Contains(got, "<[loop]>") {
		t.Errorf("cyclic inclusion got %q, want surviving marker after pass bound", got)
	}
	if strings.Count(got, "x") != maxIncludePasses {
		t.Errorf("cyclic inclusion expanded %d times, want %d", strings.Count(got, "x"), maxIncludePasses)
	}
}

func TestCheckTemplatePermissions(t *testing.T) {
	svc, _ := newTestService(nil)
	protected := &models.Template{
		ID:            7,
		Name:          "members",
		Type:          models.TemplateTypeHTML,
		Content:       "secret",
		LoginRequired: true,
		LoginRoles:    []string{"member"},
	}

	tests := []struct {
		name     string
		rc       *requestctx.Context
		tmpl     *models.Template
		stripped bool
	}{
		{
			name:     "no login requirement passes",
			rc:       webRequest(),
			tmpl:     &models.Template{ID: 1, Type: models.TemplateTypeHTML, Content: "public"},
			stripped: false,
		},
		{
			name:     "no request context strips",
			rc:       nil,
			tmpl:     protected,
			stripped: true,
		},
		{
			name:     "anonymous visitor strips",
			rc:       webRequest(),
			tmpl:     protected,
			stripped: true,
		},
		{
			name: "missing role strips",
			rc: func() *requestctx.Context {
				rc := webRequest()
				rc.User = requestctx.User{ID: 3, Roles: []string{"viewer"}, LoggedIn: true}
				return rc
			}(),
			tmpl:     protected,
			stripped: true,
		},
		{
			name: "matching role passes",
			rc: func() *requestctx.Context {
				rc := webRequest()
				rc.User = requestctx.User{ID: 3, Roles: []string{"Member"}, LoggedIn: true}
				return rc
			}(),
			tmpl:     protected,
			stripped: false,
		},
		{
			name:     "css ignores login requirement",
			rc:       webRequest(),
			tmpl:     &models.Template{ID: 8, Type: models.TemplateTypeCSS, Content: "body{}", LoginRequired: true},
			stripped: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.CheckTemplatePermissions(context.Background(), tt.rc, tt.tmpl)
			if tt.stripped && got.Content != "" {
				t.Errorf("expected stripped content, got %q", got.Content)
			}
			if !tt.stripped && got.Content == "" {
				t.Error("expected content to survive")
			}
			if got.ID != tt.tmpl.ID {
				t.Errorf("identity lost: id %d, want %d", got.ID, tt.tmpl.ID)
			}
		})
	}
}

func TestReplaceAllDynamicContent_Isolation(t *testing.T) {
	registry := components.NewRegistry()
	registry.Register("text", components.Text())
	registry.Register("boom", components.RendererFunc(func(context.Context, *requestctx.Context, *models.DynamicContent, map[string]string) (string, error) {
		panic("component exploded")
	}))
	registry.Register("fail", components.RendererFunc(func(context.Context, *requestctx.Context, *models.DynamicContent, map[string]string) (string, error) {
		return "", errors.New("render failed")
	}))

	svc, stub := newTestService(registry)
	stub.dynamic[1] = &models.DynamicContent{ID: 1, Name: "text", SettingsJSON: `{"text":"works"}`}
	stub.dynamic[5] = &models.DynamicContent{ID: 5, Name: "boom", SettingsJSON: `{}`}
	stub.dynamic[6] = &models.DynamicContent{ID: 6, Name: "fail", SettingsJSON: `{}`}

	input := `<p>before</p>` +
		`<div class="dynamic-content" content-id="1"></div>` +
		`<div class="dynamic-content" content-id="5"></div>` +
		`<div class="dynamic-content" content-id="6"></div>` +
		`<p>after</p>`

	got, err := svc.ReplaceAllDynamicContent(context.Background(), webRequest(), input, nil)
	if err != nil {
		t.Fatalf("ReplaceAllDynamicContent: %v", err)
	}

	if !strings.Contains(got, "<!-- Start dynamic content 1 --><p>works</p><!-- End dynamic content 1 -->") {
		t.Errorf("healthy component missing from output: %q", got)
	}
	if !strings.Contains(got, "<!-- Error rendering dynamic content 5") {
		t.Errorf("panicking component not isolated: %q", got)
	}
	if !strings.Contains(got, "<!-- Error rendering dynamic content 6") {
		t.Errorf("failing component not isolated: %q", got)
	}
	if !strings.Contains(got, "<p>before</p>") || !strings.Contains(got, "<p>after</p>") {
		t.Errorf("surrounding markup damaged: %q", got)
	}
	// Development environment exposes the error message.
	if !strings.Contains(got, "component exploded") {
		t.Errorf("dev environment should surface panic message: %q", got)
	}
}

func TestReplaceAllDynamicContent_ErrorDetailsHiddenOnLive(t *testing.T) {
	registry := components.NewRegistry()
	registry.Register("fail", components.RendererFunc(func(context.Context, *requestctx.Context, *models.DynamicContent, map[string]string) (string, error) {
		return "", errors.New("internal detail")
	}))

	svc := NewService(Deps{
		Replacer:    replacements.NewDefaultReplacer(),
		Registry:    registry,
		Environment: models.EnvironmentLive,
		Branch:      "main",
	})
	stub := &stubProvider{Service: svc, svc: svc, dynamic: map[int]*models.DynamicContent{
		2: {ID: 2, Name: "fail", SettingsJSON: `{}`},
	}}
	svc.SetProvider(stub)

	got, err := svc.ReplaceAllDynamicContent(context.Background(), webRequest(),
		`<div class="dynamic-content" content-id="2"></div>`, nil)
	if err != nil {
		t.Fatalf("ReplaceAllDynamicContent: %v", err)
	}
	if !strings.Contains(got, "<!-- Error rendering dynamic content 2 -->") {
		t.Errorf("missing error fragment: %q", got)
	}
	if strings.Contains(got, "internal detail") {
		t.Errorf("live environment leaked error details: %q", got)
	}
}

func TestReplaceAllDynamicContent_ExtraDataAndOverrides(t *testing.T) {
	registry := components.NewRegistry()
	registry.Register("text", components.Text())

	svc, stub := newTestService(registry)
	stub.dynamic[3] = &models.DynamicContent{ID: 3, Name: "text", SettingsJSON: `{"text":"stored"}`}

	got, err := svc.ReplaceAllDynamicContent(context.Background(), webRequest(),
		`<div class="dynamic-content" content-id="3" extra-data="text=overridden"></div>`, nil)
	if err != nil {
		t.Fatalf("ReplaceAllDynamicContent: %v", err)
	}
	if !strings.Contains(got, "<p>overridden</p>") {
		t.Errorf("extra-data override missing: %q", got)
	}

	overrides := map[int]models.DynamicContent{
		3: {ID: 3, Name: "text", SettingsJSON: `{"text":"preview"}`},
	}
	got, err = svc.ReplaceAllDynamicContent(context.Background(), webRequest(),
		`<div class="dynamic-content" content-id="3"></div>`, overrides)
	if err != nil {
		t.Fatalf("ReplaceAllDynamicContent: %v", err)
	}
	if !strings.Contains(got, "<p>preview</p>") {
		t.Errorf("override content missing: %q", got)
	}
}

func TestReplaceAllDynamicContent_UnknownContent(t *testing.T) {
	svc, _ := newTestService(nil)

	got, err := svc.ReplaceAllDynamicContent(context.Background(), webRequest(),
		`<div class="dynamic-content" content-id="99"></div>`, nil)
	if err != nil {
		t.Fatalf("ReplaceAllDynamicContent: %v", err)
	}
	if !strings.Contains(got, "<!-- Dynamic content 99 not found -->") {
		t.Errorf("got %q", got)
	}
}

func TestDoReplaces_FullPipeline(t *testing.T) {
	registry := components.NewRegistry()
	registry.Register("text", components.Text())

	svc, stub := newTestService(registry)
	stub.byName["banner"] = &models.Template{ID: 1, Name: "banner", Content: "[if({color}=red)]RED[else]OTHER[endif]"}
	stub.dynamic[1] = &models.DynamicContent{ID: 1, Name: "text", SettingsJSON: `{"text":"dyn"}`}

	rc := webRequest()
	rc.Query.Set("color", "red")

	got, err := svc.DoReplaces(context.Background(), rc,
		`<[banner]> <div class="dynamic-content" content-id="1"></div>`, DefaultReplaceOptions())
	if err != nil {
		t.Fatalf("DoReplaces: %v", err)
	}
	if !strings.Contains(got, "RED") {
		t.Errorf("logic pass missing: %q", got)
	}
	if !strings.Contains(got, "<p>dyn</p>") {
		t.Errorf("dynamic content pass missing: %q", got)
	}
}

// TestDoReplaces_ForQuery verifies SQL-bound content never gets a
// dynamic-content pass and values are quote-escaped.
func TestDoReplaces_ForQuery(t *testing.T) {
	svc, _ := newTestService(nil)

	rc := webRequest()
	rc.Query.Set("name", "O'Brien")

	opts := QueryReplaceOptions()
	opts.HandleDynamicContent = true

	got, err := svc.DoReplaces(context.Background(), rc,
		`SELECT 1 WHERE name = '{name}' -- <div class="dynamic-content" content-id="1"></div>`, opts)
	if err != nil {
		t.Fatalf("DoReplaces: %v", err)
	}
	if !strings.Contains(got, "O''Brien") {
		t.Errorf("value not escaped for SQL: %q", got)
	}
	if !strings.Contains(got, `<div class="dynamic-content" content-id="1"></div>`) {
		t.Errorf("dynamic content pass must not run for query content: %q", got)
	}
}

// TestAggregateTemplates_ExternalAndCDNFiles verifies external files and
// CDN files both become page resources, ordering runs across the two
// lists, and duplicate ids contribute once.
func TestAggregateTemplates_ExternalAndCDNFiles(t *testing.T) {
	svc, _ := newTestService(nil)

	candidates := []models.Template{
		{
			ID: 1, Type: models.TemplateTypeCSS, InsertMode: models.InsertModeStandard,
			Content:       ".a{}",
			ExternalFiles: []string{"https://cdn.example.com/lib.css"},
			WiserCDNFiles: []string{"theme.css"},
		},
		{
			ID: 2, Type: models.TemplateTypeCSS, InsertMode: models.InsertModeInlineHead,
			Content:       ".b{}",
			WiserCDNFiles: []string{"print.css"},
		},
		{ID: 1, Type: models.TemplateTypeCSS, Content: "duplicate"},
	}

	resp, err := svc.aggregateTemplates(context.Background(), webRequest(), candidates)
	if err != nil {
		t.Fatalf("aggregateTemplates: %v", err)
	}

	if resp.Content != ".a{}.b{}" {
		t.Errorf("content = %q", resp.Content)
	}

	want := []struct {
		uri  string
		mode models.ResourceInsertMode
	}{
		{"https://cdn.example.com/lib.css", models.InsertModeStandard},
		{"/cdn/theme.css", models.InsertModeStandard},
		{"/cdn/print.css", models.InsertModeInlineHead},
	}
	if len(resp.ExternalFiles) != len(want) {
		t.Fatalf("external files = %v", resp.ExternalFiles)
	}
	for i, w := range want {
		got := resp.ExternalFiles[i]
		if got.URI != w.uri || got.InsertMode != w.mode {
			t.Errorf("file[%d] = %+v, want %s in mode %d", i, got, w.uri, w.mode)
		}
		if got.Ordering != i {
			t.Errorf("file[%d] ordering = %d, want %d", i, got.Ordering, i)
		}
	}
}
