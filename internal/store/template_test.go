// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"geekscore/internal/models"
)

var testIDCounter atomic.Int32

// testTemplateID returns an id unlikely to collide with seeded data or
// with other test runs against the same database.
func testTemplateID() int {
	return 100_000_000 + int(time.Now().UnixNano()%10_000_000)*10 + int(testIDCounter.Add(1)%10)
}

// templateRow is the subset of wiser_template columns the tests care
// about; everything else takes the schema default.
type templateRow struct {
	ID         int
	ParentID   int
	Name       string
	Type       models.TemplateType
	Content    string
	Version    int
	Published  int
	Ordering   int
	InsertMode int
	LoadAlways bool
	IsHeader   bool
	IsFooter   bool
	HFRegex    string
}

func insertTemplate(t *testing.T, db *sql.DB, row templateRow) {
	t.Helper()
	if row.Type == "" {
		row.Type = models.TemplateTypeHTML
	}
	if row.Version == 0 {
		row.Version = 1
	}
	_, err := db.Exec(`
		INSERT INTO wiser_template
			(template_id, parent_id, template_name, template_type, template_data,
			 version, published_environment, ordering, insert_mode, load_always,
			 is_default_header, is_default_footer, default_header_footer_regex)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		row.ID, row.ParentID, row.Name, string(row.Type), row.Content,
		row.Version, row.Published, row.Ordering, row.InsertMode, row.LoadAlways,
		row.IsHeader, row.IsFooter, row.HFRegex,
	)
	if err != nil {
		t.Fatalf("insert template: %v", err)
	}
}

func TestTemplateStoreEnvironmentSelection(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id := testTemplateID()
	name := "Env Template " + uuid.NewString()[:8]
	t.Cleanup(func() { cleanTemplates(t, db, id) })

	// v1 published everywhere, v2 only on test, v3 unpublished.
	insertTemplate(t, db, templateRow{ID: id, Name: name, Content: "v1", Version: 1, Published: 15})
	insertTemplate(t, db, templateRow{ID: id, Name: name, Content: "v2", Version: 2, Published: int(models.EnvironmentTest)})
	insertTemplate(t, db, templateRow{ID: id, Name: name, Content: "v3", Version: 3, Published: 0})

	tests := []struct {
		env  models.Environment
		want string
	}{
		{models.EnvironmentLive, "v1"},
		{models.EnvironmentAcceptance, "v1"},
		{models.EnvironmentTest, "v2"},
		{models.EnvironmentDevelopment, "v3"},
	}

	for _, tc := range tests {
		s := NewTemplateStore(db, tc.env)
		tmpl, err := s.GetTemplate(ctx, Lookup{ID: id, IncludeContent: true})
		if err != nil {
			t.Fatalf("%s: GetTemplate: %v", tc.env, err)
		}
		if tmpl.Content != tc.want {
			t.Errorf("%s: content: got %q, want %q", tc.env, tmpl.Content, tc.want)
		}
	}
}

func TestTemplateStoreNameLookup(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewTemplateStore(db, models.EnvironmentDevelopment)

	parentID := testTemplateID()
	childID := testTemplateID()
	otherID := testTemplateID()
	suffix := uuid.NewString()[:8]
	parentName := "Parent Dir " + suffix
	childName := "Shared Name " + suffix
	t.Cleanup(func() { cleanTemplates(t, db, parentID, childID, otherID) })

	insertTemplate(t, db, templateRow{ID: parentID, Name: parentName, Content: "dir"})
	insertTemplate(t, db, templateRow{ID: childID, ParentID: parentID, Name: childName, Content: "scoped"})
	insertTemplate(t, db, templateRow{ID: otherID, Name: childName, Type: models.TemplateTypeCSS, Content: "body{}"})

	// Name lookups are case-insensitive.
	tmpl, err := s.GetTemplate(ctx, Lookup{Name: "shared name " + suffix, Type: models.TemplateTypeHTML, IncludeContent: true})
	if err != nil {
		t.Fatalf("GetTemplate by name: %v", err)
	}
	if tmpl.ID != childID {
		t.Errorf("id: got %d, want %d", tmpl.ID, childID)
	}
	if tmpl.ParentName != parentName {
		t.Errorf("parent name: got %q, want %q", tmpl.ParentName, parentName)
	}

	// The type filter separates same-named templates.
	tmpl, err = s.GetTemplate(ctx, Lookup{Name: childName, Type: models.TemplateTypeCSS, IncludeContent: true})
	if err != nil {
		t.Fatalf("GetTemplate css: %v", err)
	}
	if tmpl.ID != otherID {
		t.Errorf("css id: got %d, want %d", tmpl.ID, otherID)
	}
	if tmpl.Content != "body{}" {
		t.Errorf("css content: got %q", tmpl.Content)
	}

	// Parent scoping by name.
	tmpl, err = s.GetTemplate(ctx, Lookup{Name: childName, ParentName: parentName, IncludeContent: true})
	if err != nil {
		t.Fatalf("GetTemplate scoped: %v", err)
	}
	if tmpl.Content != "scoped" {
		t.Errorf("scoped content: got %q", tmpl.Content)
	}

	// A miss is a zero template, not an error.
	tmpl, err = s.GetTemplate(ctx, Lookup{Name: "no such template " + suffix})
	if err != nil {
		t.Fatalf("GetTemplate miss: %v", err)
	}
	if tmpl.ID != 0 {
		t.Errorf("miss id: got %d, want 0", tmpl.ID)
	}

	// No identifier at all is the caller's bug.
	if _, err := s.GetTemplate(ctx, Lookup{}); err != ErrNoIdentifier {
		t.Errorf("empty lookup: got %v, want ErrNoIdentifier", err)
	}
}

func TestTemplateStoreGetTemplateIDFromName(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewTemplateStore(db, models.EnvironmentDevelopment)

	id := testTemplateID()
	name := "Named Template " + uuid.NewString()[:8]
	t.Cleanup(func() { cleanTemplates(t, db, id) })

	insertTemplate(t, db, templateRow{ID: id, Name: name})

	got, err := s.GetTemplateIDFromName(ctx, name, models.TemplateTypeHTML)
	if err != nil {
		t.Fatalf("GetTemplateIDFromName: %v", err)
	}
	if got != id {
		t.Errorf("id: got %d, want %d", got, id)
	}

	got, err = s.GetTemplateIDFromName(ctx, "missing "+name, models.TemplateTypeHTML)
	if err != nil {
		t.Fatalf("GetTemplateIDFromName miss: %v", err)
	}
	if got != 0 {
		t.Errorf("miss: got %d, want 0", got)
	}
}

func TestTemplateStoreGetTemplates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewTemplateStore(db, models.EnvironmentLive)

	a, b, c := testTemplateID(), testTemplateID(), testTemplateID()
	suffix := uuid.NewString()[:8]
	t.Cleanup(func() { cleanTemplates(t, db, a, b, c) })

	insertTemplate(t, db, templateRow{ID: a, Name: "Bulk A " + suffix, Content: "a1", Version: 1, Published: 15})
	insertTemplate(t, db, templateRow{ID: a, Name: "Bulk A " + suffix, Content: "a2", Version: 2, Published: 15})
	insertTemplate(t, db, templateRow{ID: b, Name: "Bulk B " + suffix, Content: "b1", Version: 1, Published: 15})
	// c exists but is not published on live, so it drops out.
	insertTemplate(t, db, templateRow{ID: c, Name: "Bulk C " + suffix, Content: "c1", Version: 1, Published: int(models.EnvironmentTest)})

	got, err := s.GetTemplates(ctx, []int{b, c, a}, true)
	if err != nil {
		t.Fatalf("GetTemplates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	// Requested order is kept, newest eligible version wins.
	if got[0].ID != b || got[0].Content != "b1" {
		t.Errorf("first: got id %d content %q", got[0].ID, got[0].Content)
	}
	if got[1].ID != a || got[1].Content != "a2" {
		t.Errorf("second: got id %d content %q", got[1].ID, got[1].Content)
	}

	// Content is stripped when not requested.
	got, err = s.GetTemplates(ctx, []int{a}, false)
	if err != nil {
		t.Fatalf("GetTemplates stripped: %v", err)
	}
	if len(got) != 1 || got[0].Content != "" {
		t.Errorf("stripped content: got %q, want empty", got[0].Content)
	}
}

func TestTemplateStoreGeneralTemplates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewTemplateStore(db, models.EnvironmentDevelopment)

	a, b := testTemplateID(), testTemplateID()
	suffix := uuid.NewString()[:8]
	t.Cleanup(func() { cleanTemplates(t, db, a, b) })

	insertTemplate(t, db, templateRow{ID: a, Name: "General Second " + suffix, Type: models.TemplateTypeCSS, Content: ".a{}", LoadAlways: true, Ordering: 20})
	insertTemplate(t, db, templateRow{ID: b, Name: "General First " + suffix, Type: models.TemplateTypeCSS, Content: ".b{}", LoadAlways: true, Ordering: 10})

	got, err := s.GetGeneralTemplates(ctx, models.TemplateTypeCSS)
	if err != nil {
		t.Fatalf("GetGeneralTemplates: %v", err)
	}

	posA, posB := -1, -1
	for i, tmpl := range got {
		switch tmpl.ID {
		case a:
			posA = i
		case b:
			posB = i
		}
	}
	if posA < 0 || posB < 0 {
		t.Fatalf("expected both templates in result, got positions %d and %d", posA, posB)
	}
	if posB > posA {
		t.Errorf("ordering: template with ordering 10 came after ordering 20")
	}
}

func TestTemplateStoreQueryTemplate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id := testTemplateID()
	name := "Query Template " + uuid.NewString()[:8]
	t.Cleanup(func() {
		db.Exec("DELETE FROM wiser_query WHERE query_id = $1", id)
	})

	_, err := db.Exec(`
		INSERT INTO wiser_query (query_id, query_name, query_text, version, published_environment)
		VALUES ($1, $2, $3, 1, 15), ($1, $2, $4, 2, $5)`,
		id, name, "SELECT 1", "SELECT 2", int(models.EnvironmentTest))
	if err != nil {
		t.Fatalf("insert query template: %v", err)
	}

	live := NewTemplateStore(db, models.EnvironmentLive)
	tmpl, err := live.GetTemplate(ctx, Lookup{Name: name, Type: models.TemplateTypeQuery, IncludeContent: true})
	if err != nil {
		t.Fatalf("GetTemplate query: %v", err)
	}
	if tmpl.ID != id {
		t.Fatalf("id: got %d, want %d", tmpl.ID, id)
	}
	if tmpl.Content != "SELECT 1" {
		t.Errorf("live content: got %q, want %q", tmpl.Content, "SELECT 1")
	}

	dev := NewTemplateStore(db, models.EnvironmentDevelopment)
	tmpl, err = dev.GetTemplate(ctx, Lookup{Name: name, Type: models.TemplateTypeQuery, IncludeContent: true})
	if err != nil {
		t.Fatalf("GetTemplate query dev: %v", err)
	}
	if tmpl.Content != "SELECT 2" {
		t.Errorf("dev content: got %q, want %q", tmpl.Content, "SELECT 2")
	}
}

func TestTemplateStoreHeaderFooterCandidates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewTemplateStore(db, models.EnvironmentDevelopment)

	h, f := testTemplateID(), testTemplateID()
	suffix := uuid.NewString()[:8]
	t.Cleanup(func() { cleanTemplates(t, db, h, f) })

	insertTemplate(t, db, templateRow{ID: h, Name: "Header " + suffix, Content: "<header/>", IsHeader: true, HFRegex: "^/shop"})
	insertTemplate(t, db, templateRow{ID: f, Name: "Footer " + suffix, Content: "<footer/>", IsFooter: true})

	headers, err := s.GetDefaultHeaderFooterCandidates(ctx, false)
	if err != nil {
		t.Fatalf("header candidates: %v", err)
	}
	var found *models.Template
	for i := range headers {
		if headers[i].ID == h {
			found = &headers[i]
		}
		if headers[i].ID == f {
			t.Errorf("footer template returned among header candidates")
		}
	}
	if found == nil {
		t.Fatal("header template not returned")
	}
	if found.DefaultHeaderFooterRegex != "^/shop" {
		t.Errorf("regex: got %q, want %q", found.DefaultHeaderFooterRegex, "^/shop")
	}

	footers, err := s.GetDefaultHeaderFooterCandidates(ctx, true)
	if err != nil {
		t.Fatalf("footer candidates: %v", err)
	}
	ok := false
	for _, tmpl := range footers {
		if tmpl.ID == f {
			ok = true
		}
	}
	if !ok {
		t.Error("footer template not returned")
	}
}
