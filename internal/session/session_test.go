// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package session

import (
	"context"
	"testing"

	"geekscore/internal/requestctx"
)

func TestStoreNilClient(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	if _, err := s.Create(ctx, nil, &Data{UserID: 1}); err == nil {
		t.Error("Create with nil client should fail")
	}

	data, err := s.Get(ctx, "whatever")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if data != nil {
		t.Errorf("Get with nil client: got %+v, want nil", data)
	}

	if err := s.Destroy(ctx, "whatever"); err != nil {
		t.Errorf("Destroy with nil client: %v", err)
	}
}

func TestResolveUserAnonymous(t *testing.T) {
	s := NewStore(nil)
	rc := requestctx.New()
	rc.Cookies[CookieName] = "deadbeef"

	s.ResolveUser(context.Background(), rc)

	if rc.User.LoggedIn {
		t.Error("nil-client resolve should leave visitor anonymous")
	}
	if rc.User.ID != 0 {
		t.Errorf("user id: got %d, want 0", rc.User.ID)
	}
}

func TestGenerateID(t *testing.T) {
	a, err := generateID()
	if err != nil {
		t.Fatalf("generateID: %v", err)
	}
	b, err := generateID()
	if err != nil {
		t.Fatalf("generateID: %v", err)
	}

	if len(a) != idLength*2 {
		t.Errorf("length: got %d, want %d", len(a), idLength*2)
	}
	if a == b {
		t.Error("two generated ids are identical")
	}
}
