// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package components maps dynamic-content component names to their
// renderer implementations. The registry is populated once at startup;
// rendering resolves names through a plain map lookup, never reflection.
package components

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"geekscore/internal/models"
	"geekscore/internal/requestctx"
)

// Renderer turns one dynamic-content instance plus request-scoped extra
// data into an HTML fragment. Implementations live in the consuming
// application; this library only dispatches to them.
type Renderer interface {
	Render(ctx context.Context, rc *requestctx.Context, content *models.DynamicContent, extraData map[string]string) (string, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, rc *requestctx.Context, content *models.DynamicContent, extraData map[string]string) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, rc *requestctx.Context, content *models.DynamicContent, extraData map[string]string) (string, error) {
	return f(ctx, rc, content, extraData)
}

// Registry holds the component-name → renderer table.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]Renderer)}
}

// Register adds a renderer under the given component name, replacing any
// previous registration. Names are matched case-sensitively.
func (r *Registry) Register(name string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[name] = renderer
}

// Get resolves a component name. Unknown names return an error so the
// caller can emit an isolated error fragment instead of failing the page.
func (r *Registry) Get(name string) (Renderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[name]
	if !ok {
		return nil, fmt.Errorf("no renderer registered for component %q", name)
	}
	return renderer, nil
}

// Names returns the registered component names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.renderers))
	for name := range r.renderers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
