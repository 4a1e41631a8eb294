// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package environment

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileTypeRegistry maps file extensions to grammars.
//
// Thread Safety: safe for concurrent use.
type FileTypeRegistry struct {
	mu    sync.RWMutex
	byExt map[string]Grammar
}

func newFileTypeRegistry() *FileTypeRegistry {
	return &FileTypeRegistry{byExt: make(map[string]Grammar)}
}

// register adds every mapping or none. Extensions are case-insensitive.
func (r *FileTypeRegistry) register(mappings []Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[string]Grammar, len(mappings))
	for _, m := range mappings {
		ext := normalizeExt(m.Extension)
		if ext == "" || ext == "." {
			return fmt.Errorf("invalid extension %q", m.Extension)
		}
		if m.Grammar.Language == nil {
			return fmt.Errorf("extension %s: grammar %q has no language", ext, m.Grammar.Name)
		}
		if _, ok := r.byExt[ext]; ok {
			return fmt.Errorf("extension %s: %w", ext, ErrDuplicateRegistration)
		}
		if _, ok := pending[ext]; ok {
			return fmt.Errorf("extension %s listed twice: %w", ext, ErrDuplicateRegistration)
		}
		pending[ext] = m.Grammar
	}
	for ext, g := range pending {
		r.byExt[ext] = g
	}
	return nil
}

// Lookup returns the grammar for a file name or bare extension.
func (r *FileTypeRegistry) Lookup(nameOrExt string) (Grammar, bool) {
	// filepath.Ext(".kt") is ".kt", so bare extensions work too.
	ext := normalizeExt(filepath.Ext(nameOrExt))
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byExt[ext]
	return g, ok
}

// Extensions returns the registered extensions, sorted.
func (r *FileTypeRegistry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered extensions.
func (r *FileTypeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byExt)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimSpace(ext))
}
