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
	"errors"
	"fmt"
	"sync"
)

// Scope owns resources that are released together.
//
// Cleanup functions run in reverse registration order after all child
// scopes are disposed. Dispose is idempotent.
//
// Thread Safety: safe for concurrent use.
type Scope struct {
	name string

	mu       sync.Mutex
	cleanups []func() error
	children []*Scope
	disposed bool
}

// NewScope creates a root scope.
func NewScope(name string) *Scope {
	return &Scope{name: name}
}

// Name returns the scope name.
func (s *Scope) Name() string {
	return s.name
}

// OnDispose registers fn to run when the scope is disposed.
//
// Errors: ErrDisposed if the scope is already disposed; fn is not run.
func (s *Scope) OnDispose(fn func() error) error {
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return fmt.Errorf("scope %q: %w", s.name, ErrDisposed)
	}
	s.cleanups = append(s.cleanups, fn)
	return nil
}

// Child creates a scope disposed together with s.
func (s *Scope) Child(name string) (*Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, fmt.Errorf("scope %q: %w", s.name, ErrDisposed)
	}
	child := NewScope(s.name + "/" + name)
	s.children = append(s.children, child)
	return child, nil
}

// Disposed reports whether Dispose has been called.
func (s *Scope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose releases children then cleanups. All cleanups run even when
// some fail; their errors are joined.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	children := s.children
	cleanups := s.cleanups
	s.children = nil
	s.cleanups = nil
	s.mu.Unlock()

	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
