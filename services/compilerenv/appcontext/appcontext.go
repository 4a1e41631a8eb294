// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package appcontext is the process-wide lookup of the compiler
// environment's registries, for code that is not handed the environment
// directly.
//
// # Lifecycle
//
// Set once, read many. The first Publish wins; publishing the same
// Application again is a no-op and publishing a different one fails with
// ErrAlreadyPublished. Readers never block: they load an atomic pointer.
//
// New code should take an *environment.Application (or the Initializer)
// as a dependency instead.
package appcontext

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/webdemo/services/compilerenv/environment"
)

var (
	// ErrAlreadyPublished indicates a second, different application.
	ErrAlreadyPublished = errors.New("a different application is already published")

	// ErrNilApplication indicates Publish(nil).
	ErrNilApplication = errors.New("application must not be nil")
)

type snapshot struct {
	app *environment.Application
}

// Context holds one published application.
//
// Thread Safety: safe for concurrent use.
type Context struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
}

// New returns an empty Context.
func New() *Context {
	return &Context{}
}

// Publish sets the application.
func (c *Context) Publish(app *environment.Application) error {
	if app == nil {
		return ErrNilApplication
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.current.Load(); s != nil {
		if s.app == app {
			return nil
		}
		return ErrAlreadyPublished
	}
	c.current.Store(&snapshot{app: app})
	return nil
}

// Current returns the published application.
func (c *Context) Current() (*environment.Application, bool) {
	s := c.current.Load()
	if s == nil {
		return nil, false
	}
	return s.app, true
}

// Default is the process-wide Context.
var Default = New()

// Publish sets the process-wide application.
func Publish(app *environment.Application) error {
	return Default.Publish(app)
}

// Current returns the process-wide application.
func Current() (*environment.Application, bool) {
	return Default.Current()
}

// FileTypes returns the process-wide file-type registry, or nil before
// publication.
func FileTypes() *environment.FileTypeRegistry {
	if app, ok := Default.Current(); ok {
		return app.FileTypes()
	}
	return nil
}

// Encodings returns the process-wide encoding registry, or nil before
// publication.
func Encodings() *environment.EncodingRegistry {
	if app, ok := Default.Current(); ok {
		return app.Encodings()
	}
	return nil
}
