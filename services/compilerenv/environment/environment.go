// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package environment is the shared compiler environment and the builder
// that configures it.
//
// An Environment owns a disposal Scope, an Application holding the
// file-type and encoding registries, and an append-only classpath of
// located libraries. It is configured once by a Builder, frozen, and from
// then on only read.
package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/webdemo/pkg/logging"
	"github.com/AleutianAI/webdemo/services/compilerenv/locator"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrDuplicateRegistration indicates grammars were registered twice on
	// one environment, or an extension was registered twice. It signals a
	// programming error.
	ErrDuplicateRegistration = errors.New("duplicate grammar registration")

	// ErrFrozen indicates a mutation of a frozen environment.
	ErrFrozen = errors.New("environment is frozen")

	// ErrDisposed indicates use of a disposed environment or scope.
	ErrDisposed = errors.New("environment is disposed")

	// ErrNilEnvironment indicates a nil *Environment argument.
	ErrNilEnvironment = errors.New("environment must not be nil")

	// ErrUnknownFileType indicates no grammar is registered for a file.
	ErrUnknownFileType = errors.New("no grammar registered for file type")
)

// =============================================================================
// Application
// =============================================================================

// Application holds the registries other subsystems look up.
type Application struct {
	fileTypes *FileTypeRegistry
	encodings *EncodingRegistry
}

// FileTypes returns the file-type registry.
func (a *Application) FileTypes() *FileTypeRegistry { return a.fileTypes }

// Encodings returns the encoding registry.
func (a *Application) Encodings() *EncodingRegistry { return a.encodings }

// =============================================================================
// Environment
// =============================================================================

// Environment is the shared compiler environment.
//
// Thread Safety: safe for concurrent use. Mutation happens only through a
// Builder before Freeze.
type Environment struct {
	id      uuid.UUID
	created time.Time
	scope   *Scope
	app     *Application

	mu                 sync.RWMutex
	classpath          []locator.LibraryReference
	grammarsRegistered bool
	frozen             bool
	disposed           bool
}

// ID returns the environment's unique identifier.
func (e *Environment) ID() string { return e.id.String() }

// CreatedAt returns the construction time.
func (e *Environment) CreatedAt() time.Time { return e.created }

// Scope returns the root disposal scope.
func (e *Environment) Scope() *Scope { return e.scope }

// Application returns the registry holder.
func (e *Environment) Application() *Application { return e.app }

// Classpath returns a copy of the attached libraries, in attach order.
func (e *Environment) Classpath() []locator.LibraryReference {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]locator.LibraryReference(nil), e.classpath...)
}

// GrammarsRegistered reports whether RegisterGrammars has succeeded.
func (e *Environment) GrammarsRegistered() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grammarsRegistered
}

// Freeze makes the environment read-only. Idempotent.
func (e *Environment) Freeze() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frozen = true
}

// Frozen reports whether Freeze has been called.
func (e *Environment) Frozen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frozen
}

// Disposed reports whether the environment's scope has been disposed.
func (e *Environment) Disposed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disposed
}

// Dispose releases the environment through its scope.
func (e *Environment) Dispose() error {
	return e.scope.Dispose()
}

// mutable returns the reason e cannot be changed, or nil. Caller holds mu.
func (e *Environment) mutable() error {
	switch {
	case e.disposed:
		return ErrDisposed
	case e.frozen:
		return ErrFrozen
	}
	return nil
}

// =============================================================================
// Builder
// =============================================================================

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Encoding is the default source encoding. Defaults to "utf-8".
	Encoding string
	// EncodingOverrides maps extensions to encodings.
	EncodingOverrides map[string]string
	Logger            *logging.Logger
}

// Builder creates and configures environments.
type Builder struct {
	encoding  string
	overrides map[string]string
	logger    *logging.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(opts BuilderOptions) *Builder {
	b := &Builder{
		encoding:  opts.Encoding,
		overrides: opts.EncodingOverrides,
		logger:    opts.Logger,
	}
	if b.encoding == "" {
		b.encoding = "utf-8"
	}
	if b.logger == nil {
		b.logger = logging.Discard()
	}
	return b
}

// New creates an empty environment with a fresh scope.
//
// Errors: nil ctx, or an unknown encoding in the options.
func (b *Builder) New(ctx context.Context) (*Environment, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	encodings, err := NewEncodingRegistry(b.encoding, b.overrides)
	if err != nil {
		return nil, fmt.Errorf("create environment: %w", err)
	}

	env := &Environment{
		id:      uuid.New(),
		created: time.Now(),
		scope:   NewScope("compiler-environment"),
		app: &Application{
			fileTypes: newFileTypeRegistry(),
			encodings: encodings,
		},
	}
	_ = env.scope.OnDispose(func() error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.disposed = true
		env.classpath = nil
		return nil
	})

	b.logger.Debug("compiler environment created", "environment_id", env.ID())
	return env, nil
}

// AttachLibrary appends ref to env's classpath. Existing entries are never
// removed or reordered; attaching a path already present is a no-op.
//
// Errors: ErrNilEnvironment, ErrFrozen, ErrDisposed, or an empty path.
func (b *Builder) AttachLibrary(env *Environment, ref locator.LibraryReference) error {
	if env == nil {
		return ErrNilEnvironment
	}
	if ref.Path == "" {
		return fmt.Errorf("attach library: empty path")
	}

	env.mu.Lock()
	defer env.mu.Unlock()
	if err := env.mutable(); err != nil {
		return fmt.Errorf("attach %s: %w", ref.Path, err)
	}
	for _, existing := range env.classpath {
		if existing.Path == ref.Path {
			return nil
		}
	}
	env.classpath = append(env.classpath, ref)
	b.logger.Debug("library attached",
		"environment_id", env.ID(), "path", ref.Path, "kind", ref.Kind.String())
	return nil
}

// RegisterGrammars registers mappings with env's file-type registry.
//
// It may succeed at most once per environment. A second call, or a
// mapping whose extension is already registered, fails with
// ErrDuplicateRegistration and registers nothing.
//
// Errors: ErrNilEnvironment, ErrDuplicateRegistration, ErrFrozen,
// ErrDisposed, or an invalid mapping.
func (b *Builder) RegisterGrammars(env *Environment, mappings []Mapping) error {
	if env == nil {
		return ErrNilEnvironment
	}

	env.mu.Lock()
	defer env.mu.Unlock()
	if env.grammarsRegistered {
		return fmt.Errorf("register grammars on %s: %w", env.ID(), ErrDuplicateRegistration)
	}
	if err := env.mutable(); err != nil {
		return fmt.Errorf("register grammars: %w", err)
	}
	if err := env.app.fileTypes.register(mappings); err != nil {
		return fmt.Errorf("register grammars: %w", err)
	}
	env.grammarsRegistered = true
	b.logger.Debug("grammars registered",
		"environment_id", env.ID(), "extensions", env.app.fileTypes.Extensions())
	return nil
}
