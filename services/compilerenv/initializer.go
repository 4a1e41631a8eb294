// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compilerenv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/webdemo/pkg/logging"
	"github.com/AleutianAI/webdemo/services/compilerenv/appcontext"
	"github.com/AleutianAI/webdemo/services/compilerenv/environment"
	"github.com/AleutianAI/webdemo/services/compilerenv/locator"
	"github.com/AleutianAI/webdemo/services/compilerenv/settings"
)

const bootstrapKey = "bootstrap"

// Options configures an Initializer.
type Options struct {
	// Settings is required.
	Settings *settings.Settings

	// AppContext receives the registries. Defaults to appcontext.Default.
	AppContext *appcontext.Context

	// Mappings are the grammars registered on the environment. Defaults
	// to environment.DefaultMappings().
	Mappings []environment.Mapping

	// Discovery hooks passed to the locator. Zero values use the process
	// environment; see locator.Options.
	Getenv     func(string) string
	LookPath   func(string) (string, error)
	KnownRoots []string

	Logger *logging.Logger
}

// Initializer owns the process's shared compiler environment.
//
// # Description
//
// EnsureInitialized runs the bootstrap at most once successfully. A
// failed attempt leaves nothing behind: its environment is disposed and
// the install root and runtime library it wrote to the settings are
// restored. A later call (for example after the settings change) starts
// from scratch. Once an environment is stored it is never replaced.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent first calls share one in-flight
// attempt through a singleflight.Group; later calls read an atomic
// pointer and never block.
type Initializer struct {
	settings   *settings.Settings
	appctx     *appcontext.Context
	mappings   []environment.Mapping
	getenv     func(string) string
	lookPath   func(string) (string, error)
	knownRoots []string
	logger     *logging.Logger

	flight singleflight.Group

	// mu orders the final store of a bootstrap against Close.
	mu       sync.Mutex
	env      atomic.Pointer[environment.Environment]
	ready    atomic.Pointer[Outcome]
	last     atomic.Pointer[Outcome]
	attempts atomic.Int64
	closed   atomic.Bool
}

// New creates an Initializer. No discovery happens until
// EnsureInitialized.
func New(opts Options) (*Initializer, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("compilerenv: settings must not be nil")
	}
	i := &Initializer{
		settings:   opts.Settings,
		appctx:     opts.AppContext,
		mappings:   opts.Mappings,
		getenv:     opts.Getenv,
		lookPath:   opts.LookPath,
		knownRoots: opts.KnownRoots,
		logger:     opts.Logger,
	}
	if i.appctx == nil {
		i.appctx = appcontext.Default
	}
	if i.mappings == nil {
		i.mappings = environment.DefaultMappings()
	}
	if i.logger == nil {
		i.logger = logging.Discard()
	}
	i.logger = i.logger.With("component", "compilerenv")
	return i, nil
}

// EnsureInitialized makes sure the shared environment exists.
//
// # Description
//
// If the environment already exists, the outcome of the successful
// attempt is returned with Cached set and nothing else happens.
// Otherwise one bootstrap attempt runs:
//
//  1. Create an environment with a fresh scope.
//  2. Find the standard-library archive. Missing: dispose, fail with
//     ReasonMissingRequiredArtifact.
//  3. Attach it, then look for the runtime library. Missing: warn and
//     continue. Found: attach it.
//  4. Register grammars. Failure fails the attempt.
//  5. Freeze, publish the registries, store the environment and write
//     the runtime library location to the settings.
//
// A failure at any step restores the settings' install root and runtime
// library to their values before the attempt.
//
// Diagnostics are written to the logger before the outcome is returned.
//
// # Inputs
//
//   - ctx: Used for tracing. Cancelling it does not abort an attempt
//     other callers may be waiting on.
//
// # Outputs
//
//   - *Outcome: never nil; the caller owns it.
func (i *Initializer) EnsureInitialized(ctx context.Context) *Outcome {
	if ctx == nil {
		return &Outcome{Status: StatusFailed, Reason: ReasonConfiguration, Err: ErrNilContext}
	}
	if i.closed.Load() {
		return &Outcome{Status: StatusFailed, Reason: ReasonClosed, Err: ErrClosed}
	}
	if out := i.ready.Load(); out != nil {
		return cached(out)
	}

	v, _, _ := i.flight.Do(bootstrapKey, func() (any, error) {
		if out := i.ready.Load(); out != nil {
			return cached(out), nil
		}
		return i.bootstrap(context.WithoutCancel(ctx)), nil
	})
	return v.(*Outcome).clone()
}

func cached(out *Outcome) *Outcome {
	c := out.clone()
	c.Cached = true
	c.Duration = 0
	return c
}

// bootstrap performs one attempt. Only called inside the singleflight.
func (i *Initializer) bootstrap(ctx context.Context) *Outcome {
	attempt := i.attempts.Add(1)
	start := time.Now()
	ctx, span := startBootstrapSpan(ctx, attempt)
	logger := i.logger.With("attempt", attempt)

	out := &Outcome{Attempt: attempt, StartedAt: start}
	var env *environment.Environment
	prevRoot, prevRuntime := i.settings.InstallRoot(), i.settings.RuntimeLibrary()

	fail := func(reason Reason, f *Failure) *Outcome {
		if env != nil {
			if err := env.Dispose(); err != nil {
				logger.Warn("disposing failed environment", "environment_id", env.ID(), "error", err)
			} else {
				logger.Debug("disposed environment of failed attempt", "environment_id", env.ID())
			}
		}
		i.settings.SetInstallRoot(prevRoot)
		i.settings.SetRuntimeLibrary(prevRuntime)
		out.Status = StatusFailed
		out.Reason = reason
		out.Err = f
		out.EnvironmentID = ""
		out.Duration = time.Since(start)
		logger.Error(f.Message, f.Attrs()...)
		i.finish(ctx, out)
		endBootstrapSpan(span, out)
		return out
	}

	cfg := i.settings.Snapshot()
	builder := environment.NewBuilder(environment.BuilderOptions{
		Encoding:          cfg.Source.Encoding,
		EncodingOverrides: cfg.Source.EncodingOverrides,
		Logger:            logger,
	})

	var err error
	env, err = builder.New(ctx)
	if err != nil {
		return fail(ReasonConfiguration, &Failure{
			Op:      "create environment",
			Message: "cannot construct compiler environment",
			Err:     fmt.Errorf("%w: %w", ErrConfiguration, err),
		})
	}
	out.EnvironmentID = env.ID()

	loc, err := i.newLocator(cfg, logger)
	if err != nil {
		return fail(ReasonConfiguration, &Failure{
			Op:      "create locator",
			Message: "cannot construct library locator",
			Err:     fmt.Errorf("%w: %w", ErrConfiguration, err),
		})
	}

	// Required: standard-library archive.
	stdlib, err := loc.FindRequiredArchive(cfg.Stdlib.Archive)
	recordLookup(ctx, locator.ArtifactStdlib, err == nil)
	if err != nil {
		i.explainMissingStdlib(logger, cfg, err)
		return fail(ReasonMissingRequiredArtifact, &Failure{
			Op:      "find standard library",
			Message: "no standard library archive found",
			Err:     fmt.Errorf("%w: %w", ErrMissingRequiredArtifact, err),
		})
	}
	out.InstallRoot = i.settings.InstallRoot()
	logger.Info("standard library archive located",
		"path", stdlib.Path,
		"source", string(stdlib.Source),
		"install_root", out.InstallRoot,
		"version", stdlib.Version)
	if err := builder.AttachLibrary(env, stdlib); err != nil {
		return fail(ReasonConfiguration, &Failure{
			Op:      "attach standard library",
			Message: "cannot attach standard library archive",
			Err:     fmt.Errorf("%w: %w", ErrConfiguration, err),
		})
	}
	out.Stdlib = &stdlib

	// Optional: runtime library.
	runtimeLib, err := loc.FindOptionalRuntimeLibrary()
	recordLookup(ctx, locator.ArtifactRuntime, err == nil)
	if err != nil {
		warning := fmt.Errorf("%w: %w", ErrMissingOptionalArtifact, err)
		out.Warnings = append(out.Warnings, warning.Error())
		logger.Warn("runtime library not found, continuing without it",
			"directory_marker", cfg.Runtime.DirectoryMarker,
			"archive_marker", cfg.Runtime.ArchiveMarker,
			"classpath", cfg.Runtime.Classpath)
	} else {
		if err := builder.AttachLibrary(env, runtimeLib); err != nil {
			return fail(ReasonConfiguration, &Failure{
				Op:      "attach runtime library",
				Message: "cannot attach runtime library",
				Err:     fmt.Errorf("%w: %w", ErrConfiguration, err),
			})
		}
		out.Runtime = &runtimeLib
		logger.Info("runtime library located",
			"path", runtimeLib.Path,
			"kind", runtimeLib.Kind.String(),
			"version", runtimeLib.Version)
	}

	if err := builder.RegisterGrammars(env, i.mappings); err != nil {
		return fail(ReasonRegistration, &Failure{
			Op:      "register grammars",
			Message: "grammar registration failed",
			Err:     err,
		})
	}

	env.Freeze()
	out.Status = StatusReady
	if len(out.Warnings) > 0 {
		out.Status = StatusDegraded
	}
	if reason, f := i.commit(env, out); f != nil {
		return fail(reason, f)
	}
	i.finish(ctx, out)
	endBootstrapSpan(span, out)

	logger.Info("compiler environment initialized",
		"environment_id", env.ID(),
		"status", out.Status.String(),
		"classpath_entries", len(env.Classpath()),
		"duration", out.Duration)
	return out
}

// commit publishes env and stores it as the shared environment unless
// Close ran while the attempt was in flight.
func (i *Initializer) commit(env *environment.Environment, out *Outcome) (Reason, *Failure) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed.Load() {
		return ReasonClosed, &Failure{
			Op:      "store environment",
			Message: "initializer closed during bootstrap",
			Err:     ErrClosed,
		}
	}
	if f := i.publish(env); f != nil {
		return ReasonPublication, f
	}
	if out.Runtime != nil {
		i.settings.SetRuntimeLibrary(out.Runtime.Path)
	}
	out.Duration = time.Since(out.StartedAt)
	i.env.Store(env)
	i.ready.Store(out.clone())
	return ReasonNone, nil
}

func (i *Initializer) finish(ctx context.Context, out *Outcome) {
	i.last.Store(out.clone())
	recordBootstrap(ctx, out, out.Duration)
}

func (i *Initializer) newLocator(cfg settings.Config, logger *logging.Logger) (*locator.Locator, error) {
	return locator.New(locator.Options{
		Settings:        i.settings,
		Resources:       locator.NewClassPath(cfg.Runtime.Classpath...),
		DirectoryMarker: cfg.Runtime.DirectoryMarker,
		ArchiveMarker:   cfg.Runtime.ArchiveMarker,
		Getenv:          i.getenv,
		LookPath:        i.lookPath,
		KnownRoots:      i.knownRoots,
		Logger:          logger.With("component", "locator"),
	})
}

// explainMissingStdlib writes what was searched and how to fix it.
func (i *Initializer) explainMissingStdlib(logger *logging.Logger, cfg settings.Config, err error) {
	var nf *locator.NotFoundError
	if errors.As(err, &nf) {
		for _, p := range nf.Searched {
			logger.Debug("standard library not at candidate", "path", p)
		}
	}
	if cfg.Stdlib.JavaHome == "" && cfg.Stdlib.Archive == "" {
		logger.Info("no standard library location configured; set stdlib.java_home or stdlib.archive in the config file",
			"config", i.settings.Path())
		return
	}
	logger.Info("configured standard library location is unusable",
		"java_home", cfg.Stdlib.JavaHome,
		"archive", cfg.Stdlib.Archive)
}

// Get returns the shared environment.
//
// Errors: a *Failure wrapping ErrNotReady when no bootstrap has
// succeeded; also wrapping ErrClosed after Close. The failure is logged.
func (i *Initializer) Get() (*environment.Environment, error) {
	if i.closed.Load() {
		f := &Failure{Op: "initialize", Message: "compiler environment is closed",
			Err: fmt.Errorf("%w: %w", ErrNotReady, ErrClosed)}
		i.logger.Error(f.Message, f.Attrs()...)
		return nil, f
	}
	if env := i.env.Load(); env != nil {
		return env, nil
	}
	f := &Failure{Op: "initialize", Message: "compiler environment is not ready", Err: ErrNotReady}
	i.logger.Error(f.Message, f.Attrs()...)
	return nil, f
}

// Ready reports whether Get would succeed. It does not log.
func (i *Initializer) Ready() bool {
	return !i.closed.Load() && i.env.Load() != nil
}

// Republish pushes the environment's registries into the application
// context again. Publishing the same registries is a no-op.
//
// Errors: ErrNotReady before a successful bootstrap, or a publication
// failure.
func (i *Initializer) Republish() error {
	env, err := i.Get()
	if err != nil {
		return err
	}
	if f := i.publish(env); f != nil {
		i.logger.Error(f.Message, f.Attrs()...)
		return f
	}
	return nil
}

func (i *Initializer) publish(env *environment.Environment) *Failure {
	if err := i.appctx.Publish(env.Application()); err != nil {
		return &Failure{
			Op:      "republish",
			Message: "cannot publish registries to the application context",
			Err:     fmt.Errorf("%w: %w", ErrPublication, err),
		}
	}
	return nil
}

// LastOutcome returns a copy of the most recent attempt's outcome, or nil.
func (i *Initializer) LastOutcome() *Outcome {
	if out := i.last.Load(); out != nil {
		return out.clone()
	}
	return nil
}

// Attempts returns the number of bootstrap attempts run so far.
func (i *Initializer) Attempts() int64 {
	return i.attempts.Load()
}

// Settings returns the settings the initializer reads and writes back to.
func (i *Initializer) Settings() *settings.Settings {
	return i.settings
}

// Close disposes the environment. Later calls fail with ErrClosed.
// Idempotent.
func (i *Initializer) Close() error {
	i.mu.Lock()
	if !i.closed.CompareAndSwap(false, true) {
		i.mu.Unlock()
		return nil
	}
	env := i.env.Load()
	i.mu.Unlock()
	if env == nil {
		return nil
	}
	recordClose(context.Background())
	i.logger.Info("disposing compiler environment", "environment_id", env.ID())
	return env.Dispose()
}
