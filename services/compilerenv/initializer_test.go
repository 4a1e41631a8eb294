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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/webdemo/pkg/logging"
	"github.com/AleutianAI/webdemo/services/compilerenv/environment"
	"github.com/AleutianAI/webdemo/services/compilerenv/locator"
	"github.com/AleutianAI/webdemo/services/compilerenv/settings"
)

// =============================================================================
// Success and idempotence
// =============================================================================

func TestEnsureInitialized_SuccessIsIdempotent(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	runtimeDir := f.runtimeDir(t)
	s := f.settings(t, func(c *settings.Config) {
		c.Stdlib.Archive = archive
		c.Runtime.Classpath = []string{runtimeDir}
	})
	init := f.initializer(t, s, nil)
	ctx := context.Background()

	first := init.EnsureInitialized(ctx)
	require.True(t, first.OK(), "err: %v", first.Err)
	assert.Equal(t, StatusReady, first.Status)
	assert.False(t, first.Cached)
	assert.Equal(t, int64(1), first.Attempt)
	require.NotNil(t, first.Stdlib)
	assert.Equal(t, archive, first.Stdlib.Path)
	require.NotNil(t, first.Runtime)
	assert.Equal(t, locator.KindDirectory, first.Runtime.Kind)

	env, err := init.Get()
	require.NoError(t, err)

	for n := 0; n < 5; n++ {
		out := init.EnsureInitialized(ctx)
		assert.True(t, out.OK())
		assert.True(t, out.Cached)
		assert.Equal(t, first.EnvironmentID, out.EnvironmentID)

		again, err := init.Get()
		require.NoError(t, err)
		assert.Same(t, env, again)
	}

	assert.Equal(t, int64(1), init.Attempts(), "discovery must run exactly once")
	assert.True(t, env.GrammarsRegistered())
	assert.True(t, env.Frozen())
	assert.Equal(t, []string{".java", ".jet", ".kt", ".ktm", ".kts"}, env.Application().FileTypes().Extensions())

	// Written-back settings.
	assert.Equal(t, f.path("opt"), s.InstallRoot())
	assert.Equal(t, runtimeDir, s.RuntimeLibrary())
	assert.Equal(t, f.path("opt"), first.InstallRoot)

	// Classpath order: stdlib first, runtime second.
	cp := env.Classpath()
	require.Len(t, cp, 2)
	assert.Equal(t, archive, cp[0].Path)
	assert.Equal(t, runtimeDir, cp[1].Path)

	// Registries were published.
	app, ok := f.appctx.Current()
	require.True(t, ok)
	assert.Same(t, env.Application(), app)

	assert.NotEmpty(t, f.entries(logging.LevelInfo, ""))
	assert.Empty(t, f.entries(logging.LevelError, ""))
}

func TestEnsureInitialized_ConcurrentFirstCalls(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	s := f.settings(t, func(c *settings.Config) { c.Stdlib.Archive = archive })
	init := f.initializer(t, s, nil)

	const callers = 32
	var wg sync.WaitGroup
	outs := make([]*Outcome, callers)
	start := make(chan struct{})
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			outs[n] = init.EnsureInitialized(context.Background())
		}(n)
	}
	close(start)
	wg.Wait()

	id := outs[0].EnvironmentID
	for _, out := range outs {
		require.True(t, out.OK())
		assert.Equal(t, id, out.EnvironmentID)
	}
	assert.Equal(t, int64(1), init.Attempts())
}

func TestEnsureInitialized_ExplicitArchiveScenario(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)

	// A discoverable JDK that must be ignored.
	jdk := f.path("jdk")
	f.writeJar(t, filepath.Join(jdk, "jre", "lib", "rt.jar"))

	s := f.settings(t, func(c *settings.Config) {
		c.Stdlib.Archive = archive
		c.Stdlib.JavaHome = jdk
	})
	init := f.initializer(t, s, nil)

	out := init.EnsureInitialized(context.Background())
	require.True(t, out.OK())
	assert.Equal(t, archive, out.Stdlib.Path)
	assert.Equal(t, locator.SourceExplicit, out.Stdlib.Source)
	assert.Equal(t, f.path("opt"), s.InstallRoot())
}

// =============================================================================
// Missing required artifact
// =============================================================================

func TestEnsureInitialized_FailsClosedWithoutStdlib(t *testing.T) {
	f := newFixture(t)
	s := f.settings(t, nil)
	init := f.initializer(t, s, nil)

	out := init.EnsureInitialized(context.Background())
	assert.False(t, out.OK())
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonMissingRequiredArtifact, out.Reason)
	assert.True(t, errors.Is(out.Err, ErrMissingRequiredArtifact))
	assert.True(t, errors.Is(out.Err, locator.ErrNotFound))
	assert.Empty(t, out.EnvironmentID)

	_, err := init.Get()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.False(t, init.Ready())

	assert.Empty(t, s.InstallRoot(), "no install root may be published on failure")
	_, published := f.appctx.Current()
	assert.False(t, published)

	// Diagnostics: a hint about configuration and an error with a descriptor.
	hints := f.entries(logging.LevelInfo, "")
	require.NotEmpty(t, hints)
	assert.Contains(t, hints[len(hints)-1].Message, "stdlib.java_home")

	errs := f.entries(logging.LevelError, "find standard library")
	require.Len(t, errs, 1)
	assert.Equal(t, "no standard library archive found", errs[0].Attrs["message"])
	assert.NotEqual(t, "none", errs[0].Attrs["cause"])
}

func TestEnsureInitialized_RetriesAfterSettingsChange(t *testing.T) {
	f := newFixture(t)
	path := f.path("webdemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stdlib:\n  java_home: "+f.path("missing")+"\n"), 0o644))
	s, err := settings.Load(path)
	require.NoError(t, err)
	init := f.initializer(t, s, nil)
	ctx := context.Background()

	out := init.EnsureInitialized(ctx)
	require.False(t, out.OK())
	firstID := out.EnvironmentID

	archive := f.stdlib(t)
	require.NoError(t, os.WriteFile(path, []byte("stdlib:\n  archive: "+archive+"\n"), 0o644))
	require.NoError(t, s.Reload())

	out = init.EnsureInitialized(ctx)
	require.True(t, out.OK(), "err: %v", out.Err)
	assert.False(t, out.Cached)
	assert.Equal(t, int64(2), out.Attempt)
	assert.NotEqual(t, firstID, out.EnvironmentID)

	env, err := init.Get()
	require.NoError(t, err)
	assert.Equal(t, out.EnvironmentID, env.ID())
	assert.True(t, env.GrammarsRegistered())
}

func TestEnsureInitialized_RegistrationFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	s := f.settings(t, func(c *settings.Config) { c.Stdlib.Archive = archive })

	init := f.initializer(t, s, func(o *Options) {
		// Duplicate extensions make registration fail after the
		// environment has been built and the libraries attached.
		o.Mappings = []environment.Mapping{
			{Extension: ".kt", Grammar: environment.KotlinGrammar()},
			{Extension: ".kt", Grammar: environment.KotlinGrammar()},
		}
	})

	out := init.EnsureInitialized(context.Background())
	require.False(t, out.OK())
	assert.Equal(t, ReasonRegistration, out.Reason)
	assert.True(t, errors.Is(out.Err, ErrDuplicateRegistration))

	_, err := init.Get()
	assert.ErrorIs(t, err, ErrNotReady)

	out = init.EnsureInitialized(context.Background())
	assert.Equal(t, ReasonRegistration, out.Reason)
	assert.Equal(t, int64(2), init.Attempts())
}

func TestEnsureInitialized_FailedAttemptRestoresSettings(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	runtimeDir := f.runtimeDir(t)
	path := f.path("webdemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stdlib:\n  archive: "+archive+"\n"+
		"runtime:\n  classpath: ["+runtimeDir+"]\n"), 0o644))
	s, err := settings.Load(path)
	require.NoError(t, err)

	init := f.initializer(t, s, func(o *Options) {
		o.Mappings = []environment.Mapping{
			{Extension: ".kt", Grammar: environment.KotlinGrammar()},
			{Extension: ".kt", Grammar: environment.KotlinGrammar()},
		}
	})

	out := init.EnsureInitialized(context.Background())
	require.False(t, out.OK())
	assert.Equal(t, ReasonRegistration, out.Reason)
	assert.Empty(t, s.InstallRoot())
	assert.Empty(t, s.RuntimeLibrary())

	// A later attempt without an archive must not see the earlier root.
	require.NoError(t, os.WriteFile(path, []byte("stdlib:\n  java_home: "+f.path("missing")+"\n"), 0o644))
	require.NoError(t, s.Reload())

	out = init.EnsureInitialized(context.Background())
	assert.Equal(t, ReasonMissingRequiredArtifact, out.Reason)
	assert.Empty(t, s.InstallRoot())
	assert.Empty(t, s.RuntimeLibrary())
}

// =============================================================================
// Missing optional artifact
// =============================================================================

func TestEnsureInitialized_DegradesWithoutRuntime(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	s := f.settings(t, func(c *settings.Config) {
		c.Stdlib.Archive = archive
		c.Runtime.Classpath = []string{f.path("nothing-here")}
	})
	init := f.initializer(t, s, nil)

	out := init.EnsureInitialized(context.Background())
	require.True(t, out.OK())
	assert.Equal(t, StatusDegraded, out.Status)
	assert.Nil(t, out.Err)
	assert.Nil(t, out.Runtime)
	require.Len(t, out.Warnings, 1)
	assert.True(t, strings.Contains(out.Warnings[0], ErrMissingOptionalArtifact.Error()))

	env, err := init.Get()
	require.NoError(t, err)
	assert.Len(t, env.Classpath(), 1)
	assert.Empty(t, s.RuntimeLibrary())

	warns := f.entries(logging.LevelWarn, "")
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "runtime library not found")
}

func TestEnsureInitialized_RuntimeDirectoryWinsOverArchive(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	jar := f.runtimeJar(t)
	dir := f.runtimeDir(t)
	s := f.settings(t, func(c *settings.Config) {
		c.Stdlib.Archive = archive
		c.Runtime.Classpath = []string{jar, dir}
	})
	init := f.initializer(t, s, nil)

	out := init.EnsureInitialized(context.Background())
	require.True(t, out.OK())
	require.NotNil(t, out.Runtime)
	assert.Equal(t, locator.KindDirectory, out.Runtime.Kind)
	assert.Equal(t, dir, out.Runtime.Path)
	assert.Equal(t, dir, s.RuntimeLibrary())
}

func TestEnsureInitialized_RuntimeArchive(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	jar := f.runtimeJar(t)
	s := f.settings(t, func(c *settings.Config) {
		c.Stdlib.Archive = archive
		c.Runtime.Classpath = []string{jar}
	})
	init := f.initializer(t, s, nil)

	out := init.EnsureInitialized(context.Background())
	require.True(t, out.OK())
	assert.Equal(t, StatusReady, out.Status)
	assert.Equal(t, locator.KindArchive, out.Runtime.Kind)
	assert.Equal(t, jar, out.Runtime.Path)
}

// =============================================================================
// Publication, Get, Republish, Close
// =============================================================================

func TestEnsureInitialized_PublicationConflict(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	s := f.settings(t, func(c *settings.Config) { c.Stdlib.Archive = archive })

	other, err := environment.NewBuilder(environment.BuilderOptions{}).New(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.appctx.Publish(other.Application()))

	init := f.initializer(t, s, nil)
	out := init.EnsureInitialized(context.Background())
	assert.False(t, out.OK())
	assert.Equal(t, ReasonPublication, out.Reason)
	assert.True(t, errors.Is(out.Err, ErrPublication))
	assert.False(t, init.Ready())
}

func TestGet_LogsFailureDescriptor(t *testing.T) {
	f := newFixture(t)
	init := f.initializer(t, f.settings(t, nil), nil)

	_, err := init.Get()
	require.Error(t, err)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "initialize", failure.Op)

	logged := f.entries(logging.LevelError, "initialize")
	require.Len(t, logged, 1)
	assert.Equal(t, ErrNotReady.Error(), logged[0].Attrs["cause"])
}

func TestRepublish(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	init := f.initializer(t, f.settings(t, func(c *settings.Config) { c.Stdlib.Archive = archive }), nil)

	assert.ErrorIs(t, init.Republish(), ErrNotReady)

	require.True(t, init.EnsureInitialized(context.Background()).OK())
	require.NoError(t, init.Republish())
	require.NoError(t, init.Republish())

	env, err := init.Get()
	require.NoError(t, err)
	app, ok := f.appctx.Current()
	require.True(t, ok)
	assert.Same(t, env.Application(), app)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	init := f.initializer(t, f.settings(t, func(c *settings.Config) { c.Stdlib.Archive = archive }), nil)

	require.True(t, init.EnsureInitialized(context.Background()).OK())
	env, err := init.Get()
	require.NoError(t, err)

	require.NoError(t, init.Close())
	require.NoError(t, init.Close())
	assert.True(t, env.Disposed())
	assert.False(t, init.Ready())

	_, err = init.Get()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, ErrNotReady)

	out := init.EnsureInitialized(context.Background())
	assert.Equal(t, ReasonClosed, out.Reason)
}

func TestClose_DuringAttemptDisposesEnvironment(t *testing.T) {
	f := newFixture(t)
	archive := f.stdlib(t)
	s := f.settings(t, func(c *settings.Config) { c.Stdlib.Archive = archive })
	init := f.initializer(t, s, nil)

	// Close lands between the start of an attempt and its final store.
	require.NoError(t, init.Close())
	out := init.bootstrap(context.Background())

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonClosed, out.Reason)
	assert.ErrorIs(t, out.Err, ErrClosed)
	assert.Nil(t, init.env.Load())
	assert.False(t, init.Ready())
	assert.Empty(t, s.InstallRoot())

	_, published := f.appctx.Current()
	assert.False(t, published)

	var disposed bool
	for _, e := range f.exporter.ByLevel(logging.LevelDebug) {
		if e.Message == "disposed environment of failed attempt" {
			disposed = true
		}
	}
	assert.True(t, disposed)
}

func TestEnsureInitialized_NilContext(t *testing.T) {
	f := newFixture(t)
	init := f.initializer(t, f.settings(t, nil), nil)
	//nolint:staticcheck // nil ctx is the case under test
	out := init.EnsureInitialized(nil)
	assert.ErrorIs(t, out.Err, ErrNilContext)
	assert.Equal(t, int64(0), init.Attempts())
}

func TestNew_RequiresSettings(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestLastOutcome(t *testing.T) {
	f := newFixture(t)
	init := f.initializer(t, f.settings(t, nil), nil)
	assert.Nil(t, init.LastOutcome())

	init.EnsureInitialized(context.Background())
	last := init.LastOutcome()
	require.NotNil(t, last)
	assert.Equal(t, StatusFailed, last.Status)
	assert.Equal(t, "failed", last.Status.String())
	assert.NotEmpty(t, last.ErrorMessage())
}
