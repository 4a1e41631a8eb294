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
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/webdemo/services/compilerenv/locator"
)

func newEnv(t *testing.T) (*Builder, *Environment) {
	t.Helper()
	b := NewBuilder(BuilderOptions{})
	env, err := b.New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Dispose() })
	return b, env
}

// =============================================================================
// Builder.New
// =============================================================================

func TestBuilder_New(t *testing.T) {
	_, env := newEnv(t)

	assert.NotEmpty(t, env.ID())
	assert.NotNil(t, env.Scope())
	assert.NotNil(t, env.Application().FileTypes())
	assert.Equal(t, "utf-8", env.Application().Encodings().Default())
	assert.Empty(t, env.Classpath())
	assert.False(t, env.GrammarsRegistered())
	assert.False(t, env.Frozen())
}

func TestBuilder_New_DistinctIdentities(t *testing.T) {
	_, a := newEnv(t)
	_, b := newEnv(t)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestBuilder_New_Errors(t *testing.T) {
	//nolint:staticcheck // nil ctx is the case under test
	_, err := NewBuilder(BuilderOptions{}).New(nil)
	require.Error(t, err)

	_, err = NewBuilder(BuilderOptions{Encoding: "no-such-charset"}).New(context.Background())
	require.Error(t, err)
}

// =============================================================================
// AttachLibrary
// =============================================================================

func TestAttachLibrary_AppendOnly(t *testing.T) {
	b, env := newEnv(t)

	stdlib := locator.LibraryReference{Path: "/opt/std/rt.jar", Kind: locator.KindArchive}
	runtime := locator.LibraryReference{Path: "/libs/runtime", Kind: locator.KindDirectory}

	require.NoError(t, b.AttachLibrary(env, stdlib))
	require.NoError(t, b.AttachLibrary(env, runtime))
	require.NoError(t, b.AttachLibrary(env, stdlib))

	assert.Equal(t, []locator.LibraryReference{stdlib, runtime}, env.Classpath())
}

func TestAttachLibrary_ReturnsCopy(t *testing.T) {
	b, env := newEnv(t)
	require.NoError(t, b.AttachLibrary(env, locator.LibraryReference{Path: "/a.jar"}))

	cp := env.Classpath()
	cp[0].Path = "/mutated"
	assert.Equal(t, "/a.jar", env.Classpath()[0].Path)
}

func TestAttachLibrary_Errors(t *testing.T) {
	b, env := newEnv(t)

	assert.ErrorIs(t, b.AttachLibrary(nil, locator.LibraryReference{Path: "/a.jar"}), ErrNilEnvironment)
	assert.Error(t, b.AttachLibrary(env, locator.LibraryReference{}))

	env.Freeze()
	assert.ErrorIs(t, b.AttachLibrary(env, locator.LibraryReference{Path: "/a.jar"}), ErrFrozen)
}

func TestAttachLibrary_AfterDispose(t *testing.T) {
	b, env := newEnv(t)
	require.NoError(t, b.AttachLibrary(env, locator.LibraryReference{Path: "/a.jar"}))
	require.NoError(t, env.Dispose())

	assert.True(t, env.Disposed())
	assert.Empty(t, env.Classpath())
	assert.ErrorIs(t, b.AttachLibrary(env, locator.LibraryReference{Path: "/b.jar"}), ErrDisposed)
}

// =============================================================================
// RegisterGrammars
// =============================================================================

func TestRegisterGrammars_Defaults(t *testing.T) {
	b, env := newEnv(t)
	require.NoError(t, b.RegisterGrammars(env, DefaultMappings()))

	ft := env.Application().FileTypes()
	assert.Equal(t, []string{".java", ".jet", ".kt", ".ktm", ".kts"}, ft.Extensions())

	for _, name := range []string{"Main.kt", "build.kts", "x.ktm", "old.jet", ".KT"} {
		g, ok := ft.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, "kotlin", g.Name, name)
	}
	g, ok := ft.Lookup("src/Main.java")
	require.True(t, ok)
	assert.Equal(t, "java", g.Name)

	_, ok = ft.Lookup("notes.txt")
	assert.False(t, ok)
	assert.True(t, env.GrammarsRegistered())
}

func TestRegisterGrammars_TwiceIsDuplicate(t *testing.T) {
	b, env := newEnv(t)
	mapping := []Mapping{{Extension: ".kt", Grammar: KotlinGrammar()}}

	require.NoError(t, b.RegisterGrammars(env, mapping))
	err := b.RegisterGrammars(env, mapping)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateRegistration))
	assert.Equal(t, 1, env.Application().FileTypes().Len())
}

func TestRegisterGrammars_DuplicateWithinCallRegistersNothing(t *testing.T) {
	b, env := newEnv(t)
	err := b.RegisterGrammars(env, []Mapping{
		{Extension: ".kt", Grammar: KotlinGrammar()},
		{Extension: ".KT", Grammar: JavaGrammar()},
	})
	require.ErrorIs(t, err, ErrDuplicateRegistration)
	assert.Equal(t, 0, env.Application().FileTypes().Len())
	assert.False(t, env.GrammarsRegistered())
}

func TestRegisterGrammars_InvalidMapping(t *testing.T) {
	b, env := newEnv(t)
	require.Error(t, b.RegisterGrammars(env, []Mapping{{Extension: "", Grammar: KotlinGrammar()}}))
	require.Error(t, b.RegisterGrammars(env, []Mapping{{Extension: ".kt", Grammar: Grammar{Name: "empty"}}}))
	assert.Equal(t, 0, env.Application().FileTypes().Len())
}

func TestRegisterGrammars_Frozen(t *testing.T) {
	b, env := newEnv(t)
	env.Freeze()
	assert.ErrorIs(t, b.RegisterGrammars(env, DefaultMappings()), ErrFrozen)
}

func TestRegisterGrammars_ConcurrentCallsRegisterOnce(t *testing.T) {
	b, env := newEnv(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.RegisterGrammars(env, DefaultMappings())
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateRegistration)
	}
	assert.Equal(t, 1, succeeded)
}

// =============================================================================
// Encodings and syntax checks
// =============================================================================

func TestEncodingRegistry_Overrides(t *testing.T) {
	r, err := NewEncodingRegistry("UTF-8", map[string]string{".JAVA": "windows-1252"})
	require.NoError(t, err)

	name, _ := r.For("Main.java")
	assert.Equal(t, "windows-1252", name)
	name, _ = r.For("Main.kt")
	assert.Equal(t, "utf-8", name)

	// 0xE9 is é in windows-1252.
	out, err := r.Decode("Main.java", []byte{'c', 'a', 'f', 0xE9})
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))

	_, err = NewEncodingRegistry("utf-8", map[string]string{".kt": "bogus"})
	require.Error(t, err)
}

func TestCheckSyntax(t *testing.T) {
	b, env := newEnv(t)
	require.NoError(t, b.RegisterGrammars(env, DefaultMappings()))
	app := env.Application()
	ctx := context.Background()

	report, err := app.CheckSyntax(ctx, "Main.kt", []byte("fun main() {\n    println(\"hi\")\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, "kotlin", report.Grammar)
	assert.Equal(t, "source_file", report.RootType)
	assert.True(t, report.OK(), "errors: %+v", report.Errors)

	report, err = app.CheckSyntax(ctx, "Main.java", []byte("class Main { void f( { }"))
	require.NoError(t, err)
	assert.Equal(t, "java", report.Grammar)
	assert.Equal(t, "program", report.RootType)
	assert.False(t, report.OK())
	assert.Equal(t, uint32(1), report.Errors[0].Line)

	_, err = app.CheckSyntax(ctx, "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnknownFileType)
}

// =============================================================================
// Scope
// =============================================================================

func TestScope_DisposeOrder(t *testing.T) {
	root := NewScope("root")
	child, err := root.Child("child")
	require.NoError(t, err)
	assert.Equal(t, "root/child", child.Name())

	var order []string
	require.NoError(t, root.OnDispose(func() error { order = append(order, "root-1"); return nil }))
	require.NoError(t, root.OnDispose(func() error { order = append(order, "root-2"); return nil }))
	require.NoError(t, child.OnDispose(func() error { order = append(order, "child"); return nil }))

	require.NoError(t, root.Dispose())
	assert.Equal(t, []string{"child", "root-2", "root-1"}, order)
	assert.True(t, child.Disposed())

	require.NoError(t, root.Dispose())
	assert.Len(t, order, 3)
}

func TestScope_ErrorsJoinedAndAfterDispose(t *testing.T) {
	root := NewScope("root")
	boom := errors.New("boom")
	ran := false
	require.NoError(t, root.OnDispose(func() error { ran = true; return nil }))
	require.NoError(t, root.OnDispose(func() error { return boom }))

	err := root.Dispose()
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran)

	assert.ErrorIs(t, root.OnDispose(func() error { return nil }), ErrDisposed)
	_, err = root.Child("late")
	assert.ErrorIs(t, err, ErrDisposed)
}
