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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/webdemo/pkg/logging"
	"github.com/AleutianAI/webdemo/services/compilerenv/appcontext"
	"github.com/AleutianAI/webdemo/services/compilerenv/settings"
)

// fixture is a temp directory laid out like a small installation.
type fixture struct {
	root     string
	exporter *logging.BufferedExporter
	logger   *logging.Logger
	appctx   *appcontext.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	exporter := logging.NewBufferedExporter()
	return &fixture{
		root:     t.TempDir(),
		exporter: exporter,
		logger:   logging.New(logging.Config{Level: logging.LevelDebug, Quiet: true, Exporter: exporter}),
		appctx:   appcontext.New(),
	}
}

func (f *fixture) path(parts ...string) string {
	return filepath.Join(append([]string{f.root}, parts...)...)
}

func (f *fixture) writeJar(t *testing.T, path string, entries ...string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	file, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(file)
	for _, name := range entries {
		_, err := zw.Create(name)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, file.Close())
	return path
}

func (f *fixture) touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

// stdlib writes <root>/opt/std/rt.jar.
func (f *fixture) stdlib(t *testing.T) string {
	return f.writeJar(t, f.path("opt", "std", "rt.jar"), "java/lang/Object.class")
}

// runtimeDir writes an unpacked runtime library and returns its root.
func (f *fixture) runtimeDir(t *testing.T) string {
	dir := f.path("out", "runtime")
	f.touch(t, filepath.Join(dir, "jet", "JetObject.class"))
	return dir
}

// runtimeJar writes a packed runtime library and returns its path.
func (f *fixture) runtimeJar(t *testing.T) string {
	return f.writeJar(t, f.path("libs", "runtime.jar"), "kotlin/namespace.class")
}

func (f *fixture) settings(t *testing.T, mutate func(*settings.Config)) *settings.Settings {
	t.Helper()
	cfg := settings.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := settings.New(cfg)
	require.NoError(t, err)
	return s
}

func (f *fixture) initializer(t *testing.T, s *settings.Settings, mutate func(*Options)) *Initializer {
	t.Helper()
	opts := Options{
		Settings:   s,
		AppContext: f.appctx,
		Getenv:     func(string) string { return "" },
		LookPath:   func(string) (string, error) { return "", errors.New("not on PATH") },
		KnownRoots: []string{},
		Logger:     f.logger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	init, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = init.Close() })
	return init
}

// entries returns exported log entries at level whose op attribute is op
// (any op when op is "").
func (f *fixture) entries(level logging.Level, op string) []logging.LogEntry {
	var out []logging.LogEntry
	for _, e := range f.exporter.ByLevel(level) {
		if op == "" || e.Attrs["op"] == op {
			out = append(out, e)
		}
	}
	return out
}
