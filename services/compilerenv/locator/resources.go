// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package locator

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Resource locator prefixes.
const (
	fileScheme    = "file:"
	archiveScheme = "jar:"
	archiveSep    = "!/"
)

// ErrNotArchiveLocator is returned by ArchivePathFromLocator for a locator
// without an in-archive suffix.
var ErrNotArchiveLocator = errors.New("locator does not point inside an archive")

// ResourceSpace answers where a named resource can be loaded from.
type ResourceSpace interface {
	// Resources returns a locator for every occurrence of name, in search
	// order. Loose files are reported as "file:<path>" and archive members
	// as "jar:file:<archive>!/<name>".
	Resources(name string) []string

	// Entries returns the roots that make up the space.
	Entries() []string
}

// ClassPath is a ResourceSpace over an ordered list of directories and
// .jar/.zip archives. Missing entries are skipped.
type ClassPath struct {
	entries []string
}

// NewClassPath creates a ClassPath. Empty entries are dropped; paths are
// kept as given so relative entries produce relative locators.
func NewClassPath(entries ...string) *ClassPath {
	cp := &ClassPath{}
	for _, e := range entries {
		if e != "" {
			cp.entries = append(cp.entries, e)
		}
	}
	return cp
}

// Entries returns a copy of the classpath entries.
func (c *ClassPath) Entries() []string {
	return append([]string(nil), c.entries...)
}

// Resources implements ResourceSpace.
func (c *ClassPath) Resources(name string) []string {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	var out []string
	for _, entry := range c.entries {
		info, err := os.Stat(entry)
		if err != nil {
			continue
		}
		if info.IsDir() {
			p := filepath.Join(entry, filepath.FromSlash(name))
			if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
				out = append(out, fileScheme+filepath.ToSlash(p))
			}
			continue
		}
		if hasArchiveExt(entry) && archiveContains(entry, name) {
			out = append(out, archiveScheme+fileScheme+filepath.ToSlash(entry)+archiveSep+name)
		}
	}
	return out
}

func archiveContains(archive, name string) bool {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return false
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ArchivePathFromLocator extracts the archive path from a resource
// locator by stripping the scheme prefix and the in-archive suffix.
//
//	jar:file:/opt/libs/runtime.jar!/kotlin/namespace.class -> /opt/libs/runtime.jar
//	libs/runtime.jar!/marker.class                        -> libs/runtime.jar
func ArchivePathFromLocator(locator string) (string, error) {
	s := strings.TrimPrefix(locator, archiveScheme)
	s = strings.TrimPrefix(s, fileScheme)
	if strings.HasPrefix(s, "//") {
		// file:///abs/path keeps a single leading slash.
		s = s[2:]
	}
	i := strings.Index(s, archiveSep)
	if i < 0 {
		return "", fmt.Errorf("%w: %q", ErrNotArchiveLocator, locator)
	}
	if i == 0 {
		return "", fmt.Errorf("%w: empty archive path in %q", ErrNotArchiveLocator, locator)
	}
	return filepath.FromSlash(s[:i]), nil
}

// filePathFromLocator returns the path of a "file:" locator.
func filePathFromLocator(locator string) (string, bool) {
	if !strings.HasPrefix(locator, fileScheme) {
		return "", false
	}
	s := strings.TrimPrefix(locator, fileScheme)
	if strings.Contains(s, archiveSep) {
		return "", false
	}
	if strings.HasPrefix(s, "//") {
		s = s[2:]
	}
	return filepath.FromSlash(s), true
}
