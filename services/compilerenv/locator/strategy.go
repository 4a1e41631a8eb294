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

import "strings"

// Strategy resolves a library from a resource space.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string
	// TryResolve reports ok=false when the strategy does not apply.
	TryResolve(space ResourceSpace) (ref LibraryReference, ok bool)
}

// Resolver runs strategies until one resolves.
type Resolver interface {
	Resolve(space ResourceSpace) (ref LibraryReference, strategy string, ok bool)
}

// NewResolver returns a Resolver trying strategies in the given order.
// Nil strategies are ignored.
func NewResolver(strategies ...Strategy) Resolver {
	out := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			out = append(out, s)
		}
	}
	return chain{strategies: out}
}

// chain is an immutable, order-preserving Resolver.
type chain struct {
	strategies []Strategy
}

func (c chain) Resolve(space ResourceSpace) (LibraryReference, string, bool) {
	for _, s := range c.strategies {
		if ref, ok := s.TryResolve(space); ok {
			return ref, s.Name(), true
		}
	}
	return LibraryReference{}, "", false
}

// DirectoryStrategy finds the runtime library as an unpacked directory
// tree: Marker present as a loose file resolves to the directory
// RuntimeRootDepth levels above it.
type DirectoryStrategy struct {
	Marker string
}

func (s DirectoryStrategy) Name() string { return "directory" }

func (s DirectoryStrategy) TryResolve(space ResourceSpace) (LibraryReference, bool) {
	if s.Marker == "" {
		return LibraryReference{}, false
	}
	for _, loc := range space.Resources(s.Marker) {
		p, ok := filePathFromLocator(loc)
		if !ok {
			continue
		}
		return LibraryReference{
			Path:   runtimeRoot(p),
			Kind:   KindDirectory,
			Source: SourceClasspath,
		}, true
	}
	return LibraryReference{}, false
}

// ArchiveStrategy finds the runtime library as a packaged archive: Marker
// present inside an archive resolves to that archive file.
type ArchiveStrategy struct {
	Marker string
}

func (s ArchiveStrategy) Name() string { return "archive" }

func (s ArchiveStrategy) TryResolve(space ResourceSpace) (LibraryReference, bool) {
	if s.Marker == "" {
		return LibraryReference{}, false
	}
	for _, loc := range space.Resources(s.Marker) {
		if !strings.HasPrefix(loc, archiveScheme) {
			continue
		}
		p, err := ArchivePathFromLocator(loc)
		if err != nil || !isReadableFile(p) {
			continue
		}
		return LibraryReference{
			Path:   p,
			Kind:   KindArchive,
			Source: SourceClasspath,
		}, true
	}
	return LibraryReference{}, false
}
