// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package locator finds the library artifacts a compiler environment
// resolves symbols against.
//
// Two artifacts are located:
//
//   - the standard-library archive (rt.jar), required. An explicitly
//     configured path wins; otherwise a platform discovery walks candidate
//     installation homes.
//   - the language runtime library, optional. It is found by looking up
//     marker resources in a ResourceSpace through an ordered chain of
//     Strategy values; the unpacked directory form wins over the archive
//     form.
//
// Lookups only read the filesystem. The one side effect is publishing the
// installation root derived from a found standard-library archive into
// the Settings collaborator.
package locator

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/webdemo/pkg/logging"
)

// InstallRootDepth is the number of path elements, counting the archive
// itself as the first, between a standard-library archive and the
// installation root published for it. /opt/std/rt.jar gives /opt, and a
// JDK 8 layout <jdk>/jre/lib/rt.jar gives <jdk>/jre, the runtime home.
//
// The derivation is positional. An archive stored at any other depth
// publishes the wrong root.
const InstallRootDepth = 3

// RuntimeRootDepth is how many directories above a loose marker file the
// unpacked runtime library root sits.
const RuntimeRootDepth = 2

// Kind is the storage form of a located library.
type Kind int

const (
	// KindArchive is a packaged archive such as a .jar file.
	KindArchive Kind = iota
	// KindDirectory is an unpacked directory tree.
	KindDirectory
)

// String returns "archive" or "directory".
func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "archive"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Source names the discovery path that produced a LibraryReference.
type Source string

const (
	SourceExplicit  Source = "explicit"
	SourceJavaHome  Source = "java_home"
	SourceEnv       Source = "env"
	SourcePath      Source = "path"
	SourceKnownRoot Source = "known_root"
	SourceClasspath Source = "classpath"
)

// LibraryReference is a located library artifact.
type LibraryReference struct {
	Path    string `json:"path"`
	Kind    Kind   `json:"kind"`
	Source  Source `json:"source"`
	Version string `json:"version,omitempty"`
}

// String renders the reference for logs.
func (r LibraryReference) String() string {
	return fmt.Sprintf("%s %s (%s)", r.Kind, r.Path, r.Source)
}

// Artifact names used in NotFoundError.
const (
	ArtifactStdlib  = "standard library archive"
	ArtifactRuntime = "runtime library"
)

// ErrNotFound is wrapped by every NotFoundError.
var ErrNotFound = errors.New("artifact not found")

// NotFoundError reports a failed lookup and everything that was tried.
type NotFoundError struct {
	Artifact string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found (searched %d locations)", e.Artifact, len(e.Searched))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Settings is the configuration collaborator of a Locator.
type Settings interface {
	// JavaHome returns the configured base directory, or "".
	JavaHome() string
	// SetInstallRoot publishes the resolved installation root.
	SetInstallRoot(dir string)
}

// Options configures a Locator. Nil function fields use the process
// environment; a nil KnownRoots uses DefaultKnownRoots while a non-nil
// empty slice disables known-root scanning.
type Options struct {
	Settings  Settings
	Resources ResourceSpace

	// DirectoryMarker and ArchiveMarker are the runtime library marker
	// resources. Both are required when Resources is set.
	DirectoryMarker string
	ArchiveMarker   string

	Getenv     func(string) string
	LookPath   func(string) (string, error)
	KnownRoots []string

	Logger *logging.Logger
}

// Locator performs artifact lookups.
//
// Thread Safety: safe for concurrent use if Settings is.
type Locator struct {
	settings  Settings
	resources ResourceSpace
	resolver  Resolver

	getenv     func(string) string
	lookPath   func(string) (string, error)
	knownRoots []string

	logger *logging.Logger
}

// New creates a Locator.
//
// Errors: Settings is required; Resources requires both markers.
func New(opts Options) (*Locator, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("locator: settings must not be nil")
	}
	if opts.Resources != nil && (opts.DirectoryMarker == "" || opts.ArchiveMarker == "") {
		return nil, fmt.Errorf("locator: both runtime markers are required")
	}

	l := &Locator{
		settings:   opts.Settings,
		resources:  opts.Resources,
		getenv:     opts.Getenv,
		lookPath:   opts.LookPath,
		knownRoots: opts.KnownRoots,
		logger:     opts.Logger,
	}
	if l.getenv == nil {
		l.getenv = os.Getenv
	}
	if l.lookPath == nil {
		l.lookPath = exec.LookPath
	}
	if l.knownRoots == nil {
		l.knownRoots = DefaultKnownRoots()
	}
	if l.logger == nil {
		l.logger = logging.Discard()
	}
	l.resolver = NewResolver(
		DirectoryStrategy{Marker: opts.DirectoryMarker},
		ArchiveStrategy{Marker: opts.ArchiveMarker},
	)
	return l, nil
}

// FindRequiredArchive locates the standard-library archive.
//
// # Description
//
// An explicit path that names an existing readable file is used without
// any further search. Otherwise the platform discovery checks every
// candidate home (see Candidates) for each layout in ArchiveLayouts.
//
// On success the installation root, InstallRoot(path), is published via
// Settings.SetInstallRoot. On failure nothing is published.
//
// # Outputs
//
//   - LibraryReference: Kind is always KindArchive.
//   - error: *NotFoundError listing every path checked.
func (l *Locator) FindRequiredArchive(explicitPath string) (LibraryReference, error) {
	var searched []string

	if explicitPath != "" {
		p := filepath.Clean(explicitPath)
		searched = append(searched, p)
		if isReadableFile(p) {
			return l.publish(LibraryReference{Path: p, Kind: KindArchive, Source: SourceExplicit}), nil
		}
		l.logger.Warn("configured standard library archive is not a readable file, falling back to discovery",
			"path", p)
	}

	for _, c := range l.Candidates() {
		for _, layout := range ArchiveLayouts {
			p := filepath.Clean(filepath.Join(c.Home, filepath.FromSlash(layout)))
			searched = append(searched, p)
			l.logger.Debug("checking standard library candidate", "path", p, "source", string(c.Source))
			if isReadableFile(p) {
				return l.publish(LibraryReference{Path: p, Kind: KindArchive, Source: c.Source}), nil
			}
		}
	}

	return LibraryReference{}, &NotFoundError{Artifact: ArtifactStdlib, Searched: searched}
}

func (l *Locator) publish(ref LibraryReference) LibraryReference {
	ref.Version = manifestVersion(ref)
	l.settings.SetInstallRoot(InstallRoot(ref.Path))
	return ref
}

// FindOptionalRuntimeLibrary locates the runtime library in the resource
// space. The directory strategy runs first and wins when both forms are
// present.
//
// Errors: *NotFoundError when no strategy resolves or no resource space is
// configured.
func (l *Locator) FindOptionalRuntimeLibrary() (LibraryReference, error) {
	if l.resources == nil {
		return LibraryReference{}, &NotFoundError{Artifact: ArtifactRuntime}
	}
	ref, strategy, ok := l.resolver.Resolve(l.resources)
	if !ok {
		return LibraryReference{}, &NotFoundError{
			Artifact: ArtifactRuntime,
			Searched: l.resources.Entries(),
		}
	}
	l.logger.Debug("runtime library resolved", "strategy", strategy, "path", ref.Path)
	ref.Version = manifestVersion(ref)
	return ref, nil
}

// InstallRoot derives the installation root of an archive at path by
// walking up InstallRootDepth path elements, the archive included.
func InstallRoot(path string) string {
	dir := filepath.Clean(path)
	for i := 1; i < InstallRootDepth; i++ {
		dir = filepath.Dir(dir)
	}
	return dir
}

// runtimeRoot returns the directory RuntimeRootDepth levels above a
// loose marker file.
func runtimeRoot(markerFile string) string {
	dir := filepath.Clean(markerFile)
	for i := 0; i < RuntimeRootDepth; i++ {
		dir = filepath.Dir(dir)
	}
	return dir
}

func isReadableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return isReadable(path)
}

func hasArchiveExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jar", ".zip":
		return true
	}
	return false
}
