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
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/mod/semver"
)

const manifestName = "META-INF/MANIFEST.MF"

// manifestVersion returns the canonical semantic version declared by the
// library's manifest, or "" when there is no manifest or the declared
// version is not semver.
func manifestVersion(ref LibraryReference) string {
	var raw string
	switch ref.Kind {
	case KindArchive:
		raw = archiveManifestVersion(ref.Path)
	case KindDirectory:
		f, err := os.Open(filepath.Join(ref.Path, filepath.FromSlash(manifestName)))
		if err != nil {
			return ""
		}
		defer f.Close()
		raw = parseImplementationVersion(f)
	}
	return canonicalVersion(raw)
}

func archiveManifestVersion(archive string) string {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return ""
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name != manifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ""
		}
		defer rc.Close()
		return parseImplementationVersion(rc)
	}
	return ""
}

// parseImplementationVersion reads the Implementation-Version main
// attribute. Continuation lines are not supported.
func parseImplementationVersion(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			// End of the main section.
			return ""
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Implementation-Version") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func canonicalVersion(raw string) string {
	if raw == "" {
		return ""
	}
	v := raw
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
