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
	"path/filepath"
	"runtime"
	"sort"
)

// ArchiveLayouts are the locations of the standard-library archive
// relative to a candidate home, in the order they are checked. The last
// one is the Apple JDK 6 layout where the home is Contents/Home.
var ArchiveLayouts = []string{
	"jre/lib/rt.jar",
	"lib/rt.jar",
	"../Classes/classes.jar",
}

// Candidate is one home directory the discovery will search.
type Candidate struct {
	Home   string
	Source Source
}

// DefaultKnownRoots returns the glob patterns of common JDK install
// locations for the running platform.
func DefaultKnownRoots() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Library/Java/JavaVirtualMachines/*/Contents/Home",
			"/System/Library/Frameworks/JavaVM.framework/Versions/*/Home",
		}
	case "windows":
		return []string{
			`C:\Program Files\Java\*`,
			`C:\Program Files (x86)\Java\*`,
		}
	default:
		return []string{
			"/usr/lib/jvm/*",
			"/usr/java/*",
			"/opt/java/*",
		}
	}
}

// Candidates returns the homes searched by FindRequiredArchive, in order:
// the configured base path, $JAVA_HOME, the installation owning the java
// executable on $PATH, then every match of the known-root patterns.
// Duplicates are removed keeping the first occurrence.
func (l *Locator) Candidates() []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	add := func(home string, src Source) {
		if home == "" {
			return
		}
		home = filepath.Clean(home)
		if seen[home] {
			return
		}
		seen[home] = true
		out = append(out, Candidate{Home: home, Source: src})
	}

	add(l.settings.JavaHome(), SourceJavaHome)
	add(l.getenv("JAVA_HOME"), SourceEnv)

	if bin, err := l.lookPath("java"); err == nil {
		if resolved, err := filepath.EvalSymlinks(bin); err == nil {
			bin = resolved
		}
		// <home>/bin/java
		add(filepath.Dir(filepath.Dir(bin)), SourcePath)
	}

	for _, pattern := range l.knownRoots {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m, SourceKnownRoot)
		}
	}
	return out
}
