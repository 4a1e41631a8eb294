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
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/kotlin"
)

// Grammar is a named tree-sitter language.
type Grammar struct {
	Name     string
	Language *sitter.Language
}

// Mapping associates a file extension (with leading dot) to a grammar.
type Mapping struct {
	Extension string
	Grammar   Grammar
}

// KotlinExtensions are the extensions handled by the Kotlin grammar.
var KotlinExtensions = []string{".kt", ".kts", ".ktm", ".jet"}

// HostExtension is the host platform's own source extension.
const HostExtension = ".java"

var (
	kotlinGrammar = sync.OnceValue(func() Grammar {
		return Grammar{Name: "kotlin", Language: kotlin.GetLanguage()}
	})
	javaGrammar = sync.OnceValue(func() Grammar {
		return Grammar{Name: "java", Language: java.GetLanguage()}
	})
)

// KotlinGrammar returns the Kotlin grammar.
func KotlinGrammar() Grammar { return kotlinGrammar() }

// JavaGrammar returns the Java grammar.
func JavaGrammar() Grammar { return javaGrammar() }

// DefaultMappings returns the fixed set registered by the bootstrap:
// every Kotlin extension to the Kotlin grammar and HostExtension to the
// Java grammar.
func DefaultMappings() []Mapping {
	out := make([]Mapping, 0, len(KotlinExtensions)+1)
	for _, ext := range KotlinExtensions {
		out = append(out, Mapping{Extension: ext, Grammar: KotlinGrammar()})
	}
	return append(out, Mapping{Extension: HostExtension, Grammar: JavaGrammar()})
}
