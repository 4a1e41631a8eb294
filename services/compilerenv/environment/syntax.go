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
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// SyntaxError is one ERROR or MISSING node found by CheckSyntax.
type SyntaxError struct {
	Line    uint32 `json:"line"`
	Column  uint32 `json:"column"`
	Missing bool   `json:"missing"`
}

// SyntaxReport summarises a syntax check.
type SyntaxReport struct {
	File     string        `json:"file"`
	Grammar  string        `json:"grammar"`
	Encoding string        `json:"encoding"`
	RootType string        `json:"root_type"`
	Errors   []SyntaxError `json:"errors,omitempty"`
}

// OK reports whether the source parsed without errors.
func (r *SyntaxReport) OK() bool { return len(r.Errors) == 0 }

// maxSyntaxErrors bounds the errors collected per report.
const maxSyntaxErrors = 50

// CheckSyntax decodes src with the registered encoding for filename and
// parses it with the registered grammar.
//
// Errors: ErrUnknownFileType when no grammar matches filename, a decode
// failure, or a parse failure (including ctx cancellation).
func (a *Application) CheckSyntax(ctx context.Context, filename string, src []byte) (*SyntaxReport, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	grammar, ok := a.fileTypes.Lookup(filename)
	if !ok {
		return nil, fmt.Errorf("%s: %w", filename, ErrUnknownFileType)
	}
	encName, _ := a.encodings.For(filename)
	content, err := a.encodings.Decode(filename, src)
	if err != nil {
		return nil, err
	}

	// One parser per call; sitter.Parser is not safe for concurrent use.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar.Language)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	report := &SyntaxReport{
		File:     filename,
		Grammar:  grammar.Name,
		Encoding: encName,
		RootType: root.Type(),
	}
	if root.HasError() {
		collectSyntaxErrors(root, report)
	}
	return report, nil
}

func collectSyntaxErrors(n *sitter.Node, report *SyntaxReport) {
	if n == nil || len(report.Errors) >= maxSyntaxErrors {
		return
	}
	if n.IsError() || n.IsMissing() {
		p := n.StartPoint()
		report.Errors = append(report.Errors, SyntaxError{
			Line:    p.Row + 1,
			Column:  p.Column + 1,
			Missing: n.IsMissing(),
		})
		if n.IsError() {
			return
		}
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collectSyntaxErrors(n.Child(i), report)
	}
}
