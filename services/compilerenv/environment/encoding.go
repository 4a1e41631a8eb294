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
	"fmt"
	"path/filepath"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// EncodingRegistry decides how source bytes are decoded, per extension.
//
// Immutable after construction.
type EncodingRegistry struct {
	defaultName string
	def         encoding.Encoding
	overrides   map[string]namedEncoding
}

type namedEncoding struct {
	name string
	enc  encoding.Encoding
}

// NewEncodingRegistry resolves the default encoding and the per-extension
// overrides by WHATWG name (for example "utf-8" or "windows-1252").
func NewEncodingRegistry(defaultName string, overrides map[string]string) (*EncodingRegistry, error) {
	def, name, err := resolveEncoding(defaultName)
	if err != nil {
		return nil, err
	}
	r := &EncodingRegistry{
		defaultName: name,
		def:         def,
		overrides:   make(map[string]namedEncoding, len(overrides)),
	}
	for ext, n := range overrides {
		enc, canonical, err := resolveEncoding(n)
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", ext, err)
		}
		r.overrides[normalizeExt(ext)] = namedEncoding{name: canonical, enc: enc}
	}
	return r, nil
}

func resolveEncoding(name string) (encoding.Encoding, string, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, "", fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = name
	}
	return enc, canonical, nil
}

// Default returns the canonical name of the default encoding.
func (r *EncodingRegistry) Default() string {
	return r.defaultName
}

// For returns the encoding used for filename.
func (r *EncodingRegistry) For(filename string) (string, encoding.Encoding) {
	if o, ok := r.overrides[normalizeExt(filepath.Ext(filename))]; ok {
		return o.name, o.enc
	}
	return r.defaultName, r.def
}

// Decode converts src, encoded as For(filename) says, to UTF-8.
func (r *EncodingRegistry) Decode(filename string, src []byte) ([]byte, error) {
	name, enc := r.For(filename)
	out, err := enc.NewDecoder().Bytes(src)
	if err != nil {
		return nil, fmt.Errorf("decode %s as %s: %w", filename, name, err)
	}
	return out, nil
}
