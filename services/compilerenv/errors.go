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
	"fmt"

	"github.com/AleutianAI/webdemo/services/compilerenv/environment"
)

// Sentinel errors for the bootstrap.
var (
	// ErrMissingRequiredArtifact: no standard-library archive was found.
	// Fatal to the attempt; a later attempt may succeed.
	ErrMissingRequiredArtifact = errors.New("required artifact missing")

	// ErrMissingOptionalArtifact: no runtime library was found. Reported
	// as a warning only.
	ErrMissingOptionalArtifact = errors.New("optional artifact missing")

	// ErrNotReady: the environment was requested before a successful
	// bootstrap.
	ErrNotReady = errors.New("compiler environment is not ready")

	// ErrConfiguration: the environment could not be constructed from the
	// current settings.
	ErrConfiguration = errors.New("compiler environment configuration error")

	// ErrPublication: the registries could not be published process-wide.
	ErrPublication = errors.New("registry publication failed")

	// ErrClosed: the initializer was closed.
	ErrClosed = errors.New("initializer is closed")

	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("ctx must not be nil")

	// ErrDuplicateRegistration is environment.ErrDuplicateRegistration.
	ErrDuplicateRegistration = environment.ErrDuplicateRegistration
)

// Failure is the structured failure descriptor written to the diagnostic
// sink with every error.
type Failure struct {
	Op      string // operation that failed, e.g. "initialize"
	Message string // human-readable summary
	Err     error  // originating condition
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Op, f.Message)
	}
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Message, f.Err)
}

// Unwrap returns the originating condition.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Attrs returns the descriptor as logger key/value pairs.
func (f *Failure) Attrs() []any {
	cause := "none"
	if f.Err != nil {
		cause = f.Err.Error()
	}
	return []any{"op", f.Op, "message", f.Message, "cause", cause}
}
