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
	"time"

	"github.com/AleutianAI/webdemo/services/compilerenv/locator"
)

// Status is the overall result of a bootstrap attempt.
type Status int

const (
	// StatusFailed: the environment is not usable.
	StatusFailed Status = iota
	// StatusDegraded: usable, with warnings (runtime library missing).
	StatusDegraded
	// StatusReady: usable, nothing missing.
	StatusReady
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reason classifies a failed attempt.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonMissingRequiredArtifact Reason = "missing_required_artifact"
	ReasonConfiguration           Reason = "configuration"
	ReasonRegistration            Reason = "registration"
	ReasonPublication             Reason = "publication"
	ReasonClosed                  Reason = "closed"
)

// Outcome is the result of one EnsureInitialized call.
type Outcome struct {
	Status Status `json:"status"`
	Reason Reason `json:"reason,omitempty"`

	// Err is the failure, nil unless Status is StatusFailed.
	Err error `json:"-"`

	// Warnings lists non-fatal problems, such as a missing runtime library.
	Warnings []string `json:"warnings,omitempty"`

	Stdlib        *locator.LibraryReference `json:"stdlib,omitempty"`
	Runtime       *locator.LibraryReference `json:"runtime,omitempty"`
	InstallRoot   string                    `json:"install_root,omitempty"`
	EnvironmentID string                    `json:"environment_id,omitempty"`

	// Attempt is the sequence number of the attempt that produced this
	// outcome, starting at 1.
	Attempt int64 `json:"attempt"`

	// Cached is true when the outcome was answered from an earlier
	// successful attempt without any discovery.
	Cached bool `json:"cached"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// OK reports whether the environment is usable.
func (o *Outcome) OK() bool {
	return o != nil && o.Status != StatusFailed
}

// ErrorMessage returns the failure message, or "".
func (o *Outcome) ErrorMessage() string {
	if o == nil || o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func (o *Outcome) clone() *Outcome {
	c := *o
	c.Warnings = append([]string(nil), o.Warnings...)
	return &c
}
