// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compilerenv bootstraps the process-wide compiler environment.
//
// # Overview
//
// The Initializer locates the standard-library archive and the optional
// runtime library (package locator), builds and configures one shared
// Environment (package environment), publishes its registries for
// legacy lookups (package appcontext), and hands the environment to
// callers through Get.
//
//	init, err := compilerenv.New(compilerenv.Options{
//	    Settings: s,
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer init.Close()
//
//	out := init.EnsureInitialized(ctx)
//	if !out.OK() {
//	    return out.Err
//	}
//	env, err := init.Get()
//
// # Failure Handling
//
// A missing standard library fails the attempt (ErrMissingRequiredArtifact)
// and leaves the process not ready; calling EnsureInitialized again
// retries from scratch. A missing runtime library only degrades the
// outcome. The Supervisor automates the retries in long-running servers.
//
// # Observability
//
// Each attempt is traced as "Initializer.Bootstrap" and counted in
// webdemo_bootstrap_attempts_total, webdemo_bootstrap_duration_seconds
// and webdemo_artifact_lookups_total.
package compilerenv
