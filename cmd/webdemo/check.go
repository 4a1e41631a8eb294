// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/webdemo/pkg/ux"
	"github.com/AleutianAI/webdemo/services/compilerenv"
	"github.com/AleutianAI/webdemo/services/compilerenv/environment"
	"github.com/AleutianAI/webdemo/services/compilerenv/locator"
)

var (
	checkJSON    bool
	checkTimeout time.Duration
)

// checkResult is the --json output of check.
type checkResult struct {
	Outcome *compilerenv.Outcome        `json:"outcome"`
	Error   string                      `json:"error,omitempty"`
	Files   []*environment.SyntaxReport `json:"files,omitempty"`
	Failed  map[string]string           `json:"failed_files,omitempty"`
}

// newCheckCmd builds the check command.
//
// # Description
//
// Runs one bootstrap attempt and reports where the standard library and
// runtime library were found. Any FILE arguments are then syntax-checked
// with the registered grammars.
//
// # Examples
//
//	webdemo check
//	webdemo check --config /etc/webdemo.yaml src/Main.kt src/Util.java
//	webdemo check --json
//
// Exit status is 1 when the bootstrap fails or any file has syntax
// errors.
func newCheckCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [FILE...]",
		Short: "Bootstrap the compiler environment once and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCheck(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&checkJSON, "json", false, "print the result as JSON")
	cmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "deadline for the syntax checks")
	return cmd
}

func (c *cli) runCheck(cmd *cobra.Command, files []string) error {
	init, _, err := c.newInitializer()
	if err != nil {
		return err
	}
	defer init.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	out := init.EnsureInitialized(ctx)
	result := checkResult{Outcome: out, Error: out.ErrorMessage()}

	failed := !out.OK()
	if out.OK() && len(files) > 0 {
		env, err := init.Get()
		if err != nil {
			return err
		}
		result.Failed = map[string]string{}
		for _, name := range files {
			report, err := checkFile(ctx, env, name)
			if err != nil {
				result.Failed[name] = err.Error()
				failed = true
				continue
			}
			if !report.OK() {
				failed = true
			}
			result.Files = append(result.Files, report)
		}
	}

	if checkJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printCheck(ux.NewPrinter(cmd.OutOrStdout()), result)
	}

	if failed {
		return errCheckFailed
	}
	return nil
}

func checkFile(ctx context.Context, env *environment.Environment, name string) (*environment.SyntaxReport, error) {
	src, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return env.Application().CheckSyntax(ctx, name, src)
}

func printCheck(p *ux.Printer, r checkResult) {
	out := r.Outcome
	p.Title("Compiler environment")
	switch out.Status {
	case compilerenv.StatusReady:
		p.Success("ready (%s)", out.Duration.Round(time.Millisecond))
	case compilerenv.StatusDegraded:
		p.Warning("ready with warnings (%s)", out.Duration.Round(time.Millisecond))
	default:
		p.Error("not ready: %s", r.Error)
	}
	p.Field("stdlib", refString(out.Stdlib))
	p.Field("install root", out.InstallRoot)
	p.Field("runtime", refString(out.Runtime))
	p.Field("environment", out.EnvironmentID)

	if len(out.Warnings) > 0 {
		p.Box(out.Warnings...)
	}
	if out.Reason == compilerenv.ReasonMissingRequiredArtifact {
		p.Box(
			"set stdlib.archive or stdlib.java_home in the settings file",
			"or export WEBDEMO_RT_JAR / WEBDEMO_JAVA_HOME",
		)
	}

	for _, rep := range r.Files {
		if rep.OK() {
			p.Success("%s: %s, %s", rep.File, rep.Grammar, rep.Encoding)
			continue
		}
		p.Error("%s: %d syntax error(s)", rep.File, len(rep.Errors))
		for _, e := range rep.Errors {
			kind := "error"
			if e.Missing {
				kind = "missing"
			}
			p.Field(fmt.Sprintf("%d:%d", e.Line, e.Column), kind)
		}
	}
	for name, msg := range r.Failed {
		p.Error("%s: %s", name, msg)
	}
}

func refString(ref *locator.LibraryReference) string {
	if ref == nil {
		return ""
	}
	return ref.String()
}
