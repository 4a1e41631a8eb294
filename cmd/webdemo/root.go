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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/webdemo/pkg/logging"
	"github.com/AleutianAI/webdemo/pkg/ux"
	"github.com/AleutianAI/webdemo/services/compilerenv"
	"github.com/AleutianAI/webdemo/services/compilerenv/appcontext"
	"github.com/AleutianAI/webdemo/services/compilerenv/settings"
)

// errCheckFailed makes the process exit with status 1 after check has
// already reported the problem.
var errCheckFailed = errors.New("check failed")

// stderrWriter receives errors that end the process.
var stderrWriter io.Writer = os.Stderr

// cli holds the flag values and process-wide collaborators shared by
// the subcommands.
type cli struct {
	configPath string
	logLevel   string
	logJSON    bool
	logDir     string

	logger *logging.Logger
	appctx *appcontext.Context

	// Discovery hooks; zero values use the real process environment.
	getenv     func(string) string
	lookPath   func(string) (string, error)
	knownRoots []string
}

func newCLI() *cli {
	return &cli{appctx: appcontext.Default}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "webdemo",
		Short:         "Compiler environment bootstrap and status server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setupLogging(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.logger != nil {
				return c.logger.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "webdemo.yaml", "settings file (YAML); a missing file means defaults")
	flags.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&c.logJSON, "log-json", false, "JSON logs (default when stderr is not a terminal)")
	flags.StringVar(&c.logDir, "log-dir", "", "also write JSON logs to this directory")

	root.AddCommand(newServeCmd(c), newCheckCmd(c), newVersionCmd())
	return root
}

func (c *cli) setupLogging(cmd *cobra.Command) error {
	level, err := logging.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	useJSON := c.logJSON
	if !cmd.Flags().Changed("log-json") {
		useJSON = !ux.IsTerminal(stderr)
	}
	c.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  c.logDir,
		Service: "webdemo",
		JSON:    useJSON,
		Output:  stderr,
	})
	return nil
}

// newInitializer loads the settings and creates an Initializer wired to
// the CLI's logger and discovery hooks.
func (c *cli) newInitializer() (*compilerenv.Initializer, *settings.Settings, error) {
	s, err := settings.Load(c.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	init, err := compilerenv.New(compilerenv.Options{
		Settings:   s,
		AppContext: c.appctx,
		Getenv:     c.getenv,
		LookPath:   c.lookPath,
		KnownRoots: c.knownRoots,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return init, s, nil
}

// exitCode maps a command error to a process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errCheckFailed):
		return 1
	default:
		fmt.Fprintln(stderrWriter, "Error:", err)
		return 2
	}
}
