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
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/webdemo/services/compilerenv"
	"github.com/AleutianAI/webdemo/services/compilerenv/api"
	"github.com/AleutianAI/webdemo/services/compilerenv/settings"
	"github.com/AleutianAI/webdemo/services/telemetry"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

// newServeCmd builds the serve command: the status server, the
// bootstrap supervisor and the settings watcher, stopped together on
// SIGINT/SIGTERM.
func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap in the background and serve /v1/env and /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.runServe(ctx, nil)
		},
	}
	cmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// runServe blocks until ctx is done or a component fails. When ready is
// non-nil it receives the bound address once the listener is open.
func (c *cli) runServe(ctx context.Context, ready chan<- string) error {
	logger := c.logger

	tel, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	init, s, err := c.newInitializer()
	if err != nil {
		return err
	}
	defer init.Close()

	cfg := s.Snapshot()
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	sup := compilerenv.NewSupervisor(init, compilerenv.SupervisorOptions{
		InitialInterval: cfg.Server.RetryInitial,
		MaxInterval:     cfg.Server.RetryMax,
		Logger:          logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter("webdemo", api.NewHandlers(init, logger, cfg.Server.RetryInitial), tel.MetricsHandler())
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	logger.Info("listening", "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return sup.Run(gctx)
	})

	if path := s.Path(); path != "" {
		if _, err := os.Stat(path); err == nil {
			g.Go(func() error {
				return s.Watch(gctx, &settings.WatchOptions{Logger: logger}, func(settings.Config) {
					logger.Info("settings changed", "config", path)
					if !init.Ready() {
						sup.Trigger()
					}
				})
			})
		} else {
			logger.Debug("settings file not found, not watching", "config", path)
		}
	}

	return g.Wait()
}
