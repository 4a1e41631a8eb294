// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the compiler environment's state over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/webdemo/pkg/logging"
	"github.com/AleutianAI/webdemo/services/compilerenv"
	"github.com/AleutianAI/webdemo/services/compilerenv/environment"
	"github.com/AleutianAI/webdemo/services/compilerenv/locator"
	"github.com/AleutianAI/webdemo/services/telemetry"
)

// DefaultRetryAfter is sent with 503 responses while not ready.
const DefaultRetryAfter = 5 * time.Second

// MaxSourceBytes caps the body accepted by the syntax endpoint.
const MaxSourceBytes = 4 << 20

// Handlers serves the /v1/env endpoints.
type Handlers struct {
	init       *compilerenv.Initializer
	logger     *logging.Logger
	retryAfter time.Duration
}

// NewHandlers creates handlers backed by init. A zero retryAfter uses
// DefaultRetryAfter.
func NewHandlers(init *compilerenv.Initializer, logger *logging.Logger, retryAfter time.Duration) *Handlers {
	if logger == nil {
		logger = logging.Discard()
	}
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &Handlers{init: init, logger: logger.With("component", "api"), retryAfter: retryAfter}
}

// StatusResponse is the body of GET /v1/env/status.
type StatusResponse struct {
	Ready       bool                       `json:"ready"`
	Attempts    int64                      `json:"attempts"`
	Outcome     *compilerenv.Outcome       `json:"outcome,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Classpath   []locator.LibraryReference `json:"classpath,omitempty"`
	Extensions  []string                   `json:"extensions,omitempty"`
	Environment string                     `json:"environment_id,omitempty"`
	CreatedAt   *time.Time                 `json:"created_at,omitempty"`
}

// HandleHealth reports liveness. It never depends on bootstrap state.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady returns 200 once the environment is available and 503
// with Retry-After until then.
func (h *Handlers) HandleReady(c *gin.Context) {
	if h.init.Ready() {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	h.notReady(c)
}

// HandleStatus reports the last bootstrap outcome and, when ready, the
// environment's classpath and registered extensions.
func (h *Handlers) HandleStatus(c *gin.Context) {
	resp := StatusResponse{
		Ready:    h.init.Ready(),
		Attempts: h.init.Attempts(),
		Outcome:  h.init.LastOutcome(),
	}
	if resp.Outcome != nil {
		resp.Error = resp.Outcome.ErrorMessage()
	}
	if resp.Ready {
		if env, err := h.init.Get(); err == nil {
			resp.Classpath = env.Classpath()
			resp.Extensions = env.Application().FileTypes().Extensions()
			resp.Environment = env.ID()
			created := env.CreatedAt()
			resp.CreatedAt = &created
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSyntax parses the request body with the grammar registered for
// the filename query parameter.
//
// Responses: 200 with a SyntaxReport, 400 without a filename, 404 for an
// unregistered file type, 413 for an oversized body, 503 while not ready.
func (h *Handlers) HandleSyntax(c *gin.Context) {
	filename := c.Query("filename")
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename query parameter is required"})
		return
	}
	if !h.init.Ready() {
		h.notReady(c)
		return
	}
	env, err := h.init.Get()
	if err != nil {
		h.notReady(c)
		return
	}

	src, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxSourceBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read request body"})
		return
	}
	if len(src) > MaxSourceBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "source too large"})
		return
	}

	ctx := c.Request.Context()
	report, err := env.Application().CheckSyntax(ctx, filename, src)
	switch {
	case errors.Is(err, environment.ErrUnknownFileType):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("syntax check failed",
			"file", filename, "error", err, "trace_id", telemetry.TraceID(ctx))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handlers) notReady(c *gin.Context) {
	c.Header("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
	body := gin.H{"status": "not_ready"}
	if out := h.init.LastOutcome(); out != nil {
		body["reason"] = string(out.Reason)
		body["error"] = out.ErrorMessage()
	}
	c.JSON(http.StatusServiceUnavailable, body)
}
