// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the /env endpoints on rg (typically /v1):
//
//	GET  /v1/env/health - liveness
//	GET  /v1/env/ready  - readiness, 503 + Retry-After until bootstrapped
//	GET  /v1/env/status - last outcome, classpath, extensions
//	POST /v1/env/syntax - syntax check of the body (?filename=)
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	env := rg.Group("/env")
	{
		env.GET("/health", h.HandleHealth)
		env.GET("/ready", h.HandleReady)
		env.GET("/status", h.HandleStatus)
		env.POST("/syntax", h.HandleSyntax)
	}
}

// NewRouter builds the service router: recovery, tracing, the /v1/env
// endpoints and, when metrics is non-nil, GET /metrics.
func NewRouter(service string, h *Handlers, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(service))

	RegisterRoutes(router.Group("/v1"), h)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}
