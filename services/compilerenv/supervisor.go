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
	"context"
	"fmt"
	"time"

	"github.com/cenk/backoff"

	"github.com/AleutianAI/webdemo/pkg/logging"
)

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// InitialInterval is the first retry delay. Defaults to 1s.
	InitialInterval time.Duration
	// MaxInterval caps the retry delay. Defaults to 1m.
	MaxInterval time.Duration
	// MaxElapsed stops retrying after this long. Zero retries forever.
	MaxElapsed time.Duration

	Logger *logging.Logger
}

// Supervisor retries a failed bootstrap with exponential backoff, and
// immediately when Trigger is called (for example on a settings change).
type Supervisor struct {
	init     *Initializer
	opts     SupervisorOptions
	logger   *logging.Logger
	triggers chan struct{}
}

// NewSupervisor creates a Supervisor for init.
func NewSupervisor(init *Initializer, opts SupervisorOptions) *Supervisor {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = time.Second
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = time.Minute
	}
	if opts.MaxInterval < opts.InitialInterval {
		opts.MaxInterval = opts.InitialInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Supervisor{
		init:     init,
		opts:     opts,
		logger:   logger.With("component", "supervisor"),
		triggers: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate retry. It never blocks; triggers that
// arrive while one is pending are merged.
func (s *Supervisor) Trigger() {
	select {
	case s.triggers <- struct{}{}:
	default:
	}
}

// Run bootstraps until success, then waits for ctx to be done.
//
// Errors: nil on success or cancellation; the last failure when
// MaxElapsed is exhausted.
func (s *Supervisor) Run(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval
	b.MaxElapsedTime = s.opts.MaxElapsed
	b.Reset()

	for {
		out := s.init.EnsureInitialized(ctx)
		if out.OK() {
			if !out.Cached {
				s.logger.Info("bootstrap complete", "status", out.Status.String(), "attempt", out.Attempt)
			}
			<-ctx.Done()
			return nil
		}
		if out.Reason == ReasonClosed {
			return nil
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("bootstrap gave up after %d attempts: %w", s.init.Attempts(), out.Err)
		}
		s.logger.Info("bootstrap failed, retrying",
			"reason", string(out.Reason), "retry_in", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		case <-s.triggers:
			timer.Stop()
			s.logger.Info("retry triggered")
		}
	}
}
