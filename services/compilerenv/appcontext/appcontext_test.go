// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package appcontext

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/webdemo/services/compilerenv/environment"
)

func newApp(t *testing.T) *environment.Application {
	t.Helper()
	env, err := environment.NewBuilder(environment.BuilderOptions{}).New(context.Background())
	require.NoError(t, err)
	return env.Application()
}

func TestContext_SetOnce(t *testing.T) {
	c := New()
	_, ok := c.Current()
	assert.False(t, ok)

	app := newApp(t)
	require.NoError(t, c.Publish(app))
	require.NoError(t, c.Publish(app), "republishing the same application is a no-op")

	got, ok := c.Current()
	require.True(t, ok)
	assert.Same(t, app, got)

	assert.ErrorIs(t, c.Publish(newApp(t)), ErrAlreadyPublished)
	got, _ = c.Current()
	assert.Same(t, app, got)
}

func TestContext_Nil(t *testing.T) {
	assert.ErrorIs(t, New().Publish(nil), ErrNilApplication)
}

func TestContext_ConcurrentPublishOneWinner(t *testing.T) {
	c := New()
	apps := make([]*environment.Application, 8)
	for i := range apps {
		apps[i] = newApp(t)
	}

	var wg sync.WaitGroup
	results := make([]error, len(apps))
	for i := range apps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Publish(apps[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestDefaultAccessors(t *testing.T) {
	prev := Default
	Default = New()
	t.Cleanup(func() { Default = prev })

	assert.Nil(t, FileTypes())
	assert.Nil(t, Encodings())

	app := newApp(t)
	require.NoError(t, Publish(app))

	got, ok := Current()
	require.True(t, ok)
	assert.Same(t, app, got)
	assert.Same(t, app.FileTypes(), FileTypes())
	assert.Same(t, app.Encodings(), Encodings())
}
