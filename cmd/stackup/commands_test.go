package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-dev/stackup/internal/core/manifest"
)

// =============================================================================
// Build Config Tests
// =============================================================================

const noDevArgManifest = `
services:
  app:
    build:
      context: .
    ports:
      - "8000:8000"
  db:
    image: postgres:13-alpine
`

func TestApplyBuildConfigInjectsDevArg(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	app := &App{config: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	stack, err := manifest.Parse("dev", noDevArgManifest)
	require.NoError(t, err)

	app.applyBuildConfig(stack)

	svc := stack.Service("app")
	require.NotNil(t, svc)
	require.NotNil(t, svc.Build)
	assert.Equal(t, "true", svc.Build.Args["DEV"])

	// Image-sourced services have no build to configure
	assert.Nil(t, stack.Service("db").Build)
}

func TestApplyBuildConfigOverridesManifestDevArg(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Build.Dev = false
	app := &App{config: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	stack, err := manifest.Parse("dev", manifest.DefaultManifest)
	require.NoError(t, err)

	app.applyBuildConfig(stack)

	svc := stack.Service("app")
	require.NotNil(t, svc)
	require.NotNil(t, svc.Build)
	assert.Equal(t, "false", svc.Build.Args["DEV"])
}
