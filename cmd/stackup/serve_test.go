package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-dev/stackup/internal/shell/docker"
	"github.com/stackup-dev/stackup/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

// noopClient satisfies docker.Client with empty results, enough for the
// read-only status handlers.
type noopClient struct{}

func (noopClient) CreateContainer(spec docker.ContainerSpec) (string, error) { return "", nil }
func (noopClient) StartContainer(id string) error                            { return nil }
func (noopClient) StopContainer(id string, timeout *time.Duration) error     { return nil }
func (noopClient) RemoveContainer(id string, opts docker.RemoveOptions) error {
	return nil
}
func (noopClient) InspectContainer(id string) (*docker.ContainerInfo, error) {
	return nil, docker.ErrContainerNotFound
}
func (noopClient) ListContainers(opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	return nil, nil
}
func (noopClient) ContainerLogs(id string, opts docker.LogOptions) (io.ReadCloser, error) {
	return nil, docker.ErrContainerNotFound
}
func (noopClient) CreateNetwork(spec docker.NetworkSpec) (string, error) { return spec.Name, nil }
func (noopClient) RemoveNetwork(id string) error                         { return nil }
func (noopClient) CreateVolume(spec docker.VolumeSpec) (string, error)   { return spec.Name, nil }
func (noopClient) RemoveVolume(name string, force bool) error            { return nil }
func (noopClient) ListVolumes(labelFilter map[string]string) ([]string, error) {
	return nil, nil
}
func (noopClient) PullImage(image string, opts docker.PullOptions) error { return nil }
func (noopClient) BuildImage(spec docker.BuildSpec) error                { return nil }
func (noopClient) ImageExists(image string) (bool, error)                { return false, nil }
func (noopClient) Ping() error                                           { return nil }
func (noopClient) Close() error                                          { return nil }

func setupTestApp(t *testing.T) *App {
	t.Helper()

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	journal, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	return &App{
		config:       cfg,
		logger:       logger,
		journal:      journal,
		orchestrator: docker.NewOrchestrator(noopClient{}, logger, nil),
	}
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestServeHealth(t *testing.T) {
	app := setupTestApp(t)
	srv := httptest.NewServer(app.serveRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeStackStatus(t *testing.T) {
	app := setupTestApp(t)
	srv := httptest.NewServer(app.serveRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body docker.StackStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "dev", body.Stack)
	// Nothing running against the empty engine
	assert.Empty(t, body.Services)
}

func TestServeListRuns(t *testing.T) {
	app := setupTestApp(t)

	run := &store.Run{StackName: "dev", Action: store.RunActionUp}
	require.NoError(t, app.journal.CreateRun(context.Background(), run))

	srv := httptest.NewServer(app.serveRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Runs []store.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, run.ID, body.Runs[0].ID)
}

func TestServeLatestRun(t *testing.T) {
	app := setupTestApp(t)

	older := &store.Run{StackName: "dev", Action: store.RunActionUp,
		StartedAt: time.Now().UTC().Add(-time.Minute)}
	require.NoError(t, app.journal.CreateRun(context.Background(), older))
	newer := &store.Run{StackName: "dev", Action: store.RunActionDown,
		StartedAt: time.Now().UTC()}
	require.NoError(t, app.journal.CreateRun(context.Background(), newer))

	srv := httptest.NewServer(app.serveRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs/latest")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body store.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, newer.ID, body.ID)
	assert.Equal(t, store.RunActionDown, body.Action)
}

func TestServeLatestRunEmpty(t *testing.T) {
	app := setupTestApp(t)
	srv := httptest.NewServer(app.serveRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs/latest")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeGetRunNotFound(t *testing.T) {
	app := setupTestApp(t)
	srv := httptest.NewServer(app.serveRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeRunEvents(t *testing.T) {
	app := setupTestApp(t)

	run := &store.Run{StackName: "dev", Action: store.RunActionUp}
	require.NoError(t, app.journal.CreateRun(context.Background(), run))
	require.NoError(t, app.journal.AppendEvent(context.Background(), &store.Event{
		RunID:       run.ID,
		ServiceName: "db",
		Type:        "container_started",
	}))

	srv := httptest.NewServer(app.serveRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + run.ID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []store.Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "db", body.Events[0].ServiceName)
}
