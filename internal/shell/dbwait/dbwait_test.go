package dbwait

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-dev/stackup/internal/core/provision"
)

func testProbe() *Probe {
	p := NewProbe(slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.Interval = 10 * time.Millisecond
	return p
}

func TestNewProbeDefaults(t *testing.T) {
	p := NewProbe(nil)
	assert.Equal(t, time.Second, p.Interval)
	assert.NotNil(t, p.logger)
}

func TestWaitReadyTimesOutAgainstClosedPort(t *testing.T) {
	p := testProbe()

	params := provision.DatabaseParams{Name: "devdb", User: "devuser", Password: "x"}
	start := time.Now()
	// Port 1 is never a postgres server
	err := p.WaitReady(context.Background(), "127.0.0.1", 1, params, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
	// Bounded by the timeout plus one connect attempt, not hanging
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitReadyHonorsContextCancellation(t *testing.T) {
	p := testProbe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		params := provision.DatabaseParams{Name: "devdb", User: "devuser", Password: "x"}
		done <- p.WaitReady(ctx, "127.0.0.1", 1, params, time.Hour)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("probe did not stop on context cancellation")
	}
}
