// Package dbwait implements the PostgreSQL readiness probe. A database
// container reporting "running" may still be initializing, so the
// orchestrator blocks dependent services on a successful connection.
package dbwait

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/stackup-dev/stackup/internal/core/provision"
)

// =============================================================================
// PostgreSQL Readiness Probe
// =============================================================================

// Probe polls a PostgreSQL server until it accepts connections or the
// timeout elapses. On failure the caller aborts startup and surfaces the
// error, never starting dependents against a half-initialized database.
type Probe struct {
	logger *slog.Logger
	// Interval between connection attempts.
	Interval time.Duration
}

// NewProbe creates a probe with the default 1s polling interval.
func NewProbe(logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		logger:   logger,
		Interval: time.Second,
	}
}

// WaitReady blocks until the server at host:port accepts a connection with
// the given credentials, polling at the probe interval. It returns the last
// connection error when the timeout elapses first.
func (p *Probe) WaitReady(ctx context.Context, host string, port int, params provision.DatabaseParams, timeout time.Duration) error {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable connect_timeout=3",
		host, port, params.Name, params.User, params.Password,
	)

	deadline := time.Now().Add(timeout)
	attempt := 0

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		attempt++
		err := p.tryConnect(ctx, dsn)
		if err == nil {
			p.logger.Debug("database ready", "host", host, "port", port, "attempts", attempt)
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not ready after %s (%d attempts): %w", timeout, attempt, err)
		}
		p.logger.Debug("database unavailable, waiting", "host", host, "port", port, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryConnect opens a connection and pings once. sql.Open is lazy, so the
// ping is what actually touches the server.
func (p *Probe) tryConnect(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
