package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stackup-dev/stackup/internal/shell/store"
)

// =============================================================================
// Status API Server
// =============================================================================

// cmdServe runs the local status API until interrupted. It exposes stack
// health and the run journal for editor integrations and dashboards.
func (a *App) cmdServe(ctx context.Context) error {
	// Handlers read a.orchestrator and a.journal, so open both up front.
	if _, err := a.engine(); err != nil {
		return err
	}
	if _, err := a.runJournal(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         a.config.Server.Address(),
		Handler:      a.serveRoutes(),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting status server", "address", a.config.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		a.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &AppError{Op: "serve", Err: err, ExitCode: ExitServerError}
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("status server shutdown error", "error", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// serveRoutes returns the router with all routes configured.
func (a *App) serveRoutes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(jsonContentType)

	// Health endpoint
	r.Get("/health", a.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", a.handleStackStatus)
		r.Get("/runs", a.handleListRuns)
		r.Get("/runs/latest", a.handleLatestRun)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Get("/runs/{id}/events", a.handleRunEvents)
	})

	return r
}

// jsonContentType sets Content-Type header to application/json.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (a *App) handleStackStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.orchestrator.Status(r.Context(), a.config.Stack.Name)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.journal.ListRuns(r.Context(), a.config.Stack.Name, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *App) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.journal.LatestRun(r.Context(), a.config.Stack.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := a.journal.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *App) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.journal.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	events, err := a.journal.ListEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// =============================================================================
// Response Helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
