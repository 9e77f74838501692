package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/stackup-dev/stackup/internal/core/imagebuild"
	"github.com/stackup-dev/stackup/internal/core/manifest"
	"github.com/stackup-dev/stackup/internal/core/provision"
	"github.com/stackup-dev/stackup/internal/shell/dbwait"
	"github.com/stackup-dev/stackup/internal/shell/docker"
	"github.com/stackup-dev/stackup/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess       = 0
	ExitConfigError   = 1
	ExitUsageError    = 2
	ExitManifestError = 3
	ExitDockerError   = 4
	ExitDatabaseError = 5
	ExitCommandError  = 6
	ExitServerError   = 7
)

// AppError carries the exit code for a failed operation.
type AppError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *AppError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// =============================================================================
// App
// =============================================================================

// App wires config, journal, engine client and orchestrator behind the CLI
// commands. The engine and journal are opened on first use, so descriptor
// commands (render, init) work without a running Docker daemon.
type App struct {
	config *Config
	logger *slog.Logger

	journal      store.Store
	docker       docker.Client
	orchestrator *docker.Orchestrator
}

// NewApp creates the application.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	return &App{config: cfg, logger: logger}, nil
}

// Close releases any opened resources.
func (a *App) Close() {
	if a.docker != nil {
		if err := a.docker.Close(); err != nil {
			a.logger.Error("docker client close error", "error", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("journal close error", "error", err)
		}
	}
}

// Run dispatches a command.
func (a *App) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "up":
		return a.cmdUp(ctx)
	case "down":
		return a.cmdDown(ctx)
	case "destroy":
		return a.cmdDestroy(ctx, args)
	case "build":
		return a.cmdBuild(ctx)
	case "render":
		return a.cmdRender(args)
	case "init":
		return a.cmdInit()
	case "status":
		return a.cmdStatus(ctx)
	case "logs":
		return a.cmdLogs(ctx, args)
	case "runs":
		return a.cmdRuns(ctx)
	case "serve":
		return a.cmdServe(ctx)
	default:
		return &AppError{Op: "Run", Err: fmt.Errorf("unknown command %q", command), ExitCode: ExitUsageError}
	}
}

// =============================================================================
// Lazy Resources
// =============================================================================

// engine connects to the Docker daemon on first use.
func (a *App) engine() (*docker.Orchestrator, error) {
	if a.orchestrator != nil {
		return a.orchestrator, nil
	}

	cli, err := docker.NewDockerClient(a.config.Docker.Host)
	if err != nil {
		return nil, &AppError{Op: "engine", Err: err, ExitCode: ExitDockerError}
	}
	if err := cli.Ping(); err != nil {
		cli.Close()
		return nil, &AppError{Op: "engine", Err: err, ExitCode: ExitDockerError}
	}

	a.docker = cli
	a.orchestrator = docker.NewOrchestrator(cli, a.logger, dbwait.NewProbe(a.logger))
	return a.orchestrator, nil
}

// runJournal opens the run journal on first use.
func (a *App) runJournal() (store.Store, error) {
	if a.journal != nil {
		return a.journal, nil
	}

	dsn := a.config.Database.DSN
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &AppError{Op: "runJournal", Err: err, ExitCode: ExitDatabaseError}
		}
	}

	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		return nil, &AppError{Op: "runJournal", Err: err, ExitCode: ExitDatabaseError}
	}
	a.journal = s
	return a.journal, nil
}

// =============================================================================
// Descriptor Loading
// =============================================================================

// loadStack parses the configured manifest, falling back to the built-in
// default stack when the manifest file does not exist.
func (a *App) loadStack() (*manifest.Stack, error) {
	content := manifest.DefaultManifest

	data, err := os.ReadFile(a.config.Stack.Manifest)
	switch {
	case err == nil:
		content = string(data)
	case errors.Is(err, os.ErrNotExist):
		a.logger.Debug("manifest not found, using built-in default", "path", a.config.Stack.Manifest)
	default:
		return nil, &AppError{Op: "loadStack", Err: err, ExitCode: ExitManifestError}
	}

	stack, err := manifest.Parse(a.config.Stack.Name, content)
	if err != nil {
		return nil, &AppError{Op: "loadStack", Err: err, ExitCode: ExitManifestError}
	}
	return stack, nil
}

// applyBuildConfig threads the configured DEV toggle into every
// build-sourced service, so one knob controls the build flavor across
// up and build.
func (a *App) applyBuildConfig(stack *manifest.Stack) {
	dev := strconv.FormatBool(a.config.Build.Dev)
	for i := range stack.Services {
		b := stack.Services[i].Build
		if b == nil {
			continue
		}
		if b.Args == nil {
			b.Args = make(map[string]string)
		}
		b.Args["DEV"] = dev
	}
}

// buildDefinition returns the image build definition with config overrides
// applied.
func (a *App) buildDefinition() imagebuild.Definition {
	def := imagebuild.Default()
	if a.config.Build.BaseImage != "" {
		def.BaseImage = a.config.Build.BaseImage
	}
	return def
}

// renderDockerfile returns the build descriptor content: the on-disk file
// when present, the rendered built-in definition otherwise.
func (a *App) renderDockerfile() (string, error) {
	data, err := os.ReadFile(a.config.Build.Dockerfile)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", &AppError{Op: "renderDockerfile", Err: err, ExitCode: ExitManifestError}
	}

	rendered, err := imagebuild.Render(a.buildDefinition())
	if err != nil {
		return "", &AppError{Op: "renderDockerfile", Err: err, ExitCode: ExitManifestError}
	}
	return rendered, nil
}

// =============================================================================
// Lifecycle Commands
// =============================================================================

func (a *App) cmdUp(ctx context.Context) error {
	stack, err := a.loadStack()
	if err != nil {
		return err
	}
	a.applyBuildConfig(stack)
	dockerfile, err := a.renderDockerfile()
	if err != nil {
		return err
	}
	orch, err := a.engine()
	if err != nil {
		return err
	}
	journal, err := a.runJournal()
	if err != nil {
		return err
	}

	run := &store.Run{StackName: stack.Name, Action: store.RunActionUp}
	if err := journal.CreateRun(ctx, run); err != nil {
		return err
	}

	containers, err := orch.Up(ctx, stack, docker.UpOptions{
		Dockerfile:   dockerfile,
		Variables:    a.config.Stack.Variables,
		ReadyTimeout: a.config.Stack.ReadyTimeout,
	})
	if err != nil {
		a.finishRun(ctx, journal, run.ID, store.RunStatusFailed, err)
		return &AppError{Op: "up", Err: err, ExitCode: ExitDockerError}
	}

	for _, c := range containers {
		a.appendEvent(ctx, journal, &store.Event{
			RunID:       run.ID,
			ServiceName: c.ServiceName,
			ContainerID: c.ID,
			Type:        "container_started",
		})
	}
	a.finishRun(ctx, journal, run.ID, store.RunStatusSucceeded, nil)

	fmt.Printf("Stack %s is up (%d containers)\n", stack.Name, len(containers))
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.HostPort != 0 {
				fmt.Printf("  %s: http://localhost:%d\n", c.ServiceName, p.HostPort)
			}
		}
	}
	return nil
}

func (a *App) cmdDown(ctx context.Context) error {
	orch, err := a.engine()
	if err != nil {
		return err
	}
	journal, err := a.runJournal()
	if err != nil {
		return err
	}

	run := &store.Run{StackName: a.config.Stack.Name, Action: store.RunActionDown}
	if err := journal.CreateRun(ctx, run); err != nil {
		return err
	}

	if err := orch.Down(ctx, a.config.Stack.Name); err != nil {
		a.finishRun(ctx, journal, run.ID, store.RunStatusFailed, err)
		return &AppError{Op: "down", Err: err, ExitCode: ExitDockerError}
	}
	a.finishRun(ctx, journal, run.ID, store.RunStatusSucceeded, nil)

	fmt.Printf("Stack %s stopped\n", a.config.Stack.Name)
	return nil
}

func (a *App) cmdDestroy(ctx context.Context, args []string) error {
	removeVolumes := false
	for _, arg := range args {
		switch arg {
		case "--volumes", "-v":
			removeVolumes = true
		default:
			return &AppError{Op: "destroy", Err: fmt.Errorf("unknown argument %q", arg), ExitCode: ExitUsageError}
		}
	}

	orch, err := a.engine()
	if err != nil {
		return err
	}
	journal, err := a.runJournal()
	if err != nil {
		return err
	}

	run := &store.Run{StackName: a.config.Stack.Name, Action: store.RunActionDestroy}
	if err := journal.CreateRun(ctx, run); err != nil {
		return err
	}

	if err := orch.Destroy(ctx, a.config.Stack.Name, removeVolumes); err != nil {
		a.finishRun(ctx, journal, run.ID, store.RunStatusFailed, err)
		return &AppError{Op: "destroy", Err: err, ExitCode: ExitDockerError}
	}
	a.finishRun(ctx, journal, run.ID, store.RunStatusSucceeded, nil)

	if removeVolumes {
		fmt.Printf("Stack %s destroyed, volumes removed\n", a.config.Stack.Name)
	} else {
		fmt.Printf("Stack %s destroyed, volumes kept\n", a.config.Stack.Name)
	}
	return nil
}

func (a *App) cmdBuild(ctx context.Context) error {
	stack, err := a.loadStack()
	if err != nil {
		return err
	}
	a.applyBuildConfig(stack)
	dockerfile, err := a.renderDockerfile()
	if err != nil {
		return err
	}
	if _, err := a.engine(); err != nil {
		return err
	}
	journal, err := a.runJournal()
	if err != nil {
		return err
	}

	run := &store.Run{StackName: stack.Name, Action: store.RunActionBuild}
	if err := journal.CreateRun(ctx, run); err != nil {
		return err
	}

	built := 0
	for _, svc := range stack.Services {
		if svc.Build == nil {
			continue
		}
		tag := provision.ImageTag(stack.Name, svc.Name)
		a.logger.Info("building image", "service", svc.Name, "tag", tag)
		if err := a.docker.BuildImage(docker.BuildSpec{
			Tag:        tag,
			ContextDir: svc.Build.Context,
			Dockerfile: dockerfile,
			Args:       svc.Build.Args,
		}); err != nil {
			a.finishRun(ctx, journal, run.ID, store.RunStatusFailed, err)
			return &AppError{Op: "build", Err: err, ExitCode: ExitDockerError}
		}
		a.appendEvent(ctx, journal, &store.Event{
			RunID:       run.ID,
			ServiceName: svc.Name,
			Type:        "image_built",
			Message:     tag,
		})
		built++
	}
	a.finishRun(ctx, journal, run.ID, store.RunStatusSucceeded, nil)

	fmt.Printf("Built %d image(s)\n", built)
	return nil
}

// =============================================================================
// Descriptor Commands
// =============================================================================

func (a *App) cmdRender(args []string) error {
	target := "manifest"
	if len(args) > 0 {
		target = args[0]
	}

	switch target {
	case "manifest":
		fmt.Print(manifest.DefaultManifest)
		return nil
	case "dockerfile":
		rendered, err := imagebuild.Render(a.buildDefinition())
		if err != nil {
			return &AppError{Op: "render", Err: err, ExitCode: ExitManifestError}
		}
		fmt.Print(rendered)
		return nil
	default:
		return &AppError{Op: "render", Err: fmt.Errorf("unknown target %q (want manifest or dockerfile)", target), ExitCode: ExitUsageError}
	}
}

func (a *App) cmdInit() error {
	rendered, err := imagebuild.Render(a.buildDefinition())
	if err != nil {
		return &AppError{Op: "init", Err: err, ExitCode: ExitManifestError}
	}

	files := map[string]string{
		a.config.Stack.Manifest:   manifest.DefaultManifest,
		a.config.Build.Dockerfile: rendered,
	}
	for path, content := range files {
		if _, err := os.Stat(path); err == nil {
			return &AppError{Op: "init", Err: fmt.Errorf("%s already exists", path), ExitCode: ExitCommandError}
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return &AppError{Op: "init", Err: err, ExitCode: ExitCommandError}
		}
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}

// =============================================================================
// Inspection Commands
// =============================================================================

func (a *App) cmdStatus(ctx context.Context) error {
	orch, err := a.engine()
	if err != nil {
		return err
	}

	status, err := orch.Status(ctx, a.config.Stack.Name)
	if err != nil {
		return &AppError{Op: "status", Err: err, ExitCode: ExitDockerError}
	}

	fmt.Printf("Stack: %s  Health: %s\n", status.Stack, status.Health)
	if journal, jerr := a.runJournal(); jerr == nil {
		if run, lerr := journal.LatestRun(ctx, a.config.Stack.Name); lerr == nil {
			fmt.Printf("Last run: %s %s (%s)\n",
				run.Action, run.Status, run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		} else if !errors.Is(lerr, store.ErrNotFound) {
			a.logger.Warn("failed to read run journal", "error", lerr)
		}
	}
	if len(status.Services) == 0 {
		fmt.Println("No containers")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATE\tHEALTH\tIMAGE\tPORTS")
	for _, svc := range status.Services {
		ports := ""
		for i, p := range svc.Ports {
			if i > 0 {
				ports += ", "
			}
			if p.HostPort != 0 {
				ports += fmt.Sprintf("%d->%d/%s", p.HostPort, p.ContainerPort, p.Protocol)
			} else {
				ports += fmt.Sprintf("%d/%s", p.ContainerPort, p.Protocol)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", svc.ServiceName, svc.State, svc.Health, svc.Image, ports)
	}
	return w.Flush()
}

func (a *App) cmdLogs(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return &AppError{Op: "logs", Err: errors.New("usage: stackup logs <service>"), ExitCode: ExitUsageError}
	}

	orch, err := a.engine()
	if err != nil {
		return err
	}

	out, err := orch.Logs(ctx, a.config.Stack.Name, args[0], "200")
	if err != nil {
		return &AppError{Op: "logs", Err: err, ExitCode: ExitDockerError}
	}
	fmt.Print(out)
	return nil
}

func (a *App) cmdRuns(ctx context.Context) error {
	journal, err := a.runJournal()
	if err != nil {
		return err
	}

	runs, err := journal.ListRuns(ctx, a.config.Stack.Name, 20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tACTION\tSTATUS\tDURATION\tERROR")
	for _, run := range runs {
		duration := "-"
		if run.Finished() && run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Action, run.Status, duration, run.Error)
	}
	return w.Flush()
}

// =============================================================================
// Journal Helpers
// =============================================================================

func (a *App) finishRun(ctx context.Context, journal store.Store, id string, status store.RunStatus, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := journal.FinishRun(ctx, id, status, msg); err != nil {
		a.logger.Warn("failed to record run result", "run_id", id, "error", err)
	}
}

func (a *App) appendEvent(ctx context.Context, journal store.Store, event *store.Event) {
	if err := journal.AppendEvent(ctx, event); err != nil {
		a.logger.Warn("failed to record run event", "run_id", event.RunID, "error", err)
	}
}
