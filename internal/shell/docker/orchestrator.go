package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/stackup-dev/stackup/internal/core/manifest"
	"github.com/stackup-dev/stackup/internal/core/monitoring"
	"github.com/stackup-dev/stackup/internal/core/provision"
)

// =============================================================================
// Orchestrator - Manages Stack Lifecycle
// =============================================================================

// DatabaseProbe waits until a PostgreSQL service accepts connections.
// Container start order alone does not guarantee readiness, so the
// orchestrator gates dependent services on this probe.
type DatabaseProbe interface {
	WaitReady(ctx context.Context, host string, port int, params provision.DatabaseParams, timeout time.Duration) error
}

// Orchestrator manages the lifecycle of stacks using the Docker engine.
type Orchestrator struct {
	docker  Client
	logger  *slog.Logger
	dbProbe DatabaseProbe
}

// NewOrchestrator creates a new orchestrator. dbProbe may be nil, in which
// case readiness gating falls back to container state only.
func NewOrchestrator(docker Client, logger *slog.Logger, dbProbe DatabaseProbe) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		docker:  docker,
		logger:  logger,
		dbProbe: dbProbe,
	}
}

// UpOptions carries the per-run inputs for Up.
type UpOptions struct {
	// Dockerfile is the rendered build descriptor used for services that
	// declare a build source.
	Dockerfile string
	// Variables are substituted into ${VAR} placeholders in service
	// environments.
	Variables map[string]string
	// ReadyTimeout bounds the database readiness probe. Zero means the
	// default of 60s.
	ReadyTimeout time.Duration
	// PostgresPort is the in-network port probed for readiness. Zero
	// means the default of 5432.
	PostgresPort int
}

// StackContainer describes one started container.
type StackContainer struct {
	ID          string              `json:"id"`
	ServiceName string              `json:"service_name"`
	Image       string              `json:"image"`
	Status      string              `json:"status"`
	Ports       []provision.PortPlan `json:"ports,omitempty"`
}

const defaultReadyTimeout = 60 * time.Second
const defaultPostgresPort = 5432

// =============================================================================
// Up
// =============================================================================

// Up creates and starts all containers for a stack: network, named
// volumes, images (built or pulled), then containers in dependency order.
// Database services are probed for readiness before their dependents
// start. Any failure rolls back the containers created in this run.
func (o *Orchestrator) Up(ctx context.Context, stack *manifest.Stack, opts UpOptions) ([]StackContainer, error) {
	o.logger.Info("starting stack",
		"stack", stack.Name,
		"services", len(stack.Services),
		"volumes", len(stack.Volumes),
	)

	if opts.ReadyTimeout == 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.PostgresPort == 0 {
		opts.PostgresPort = defaultPostgresPort
	}

	// 1. Create the stack network
	networkName := provision.NetworkName(stack.Name)
	networkID, networkCreated, err := o.createStackNetwork(stack.Name, networkName)
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	o.logger.Debug("created network", "network_id", networkID, "network_name", networkName)

	// A network reused from a previous run is not ours to remove.
	removeNetwork := func() {
		if networkCreated {
			_ = o.docker.RemoveNetwork(networkID)
		}
	}

	// 2. Create named volumes. Created on first use; an existing volume is
	// reused so data persists across restarts.
	for _, vol := range stack.Volumes {
		if vol.External {
			continue
		}
		volumeName := provision.VolumeName(stack.Name, vol.Name)
		if _, err := o.createStackVolume(stack.Name, volumeName); err != nil {
			removeNetwork()
			return nil, fmt.Errorf("failed to create volume %s: %w", vol.Name, err)
		}
		o.logger.Debug("created volume", "volume_name", volumeName)
	}

	// 3. Build or pull images
	if err := o.ensureImages(stack, opts); err != nil {
		removeNetwork()
		return nil, err
	}

	// 4. Check for existing containers (restart case)
	existingContainers, _ := o.docker.ListContainers(ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", provision.LabelStack, stack.Name),
		},
	})
	existingByService := make(map[string]ContainerInfo)
	for _, c := range existingContainers {
		if svc, ok := c.Labels[provision.LabelService]; ok {
			existingByService[svc] = c
		}
	}

	// 5. Create and start containers in dependency order. Rollback covers
	// only what this run created: containers reused from a previous run
	// keep their identity (and their data) through a failed restart.
	var containers []StackContainer
	createdContainers := make(map[string]string) // serviceName -> containerID

	fail := func(err error) ([]StackContainer, error) {
		o.cleanupCreatedContainers(createdContainers)
		removeNetwork()
		return nil, err
	}

	orderedServices := provision.TopologicalSort(stack.Services)

	for _, svc := range orderedServices {
		var containerID string

		if existing, found := existingByService[svc.Name]; found {
			containerID = existing.ID
			o.logger.Debug("using existing container", "service", svc.Name, "container_id", shortID(containerID))
		} else {
			plan := provision.BuildContainerPlan(provision.BuildContainerPlanParams{
				StackName: stack.Name,
				Service:   svc,
				Variables: opts.Variables,
				Network:   networkName,
			})

			containerID, err = o.docker.CreateContainer(planToSpec(plan))
			if err != nil {
				return fail(fmt.Errorf("failed to create container %s: %w", svc.Name, err))
			}
			o.logger.Debug("created container", "service", svc.Name, "container_id", shortID(containerID))
			createdContainers[svc.Name] = containerID
		}

		if err := o.docker.StartContainer(containerID); err != nil {
			if !strings.Contains(err.Error(), "already started") && !strings.Contains(err.Error(), "is already running") {
				return fail(fmt.Errorf("failed to start container %s: %w", svc.Name, err))
			}
		}
		o.logger.Debug("started container", "service", svc.Name, "container_id", shortID(containerID))

		info, err := o.docker.InspectContainer(containerID)
		if err != nil {
			return fail(fmt.Errorf("failed to inspect container %s: %w", svc.Name, err))
		}

		// Start order got the database container up first; dependents
		// still must not proceed until it accepts connections.
		if isPostgresService(svc) && hasDependents(stack.Services, svc.Name) {
			if err := o.waitDatabaseReady(ctx, stack, svc, info, networkName, opts); err != nil {
				return fail(fmt.Errorf("database %s not ready: %w", svc.Name, err))
			}
		}

		containers = append(containers, StackContainer{
			ID:          info.ID,
			ServiceName: svc.Name,
			Image:       info.Image,
			Status:      string(info.Status),
			Ports:       convertPorts(info.Ports),
		})
	}

	o.logger.Info("stack started",
		"stack", stack.Name,
		"containers", len(containers),
	)

	return containers, nil
}

// ensureImages builds images for build-sourced services and pulls the rest.
func (o *Orchestrator) ensureImages(stack *manifest.Stack, opts UpOptions) error {
	for _, svc := range stack.Services {
		if svc.Build != nil {
			tag := provision.ImageTag(stack.Name, svc.Name)
			o.logger.Info("building image", "service", svc.Name, "tag", tag)
			if err := o.docker.BuildImage(BuildSpec{
				Tag:        tag,
				ContextDir: svc.Build.Context,
				Dockerfile: opts.Dockerfile,
				Args:       svc.Build.Args,
			}); err != nil {
				return fmt.Errorf("failed to build image for %s: %w", svc.Name, err)
			}
			continue
		}

		exists, _ := o.docker.ImageExists(svc.Image)
		if !exists {
			o.logger.Info("pulling image", "image", svc.Image)
			if err := o.docker.PullImage(svc.Image, PullOptions{}); err != nil {
				o.logger.Warn("failed to pull image, trying anyway", "image", svc.Image, "error", err)
			}
		}
	}
	return nil
}

// waitDatabaseReady runs the readiness probe against the database
// container's address on the stack network.
func (o *Orchestrator) waitDatabaseReady(ctx context.Context, stack *manifest.Stack, svc manifest.Service, info *ContainerInfo, networkName string, opts UpOptions) error {
	if o.dbProbe == nil {
		return o.waitRunning(ctx, info.ID, opts.ReadyTimeout)
	}

	params := databaseParams(svc)
	if !params.Complete() {
		// The server's seed env is incomplete; fall back to the client's
		// view of the connection from a dependent service.
		for _, dep := range stack.Services {
			clientParams := provision.ExtractDatabaseParams(dep.Environment)
			if clientParams.Complete() && clientParams.Host == svc.Name {
				params = clientParams
				break
			}
		}
	}

	host := info.Networks[networkName]
	if host == "" {
		// Without an address on the stack network, fall back to the
		// published port on localhost.
		host = "127.0.0.1"
		published := 0
		for _, p := range info.Ports {
			if p.ContainerPort == opts.PostgresPort && p.HostPort != 0 {
				published = p.HostPort
			}
		}
		if published == 0 {
			return o.waitRunning(ctx, info.ID, opts.ReadyTimeout)
		}
		o.logger.Debug("probing database via published port", "service", svc.Name, "port", published)
		return o.dbProbe.WaitReady(ctx, host, published, params, opts.ReadyTimeout)
	}

	o.logger.Debug("probing database", "service", svc.Name, "host", host, "port", opts.PostgresPort)
	return o.dbProbe.WaitReady(ctx, host, opts.PostgresPort, params, opts.ReadyTimeout)
}

// waitRunning polls a container until it reports running.
func (o *Orchestrator) waitRunning(ctx context.Context, containerID string, timeout time.Duration) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := o.docker.InspectContainer(containerID)
			if err != nil {
				return err
			}
			if info.Status == ContainerStatusRunning {
				return nil
			}
			if time.Now().After(deadline) {
				return ErrTimeout
			}
		}
	}
}

// =============================================================================
// Down
// =============================================================================

// Down stops all containers for a stack. Named volumes survive - they are
// destroyed only by Destroy with RemoveVolumes set.
func (o *Orchestrator) Down(ctx context.Context, stackName string) error {
	o.logger.Info("stopping stack", "stack", stackName)

	containers, err := o.docker.ListContainers(ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", provision.LabelStack, stackName),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	timeout := 10 * time.Second
	for _, c := range containers {
		if c.Status == ContainerStatusRunning {
			o.logger.Debug("stopping container", "container_id", shortID(c.ID), "name", c.Name)
			if err := o.docker.StopContainer(c.ID, &timeout); err != nil {
				o.logger.Warn("failed to stop container", "container_id", shortID(c.ID), "error", err)
				// Continue stopping others
			}
		}
	}

	o.logger.Info("stack stopped", "stack", stackName, "containers_stopped", len(containers))
	return nil
}

// =============================================================================
// Destroy
// =============================================================================

// Destroy removes all resources for a stack.
// Order: containers -> network -> volumes (volumes only when asked).
func (o *Orchestrator) Destroy(ctx context.Context, stackName string, removeVolumes bool) error {
	o.logger.Info("destroying stack", "stack", stackName, "remove_volumes", removeVolumes)

	containers, err := o.docker.ListContainers(ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", provision.LabelStack, stackName),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	timeout := 10 * time.Second
	for _, c := range containers {
		if c.Status == ContainerStatusRunning {
			_ = o.docker.StopContainer(c.ID, &timeout)
		}
		if err := o.docker.RemoveContainer(c.ID, RemoveOptions{Force: true, RemoveVolumes: false}); err != nil {
			o.logger.Warn("failed to remove container", "container_id", shortID(c.ID), "error", err)
		} else {
			o.logger.Debug("removed container", "container_id", shortID(c.ID))
		}
	}

	networkName := provision.NetworkName(stackName)
	if err := o.docker.RemoveNetwork(networkName); err != nil {
		o.logger.Warn("failed to remove network", "network", networkName, "error", err)
	} else {
		o.logger.Debug("removed network", "network", networkName)
	}

	// Volumes persist across restarts; destroying them is an explicit act.
	if removeVolumes {
		volumes, err := o.docker.ListVolumes(map[string]string{
			provision.LabelStack: stackName,
		})
		if err != nil {
			return fmt.Errorf("failed to list volumes: %w", err)
		}
		for _, name := range volumes {
			if err := o.docker.RemoveVolume(name, false); err != nil {
				o.logger.Warn("failed to remove volume", "volume", name, "error", err)
			} else {
				o.logger.Debug("removed volume", "volume", name)
			}
		}
	}

	o.logger.Info("stack destroyed", "stack", stackName)
	return nil
}

// =============================================================================
// Status
// =============================================================================

// ServiceStatus is the observed state of one service's container.
type ServiceStatus struct {
	ServiceName string                  `json:"service_name"`
	ContainerID string                  `json:"container_id"`
	Image       string                  `json:"image"`
	State       string                  `json:"state"`
	Health      monitoring.HealthStatus `json:"health"`
	Ports       []provision.PortPlan    `json:"ports,omitempty"`
}

// StackStatus aggregates service states for a stack.
type StackStatus struct {
	Stack    string                  `json:"stack"`
	Health   monitoring.HealthStatus `json:"health"`
	Services []ServiceStatus         `json:"services"`
}

// Status reports the observed state of a stack's containers.
func (o *Orchestrator) Status(ctx context.Context, stackName string) (*StackStatus, error) {
	containers, err := o.docker.ListContainers(ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", provision.LabelStack, stackName),
		},
	})
	if err != nil {
		return nil, err
	}

	status := &StackStatus{Stack: stackName}
	var healths []monitoring.ContainerHealth

	for _, c := range containers {
		serviceName := c.Labels[provision.LabelService]
		if serviceName == "" {
			// Fall back to the container name suffix
			parts := strings.Split(c.Name, "_")
			serviceName = parts[len(parts)-1]
		}

		restarts := 0
		if info, err := o.docker.InspectContainer(c.ID); err == nil {
			restarts = info.Restarts
		}
		health := monitoring.DetermineContainerHealth(c.State, restarts)

		status.Services = append(status.Services, ServiceStatus{
			ServiceName: serviceName,
			ContainerID: c.ID,
			Image:       c.Image,
			State:       c.State,
			Health:      health,
			Ports:       convertPorts(c.Ports),
		})
		healths = append(healths, monitoring.ContainerHealth{
			ServiceName: serviceName,
			Health:      health,
		})
	}

	status.Health = monitoring.AggregateHealth(healths)
	return status, nil
}

// =============================================================================
// Logs
// =============================================================================

// Logs returns recent logs for a service's container.
func (o *Orchestrator) Logs(ctx context.Context, stackName, serviceName, tail string) (string, error) {
	containers, err := o.docker.ListContainers(ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", provision.LabelStack, stackName),
		},
	})
	if err != nil {
		return "", err
	}

	for _, c := range containers {
		if c.Labels[provision.LabelService] != serviceName {
			continue
		}
		reader, err := o.docker.ContainerLogs(c.ID, LogOptions{
			Tail:       tail,
			Timestamps: true,
		})
		if err != nil {
			return "", err
		}
		defer reader.Close()

		// The engine multiplexes stdout and stderr into one stream with
		// frame headers; demux so callers see plain text.
		var buf strings.Builder
		if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
			return "", fmt.Errorf("failed to read logs: %w", err)
		}
		return buf.String(), nil
	}

	return "", NewEngineError("Logs", "container", serviceName, "no container for service", ErrContainerNotFound)
}

// =============================================================================
// Helper Functions
// =============================================================================

// createStackNetwork creates a network for a stack or reuses an existing
// one. The second return reports whether this call created it.
func (o *Orchestrator) createStackNetwork(stackName, networkName string) (string, bool, error) {
	networkID, err := o.docker.CreateNetwork(NetworkSpec{
		Name:   networkName,
		Driver: "bridge",
		Labels: map[string]string{
			provision.LabelManaged: "true",
			provision.LabelStack:   stackName,
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			o.logger.Debug("network already exists, reusing", "network_name", networkName)
			// Docker accepts name or ID
			return networkName, false, nil
		}
		return "", false, err
	}
	return networkID, true, nil
}

// createStackVolume creates a volume for a stack or reuses an existing one.
func (o *Orchestrator) createStackVolume(stackName, volumeName string) (string, error) {
	volID, err := o.docker.CreateVolume(VolumeSpec{
		Name: volumeName,
		Labels: map[string]string{
			provision.LabelManaged: "true",
			provision.LabelStack:   stackName,
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			o.logger.Debug("volume already exists, reusing", "volume_name", volumeName)
			return volumeName, nil
		}
		return "", err
	}
	return volID, nil
}

// planToSpec translates a container plan to an engine container spec.
func planToSpec(plan provision.ContainerPlan) ContainerSpec {
	spec := ContainerSpec{
		Name:         plan.Name,
		Image:        plan.Image,
		Command:      plan.Command,
		Env:          plan.Env,
		Labels:       plan.Labels,
		Network:      plan.Network,
		NetworkAlias: plan.Alias,
	}
	for _, p := range plan.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}
	for _, v := range plan.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}
	return spec
}

// cleanupCreatedContainers stops and removes all created containers.
func (o *Orchestrator) cleanupCreatedContainers(containers map[string]string) {
	timeout := 5 * time.Second
	for name, id := range containers {
		_ = o.docker.StopContainer(id, &timeout)
		_ = o.docker.RemoveContainer(id, RemoveOptions{Force: true})
		o.logger.Debug("cleaned up container", "service", name, "container_id", shortID(id))
	}
}

// convertPorts converts engine port bindings to plan port bindings.
func convertPorts(ports []PortBinding) []provision.PortPlan {
	var result []provision.PortPlan
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		result = append(result, provision.PortPlan{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      proto,
			HostIP:        p.HostIP,
		})
	}
	return result
}

// isPostgresService reports whether a service looks like a PostgreSQL
// database, going by the seed environment its image consumes.
func isPostgresService(svc manifest.Service) bool {
	_, ok := svc.Environment["POSTGRES_DB"]
	return ok
}

// hasDependents reports whether any service depends on the named one.
func hasDependents(services []manifest.Service, name string) bool {
	for _, svc := range services {
		for _, dep := range svc.DependsOn {
			if dep == name {
				return true
			}
		}
	}
	return false
}

// databaseParams extracts the connection parameters from a database
// service's seed environment.
func databaseParams(svc manifest.Service) provision.DatabaseParams {
	return provision.DatabaseParams{
		Host:     svc.Name,
		Name:     svc.Environment["POSTGRES_DB"],
		User:     svc.Environment["POSTGRES_USER"],
		Password: svc.Environment["POSTGRES_PASSWORD"],
	}
}

// shortID trims a container ID for logs.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
