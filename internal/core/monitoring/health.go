// Package monitoring provides pure functions for stack health logic.
// No I/O here - the shell feeds in container states.
package monitoring

// =============================================================================
// Health Types
// =============================================================================

// HealthStatus is the coarse health of a container or a whole stack.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ContainerHealth pairs a service with its observed health.
type ContainerHealth struct {
	ServiceName string       `json:"service_name"`
	Health      HealthStatus `json:"health"`
}

// =============================================================================
// Health Aggregation (Pure Functions)
// =============================================================================

// AggregateHealth determines overall stack health from container states.
func AggregateHealth(containers []ContainerHealth) HealthStatus {
	if len(containers) == 0 {
		return HealthStatusUnknown
	}

	unhealthy := 0
	degraded := 0

	for _, c := range containers {
		switch c.Health {
		case HealthStatusUnhealthy:
			unhealthy++
		case HealthStatusDegraded:
			degraded++
		case HealthStatusUnknown:
			// Unknown containers count as degraded
			degraded++
		}
	}

	// All unhealthy = unhealthy
	if unhealthy == len(containers) {
		return HealthStatusUnhealthy
	}
	// Any unhealthy or degraded = degraded
	if unhealthy > 0 || degraded > 0 {
		return HealthStatusDegraded
	}
	// All healthy = healthy
	return HealthStatusHealthy
}

// DetermineContainerHealth maps engine container state to a health status.
//
// Parameters:
//   - status: container status (running, exited, created, ...)
//   - restarts: restarts since container creation
func DetermineContainerHealth(status string, restarts int) HealthStatus {
	// Non-running containers are unhealthy
	if status != "running" {
		return HealthStatusUnhealthy
	}

	// Many restarts indicate instability
	if restarts > 3 {
		return HealthStatusDegraded
	}

	return HealthStatusHealthy
}
