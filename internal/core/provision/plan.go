package provision

import (
	"github.com/stackup-dev/stackup/internal/core/manifest"
)

// =============================================================================
// Plan Types
// =============================================================================

// Engine labels applied to every resource stackup creates, so resources
// can be listed and torn down by label rather than by guessing names.
const (
	LabelManaged = "dev.stackup.managed"
	LabelStack   = "dev.stackup.stack"
	LabelService = "dev.stackup.service"
)

// ContainerPlan is the engine-agnostic description of one container to
// create. The shell translates it to an engine request.
type ContainerPlan struct {
	Name    string
	Image   string
	Command []string
	Env     map[string]string
	Labels  map[string]string
	Ports   []PortPlan
	Volumes []VolumePlan
	Network string
	// Alias is the service name registered as network DNS, so DB_HOST=db
	// resolves from the application container.
	Alias string
}

// PortPlan is a host-to-container port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// VolumePlan is a single mount: a named volume (stack-prefixed) or a
// host path bind.
type VolumePlan struct {
	Source   string
	Target   string
	ReadOnly bool
}

// BuildContainerPlanParams carries the inputs for BuildContainerPlan.
type BuildContainerPlanParams struct {
	StackName string
	Service   manifest.Service
	Variables map[string]string
	Network   string
}

// =============================================================================
// Container Plan Building
// =============================================================================

// BuildContainerPlan builds a ContainerPlan from a manifest service.
//
// This is a pure function that transforms service definitions and stack
// parameters into a plan the shell can execute:
//   - Generates the container name using ContainerName()
//   - Resolves the image: built tag for build-sourced services, the
//     declared image otherwise
//   - Substitutes ${VAR} placeholders in environment values
//   - Prefixes named volumes with the stack name
//   - Applies the stackup engine labels
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	svc := params.Service

	image := svc.Image
	if svc.Build != nil {
		image = ImageTag(params.StackName, svc.Name)
	}

	plan := ContainerPlan{
		Name:    ContainerName(params.StackName, svc.Name),
		Image:   image,
		Command: svc.Command,
		Env:     make(map[string]string),
		Labels: map[string]string{
			LabelManaged: "true",
			LabelStack:   params.StackName,
			LabelService: svc.Name,
		},
		Network: params.Network,
		Alias:   svc.Name,
	}

	for k, v := range svc.Environment {
		plan.Env[k] = SubstituteVariables(v, params.Variables)
	}

	for _, p := range svc.Ports {
		plan.Ports = append(plan.Ports, PortPlan{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		source := v.Source
		// Replace named volume with stack-prefixed name
		if v.Type == manifest.VolumeMountTypeVolume {
			source = VolumeName(params.StackName, v.Source)
		}
		plan.Volumes = append(plan.Volumes, VolumePlan{
			Source:   source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	// Copy service labels on top of the engine labels
	for k, v := range svc.Labels {
		plan.Labels[k] = v
	}

	return plan
}
