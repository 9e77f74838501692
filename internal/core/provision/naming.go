package provision

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates the network name for a stack.
// Pattern: stackup_{stack}
//
// Example:
//
//	NetworkName("dev") // returns "stackup_dev"
func NetworkName(stack string) string {
	return fmt.Sprintf("stackup_%s", stack)
}

// VolumeName generates a volume name for a stack.
// Pattern: stackup_{stack}_{volumeName}
//
// Example:
//
//	VolumeName("dev", "dev-db-data") // returns "stackup_dev_dev-db-data"
func VolumeName(stack, volumeName string) string {
	return fmt.Sprintf("stackup_%s_%s", stack, volumeName)
}

// ContainerName generates a container name for a service in a stack.
// Pattern: stackup_{stack}_{serviceName}
//
// Example:
//
//	ContainerName("dev", "db") // returns "stackup_dev_db"
func ContainerName(stack, serviceName string) string {
	return fmt.Sprintf("stackup_%s_%s", stack, serviceName)
}

// ImageTag generates the tag for an image built from a service's build
// descriptor. Pattern: stackup/{stack}-{serviceName}:latest
func ImageTag(stack, serviceName string) string {
	return fmt.Sprintf("stackup/%s-%s:latest", stack, serviceName)
}
