package provision

import (
	"github.com/stackup-dev/stackup/internal/core/manifest"
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

// TopologicalSort sorts services by their dependencies using Kahn's
// algorithm. Services with no dependencies come first, so in the default
// stack the database container is created before the application container
// begins its startup sequence. Start order is all this guarantees -
// readiness is the readiness probe's job.
//
// If a cycle exists (which parsing rejects), remaining services are
// appended to the result as a fallback.
//
// Example:
//
//	// Services: app → db
//	services := []manifest.Service{
//	    {Name: "app", DependsOn: []string{"db"}},
//	    {Name: "db"},
//	}
//	sorted := TopologicalSort(services)
//	// Result: [db, app]
func TopologicalSort(services []manifest.Service) []manifest.Service {
	if len(services) == 0 {
		return services
	}

	// Build dependency graph
	serviceMap := make(map[string]manifest.Service)
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
		inDegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	// Start with services that have no dependencies
	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	// Process queue (BFS)
	var result []manifest.Service
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if svc, ok := serviceMap[name]; ok {
			result = append(result, svc)
		}

		// Reduce in-degree for dependents
		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Cycle fallback: append whatever is left in declaration order
	if len(result) < len(services) {
		for _, svc := range services {
			found := false
			for _, r := range result {
				if r.Name == svc.Name {
					found = true
					break
				}
			}
			if !found {
				result = append(result, svc)
			}
		}
	}

	return result
}
