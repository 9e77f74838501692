package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-dev/stackup/internal/core/manifest"
)

// =============================================================================
// TopologicalSort Tests
// =============================================================================

func TestTopologicalSort_Empty(t *testing.T) {
	assert.Empty(t, TopologicalSort(nil))
}

func TestTopologicalSort_Single(t *testing.T) {
	services := []manifest.Service{{Name: "app"}}
	sorted := TopologicalSort(services)
	require.Len(t, sorted, 1)
	assert.Equal(t, "app", sorted[0].Name)
}

func TestTopologicalSort_DatabaseBeforeApp(t *testing.T) {
	services := []manifest.Service{
		{Name: "app", DependsOn: []string{"db"}},
		{Name: "db"},
	}
	sorted := TopologicalSort(services)
	require.Len(t, sorted, 2)
	assert.Equal(t, "db", sorted[0].Name)
	assert.Equal(t, "app", sorted[1].Name)
}

func TestTopologicalSort_Chain(t *testing.T) {
	services := []manifest.Service{
		{Name: "web", DependsOn: []string{"api"}},
		{Name: "api", DependsOn: []string{"db"}},
		{Name: "db"},
	}
	sorted := TopologicalSort(services)
	require.Len(t, sorted, 3)
	assert.Equal(t, "db", sorted[0].Name)
	assert.Equal(t, "api", sorted[1].Name)
	assert.Equal(t, "web", sorted[2].Name)
}

func TestTopologicalSort_Diamond(t *testing.T) {
	services := []manifest.Service{
		{Name: "web", DependsOn: []string{"api", "cache"}},
		{Name: "api", DependsOn: []string{"db"}},
		{Name: "cache", DependsOn: []string{"db"}},
		{Name: "db"},
	}
	sorted := TopologicalSort(services)
	require.Len(t, sorted, 4)

	pos := make(map[string]int, len(sorted))
	for i, svc := range sorted {
		pos[svc.Name] = i
	}
	assert.Less(t, pos["db"], pos["api"])
	assert.Less(t, pos["db"], pos["cache"])
	assert.Less(t, pos["api"], pos["web"])
	assert.Less(t, pos["cache"], pos["web"])
}

func TestTopologicalSort_CycleFallbackKeepsAllServices(t *testing.T) {
	// Parsing rejects cycles; the sort still must not lose services.
	services := []manifest.Service{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}
	sorted := TopologicalSort(services)
	assert.Len(t, sorted, 2)
}
