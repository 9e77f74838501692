package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Naming Tests
// =============================================================================

func TestNetworkName(t *testing.T) {
	tests := []struct {
		name  string
		stack string
		want  string
	}{
		{"simple", "dev", "stackup_dev"},
		{"with-hyphen", "recipe-api", "stackup_recipe-api"},
		{"empty", "", "stackup_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NetworkName(tt.stack))
		})
	}
}

func TestVolumeName(t *testing.T) {
	tests := []struct {
		name   string
		stack  string
		volume string
		want   string
	}{
		{"db-data", "dev", "dev-db-data", "stackup_dev_dev-db-data"},
		{"static-data", "dev", "dev-static-data", "stackup_dev_dev-static-data"},
		{"underscore", "dev", "pg_data", "stackup_dev_pg_data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VolumeName(tt.stack, tt.volume))
		})
	}
}

func TestContainerName(t *testing.T) {
	tests := []struct {
		name    string
		stack   string
		service string
		want    string
	}{
		{"app", "dev", "app", "stackup_dev_app"},
		{"db", "dev", "db", "stackup_dev_db"},
		{"hyphens", "my-stack", "my-service", "stackup_my-stack_my-service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainerName(tt.stack, tt.service))
		})
	}
}

func TestImageTag(t *testing.T) {
	assert.Equal(t, "stackup/dev-app:latest", ImageTag("dev", "app"))
	assert.Equal(t, "stackup/ci-worker:latest", ImageTag("ci", "worker"))
}
