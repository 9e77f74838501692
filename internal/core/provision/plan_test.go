package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-dev/stackup/internal/core/manifest"
)

// =============================================================================
// BuildContainerPlan Tests
// =============================================================================

func appService() manifest.Service {
	return manifest.Service{
		Name: "app",
		Build: &manifest.BuildConfig{
			Context: ".",
			Args:    map[string]string{"DEV": "true"},
		},
		Command: []string{"sh", "-c", "python manage.py wait_for_db && python manage.py migrate && python manage.py runserver 0.0.0.0:8000"},
		Ports:   []manifest.Port{{Target: 8000, Published: 8000}},
		Environment: map[string]string{
			"DB_HOST": "db",
			"DB_NAME": "devdb",
			"DB_USER": "devuser",
			"DB_PASS": "${DB_PASS:-changeme}",
		},
		Volumes: []manifest.VolumeMount{
			{Type: manifest.VolumeMountTypeBind, Source: "./app", Target: "/app"},
			{Type: manifest.VolumeMountTypeVolume, Source: "dev-static-data", Target: "/vol/web"},
		},
		DependsOn: []string{"db"},
	}
}

func TestBuildContainerPlan_App(t *testing.T) {
	plan := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service:   appService(),
		Network:   "stackup_dev",
	})

	assert.Equal(t, "stackup_dev_app", plan.Name)
	// Build-sourced services run the locally built tag.
	assert.Equal(t, "stackup/dev-app:latest", plan.Image)
	assert.Equal(t, "stackup_dev", plan.Network)
	assert.Equal(t, "app", plan.Alias)

	require.Len(t, plan.Ports, 1)
	assert.Equal(t, 8000, plan.Ports[0].ContainerPort)
	assert.Equal(t, 8000, plan.Ports[0].HostPort)
}

func TestBuildContainerPlan_Labels(t *testing.T) {
	plan := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service:   appService(),
		Network:   "stackup_dev",
	})

	assert.Equal(t, "true", plan.Labels[LabelManaged])
	assert.Equal(t, "dev", plan.Labels[LabelStack])
	assert.Equal(t, "app", plan.Labels[LabelService])
}

func TestBuildContainerPlan_NamedVolumePrefixed(t *testing.T) {
	plan := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service:   appService(),
		Network:   "stackup_dev",
	})

	require.Len(t, plan.Volumes, 2)
	// Bind mounts pass through untouched.
	assert.Equal(t, "./app", plan.Volumes[0].Source)
	assert.Equal(t, "/app", plan.Volumes[0].Target)
	// Named volumes get the stack prefix.
	assert.Equal(t, "stackup_dev_dev-static-data", plan.Volumes[1].Source)
	assert.Equal(t, "/vol/web", plan.Volumes[1].Target)
}

func TestBuildContainerPlan_EnvironmentSubstitution(t *testing.T) {
	plan := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service:   appService(),
		Variables: map[string]string{"DB_PASS": "secret"},
		Network:   "stackup_dev",
	})

	assert.Equal(t, "db", plan.Env["DB_HOST"])
	assert.Equal(t, "secret", plan.Env["DB_PASS"])
}

func TestBuildContainerPlan_EnvironmentDefault(t *testing.T) {
	plan := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service:   appService(),
		Network:   "stackup_dev",
	})

	assert.Equal(t, "changeme", plan.Env["DB_PASS"])
}

func TestBuildContainerPlan_ImageService(t *testing.T) {
	svc := manifest.Service{
		Name:  "db",
		Image: "postgres:13-alpine",
		Volumes: []manifest.VolumeMount{
			{Type: manifest.VolumeMountTypeVolume, Source: "dev-db-data", Target: "/var/lib/postgresql/data"},
		},
		Environment: map[string]string{
			"POSTGRES_DB":       "devdb",
			"POSTGRES_USER":     "devuser",
			"POSTGRES_PASSWORD": "changeme",
		},
	}
	plan := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service:   svc,
		Network:   "stackup_dev",
	})

	assert.Equal(t, "stackup_dev_db", plan.Name)
	assert.Equal(t, "postgres:13-alpine", plan.Image)
	require.Len(t, plan.Volumes, 1)
	assert.Equal(t, "stackup_dev_dev-db-data", plan.Volumes[0].Source)
	assert.Equal(t, "devdb", plan.Env["POSTGRES_DB"])
}

func TestBuildContainerPlan_ServiceLabelsMerged(t *testing.T) {
	svc := appService()
	svc.Labels = map[string]string{"custom": "label"}
	plan := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service:   svc,
		Network:   "stackup_dev",
	})
	assert.Equal(t, "label", plan.Labels["custom"])
	assert.Equal(t, "true", plan.Labels[LabelManaged])
}
