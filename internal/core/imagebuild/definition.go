// Package imagebuild contains the declarative model for the application
// runtime image and its deterministic rendering to a Dockerfile. All
// functions here are pure; handing the rendered file to the engine is the
// shell's job.
package imagebuild

// =============================================================================
// Build Definition Types
// =============================================================================

// Definition describes how to produce the application runtime image.
//
// The provisioning contract is ordered and conditional:
//  1. Install the base runtime.
//  2. Install always-required dependencies into an isolated environment.
//  3. Install development-only dependencies when the dev build arg is true.
//  4. Remove temporary build artifacts and build-only system packages.
//  5. Create a non-privileged execution identity (no login shell, no home).
//  6. Create data directories and hand them to that identity.
//  7. Put the isolated environment first on the executable search path.
//  8. Switch to the non-privileged identity before any further execution.
//
// Any step failing is fatal to the build; there are no retries and no
// partial success.
type Definition struct {
	// BaseImage is the fixed base runtime layer, e.g. "python:3.9-alpine3.13".
	BaseImage string

	// Maintainer is recorded as an image label when set.
	Maintainer string

	// Env holds runtime environment variables baked into the image.
	Env map[string]string

	// Requirements is the always-installed dependency manifest copied into
	// the image, e.g. "requirements.txt".
	Requirements string

	// DevRequirements is the development-only dependency manifest. It is
	// installed only when the DevArg build argument is true.
	DevRequirements string

	// SourceDir is the host directory copied to WorkDir.
	SourceDir string

	// WorkDir is the working directory inside the image.
	WorkDir string

	// ExposedPort is the declared application port.
	ExposedPort int

	// VirtualEnv is the isolated dependency environment path, prepended to
	// PATH so the image prefers it over system binaries.
	VirtualEnv string

	// RuntimePackages are system packages kept in the final image.
	RuntimePackages []string

	// BuildPackages are system packages needed only to compile
	// dependencies. They are installed under a named group and removed
	// once dependency installation finishes.
	BuildPackages []string

	// User is the non-privileged execution identity created without a
	// password prompt and without a home directory.
	User string

	// DataDirs are directories for persisted media/static assets, created
	// ahead of time and owned by User with 0755 permissions.
	DataDirs []string
}

// DevArg is the build argument that toggles installation of the
// development-only dependencies. It defaults to false.
const DevArg = "DEV"

// buildDepsGroup is the named apk virtual group holding build-only packages
// so they can be removed as a unit.
const buildDepsGroup = ".tmp-build-deps"

// Default returns the build definition for the application image the
// default stack manifest references.
func Default() Definition {
	return Definition{
		BaseImage:       "python:3.9-alpine3.13",
		Env:             map[string]string{"PYTHONUNBUFFERED": "1"},
		Requirements:    "requirements.txt",
		DevRequirements: "requirements.dev.txt",
		SourceDir:       "./app",
		WorkDir:         "/app",
		ExposedPort:     8000,
		VirtualEnv:      "/py",
		RuntimePackages: []string{"postgresql-client"},
		BuildPackages:   []string{"build-base", "postgresql-dev", "musl-dev"},
		User:            "django-user",
		DataDirs:        []string{"/vol/web/media", "/vol/web/static"},
	}
}
