package imagebuild

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// =============================================================================
// Validation
// =============================================================================

// Validate checks that a definition can be rendered. Rendering an invalid
// definition is a programming error, so callers validate first.
func Validate(def Definition) error {
	if strings.TrimSpace(def.BaseImage) == "" {
		return NewDefinitionError("base_image", "base image is required", ErrNoBaseImage)
	}
	if strings.TrimSpace(def.User) == "" {
		return NewDefinitionError("user", "runtime user is required", ErrNoUser)
	}
	if def.User == "root" {
		return NewDefinitionError("user", "runtime user must not be root", ErrRootUser)
	}
	if def.ExposedPort < 0 || def.ExposedPort > 65535 {
		return NewDefinitionError("exposed_port", fmt.Sprintf("port %d out of range", def.ExposedPort), ErrInvalidPort)
	}
	if strings.TrimSpace(def.VirtualEnv) == "" {
		return NewDefinitionError("virtual_env", "dependency environment path is required", ErrNoVirtualEnv)
	}
	return nil
}

// =============================================================================
// Rendering
// =============================================================================

// Render renders a definition to Dockerfile text. The output is
// deterministic: the same definition always produces the same bytes.
//
// The dev toggle is rendered as a build ARG defaulting to false, so an
// image built without arguments never contains the development-only
// dependencies. The USER directive is always last - nothing executes as
// root after the provisioning RUN.
func Render(def Definition) (string, error) {
	if err := Validate(def); err != nil {
		return "", err
	}

	var b strings.Builder

	fmt.Fprintf(&b, "FROM %s\n", def.BaseImage)
	if def.Maintainer != "" {
		fmt.Fprintf(&b, "LABEL maintainer=%q\n", def.Maintainer)
	}
	b.WriteString("\n")

	// Runtime environment, sorted for deterministic output.
	if len(def.Env) > 0 {
		keys := make([]string, 0, len(def.Env))
		for k := range def.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "ENV %s=%s\n", k, def.Env[k])
		}
		b.WriteString("\n")
	}

	if def.Requirements != "" {
		fmt.Fprintf(&b, "COPY ./%s /tmp/%s\n", def.Requirements, def.Requirements)
	}
	if def.DevRequirements != "" {
		fmt.Fprintf(&b, "COPY ./%s /tmp/%s\n", def.DevRequirements, def.DevRequirements)
	}
	if def.SourceDir != "" && def.WorkDir != "" {
		fmt.Fprintf(&b, "COPY %s %s\n", def.SourceDir, def.WorkDir)
		fmt.Fprintf(&b, "WORKDIR %s\n", def.WorkDir)
	}
	if def.ExposedPort > 0 {
		fmt.Fprintf(&b, "EXPOSE %d\n", def.ExposedPort)
	}
	b.WriteString("\n")

	// The dev toggle. Defaults to false so production builds carry no
	// development tooling unless asked.
	fmt.Fprintf(&b, "ARG %s=false\n", DevArg)

	b.WriteString("RUN ")
	b.WriteString(strings.Join(provisioningSteps(def), " && \\\n    "))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "ENV PATH=\"%s:$PATH\"\n\n", path.Join(def.VirtualEnv, "bin"))

	// Privilege de-escalation happens last.
	fmt.Fprintf(&b, "USER %s\n", def.User)

	return b.String(), nil
}

// provisioningSteps returns the single RUN layer's shell steps in contract
// order. Keeping them in one layer keeps the removed build packages out of
// the final image.
func provisioningSteps(def Definition) []string {
	pip := path.Join(def.VirtualEnv, "bin", "pip")

	steps := []string{
		fmt.Sprintf("python -m venv %s", def.VirtualEnv),
		fmt.Sprintf("%s install --upgrade pip", pip),
	}

	if len(def.RuntimePackages) > 0 {
		steps = append(steps,
			fmt.Sprintf("apk add --update --no-cache %s", strings.Join(def.RuntimePackages, " ")))
	}
	if len(def.BuildPackages) > 0 {
		steps = append(steps,
			fmt.Sprintf("apk add --update --no-cache --virtual %s %s",
				buildDepsGroup, strings.Join(def.BuildPackages, " ")))
	}

	if def.Requirements != "" {
		steps = append(steps, fmt.Sprintf("%s install -r /tmp/%s", pip, def.Requirements))
	}
	if def.DevRequirements != "" {
		steps = append(steps, fmt.Sprintf(
			`if [ "$%s" = "true" ]; then %s install -r /tmp/%s ; fi`,
			DevArg, pip, def.DevRequirements))
	}

	// Build artifacts and build-only packages go before the image is sealed.
	steps = append(steps, "rm -rf /tmp")
	if len(def.BuildPackages) > 0 {
		steps = append(steps, fmt.Sprintf("apk del %s", buildDepsGroup))
	}

	// Non-privileged identity: no password prompt, no home directory.
	steps = append(steps, fmt.Sprintf("adduser --disabled-password --no-create-home %s", def.User))

	for _, dir := range def.DataDirs {
		steps = append(steps, fmt.Sprintf("mkdir -p %s", dir))
	}
	if len(def.DataDirs) > 0 {
		root := commonDataRoot(def.DataDirs)
		steps = append(steps,
			fmt.Sprintf("chown -R %s:%s %s", def.User, def.User, root),
			fmt.Sprintf("chmod -R 755 %s", root))
	}

	return steps
}

// commonDataRoot returns the deepest common ancestor of the data dirs, so
// ownership is set once for the whole tree.
func commonDataRoot(dirs []string) string {
	if len(dirs) == 0 {
		return "/"
	}
	root := dirs[0]
	for _, dir := range dirs[1:] {
		for !strings.HasPrefix(dir+"/", root+"/") {
			root = path.Dir(root)
			if root == "/" || root == "." {
				return "/"
			}
		}
	}
	return root
}
