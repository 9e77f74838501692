package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/build"
)

// =============================================================================
// Image Build
// =============================================================================

// BuildImage builds an image from a rendered build descriptor and a context
// directory. Build args (the DEV toggle among them) are threaded through to
// the descriptor's ARG conditionals. A failing build step is fatal - the
// engine aborts the build and the error surfaces here.
func (d *DockerClient) BuildImage(spec BuildSpec) error {
	ctx := context.Background()

	buildContext, err := tarBuildContext(spec.ContextDir, spec.Dockerfile)
	if err != nil {
		return NewEngineError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}

	args := make(map[string]*string, len(spec.Args))
	for k, v := range spec.Args {
		v := v
		args[k] = &v
	}

	resp, err := d.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:       []string{spec.Tag},
		Dockerfile: "Dockerfile",
		BuildArgs:  args,
		Remove:     true,
	})
	if err != nil {
		return NewEngineError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}
	defer resp.Body.Close()

	// The build stream is a sequence of JSON messages; an "error" field
	// anywhere in the stream means the build failed.
	if err := drainBuildStream(resp.Body); err != nil {
		return NewEngineError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}

	return nil
}

// buildMessage is the subset of the engine's build stream message we care
// about.
type buildMessage struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// drainBuildStream consumes the build output and returns the first build
// error, if any.
func drainBuildStream(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode build stream: %w", err)
		}
		if msg.Error != "" {
			if msg.ErrorDetail.Message != "" {
				return fmt.Errorf("%s", msg.ErrorDetail.Message)
			}
			return fmt.Errorf("%s", msg.Error)
		}
	}
}

// tarBuildContext tars the context directory, injecting the rendered
// Dockerfile. When dockerfile is non-empty it overrides any Dockerfile on
// disk.
func tarBuildContext(contextDir, dockerfile string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if contextDir != "" {
		err := filepath.WalkDir(contextDir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(contextDir, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			// Engine-irrelevant entries
			if rel == ".git" || strings.HasPrefix(rel, ".git/") {
				if entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			// The rendered descriptor wins over one on disk
			if dockerfile != "" && rel == "Dockerfile" {
				return nil
			}

			info, err := entry.Info()
			if err != nil {
				return err
			}
			// Regular files and directories only
			if !info.Mode().IsRegular() && !info.IsDir() {
				return nil
			}

			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = rel
			if info.IsDir() {
				hdr.Name += "/"
			}

			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(tw, f)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("tar build context: %w", err)
		}
	}

	if dockerfile != "" {
		hdr := &tar.Header{
			Name: "Dockerfile",
			Mode: 0644,
			Size: int64(len(dockerfile)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("tar build context: %w", err)
		}
		if _, err := tw.Write([]byte(dockerfile)); err != nil {
			return nil, fmt.Errorf("tar build context: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("tar build context: %w", err)
	}

	return &buf, nil
}
