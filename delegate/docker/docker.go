// Package docker implements the container delegate: the helper runs
// inside a fresh container via "<runtime> run". StagingRoot must be
// reachable at the identical absolute path inside and outside the
// container — the caller arranges that bind mount through RuntimeArgs,
// since only the caller knows what else needs to be visible in the
// container and how. The container runtime's CLI is shelled out to
// rather than its Go SDK imported directly; see DESIGN.md for why.
package docker

import (
	"context"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/process"
	"github.com/aledsdavies/delegatefunc/internal/invariant"
)

// Delegate runs the helper inside a container.
type Delegate struct {
	process.Delegate

	// Image is the container image to run; required.
	Image string
	// Runtime is the CLI binary to invoke, default "docker".
	Runtime string
	// RuntimeArgs are extra flags inserted before Image. Must include a
	// bind mount of StagingRoot to the identical absolute path inside
	// the container (e.g. "-v", "/srv/staging:/srv/staging") — the
	// helper is invoked with that same host path, so without it the
	// before-image will not exist inside the container.
	RuntimeArgs []string
}

// NewDelegate wraps next in a container link. stagingRoot must be a host
// path bind-mountable into the container at the identical path;
// construction fails without one or without image.
func NewDelegate(next delegate.Delegate, stagingRoot, image string) (*Delegate, error) {
	if stagingRoot == "" {
		return nil, &delegate.ConstructionError{Delegate: kind, Reason: "StagingRoot is required"}
	}
	if image == "" {
		return nil, &delegate.ConstructionError{Delegate: kind, Reason: "Image is required"}
	}
	d := &Delegate{Image: image, Runtime: "docker"}
	d.Next = next
	d.StagingRoot = stagingRoot
	return d, nil
}

func (d *Delegate) Invoke(ctx context.Context, rec *delegate.Record) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(d.Next != nil, "docker delegate must have a subdelegate")
	invariant.Precondition(d.StagingRoot != "", "docker delegate requires StagingRoot")
	invariant.Precondition(d.Image != "", "docker delegate requires Image")

	runtime := d.Runtime
	if runtime == "" {
		runtime = "docker"
	}

	prefix := []string{runtime, "run", "--workdir", "/tmp"}
	if d.Interactive {
		prefix = append(prefix, "-it")
	}
	prefix = append(prefix, d.RuntimeArgs...)
	prefix = append(prefix, d.Image)

	return d.Delegate.InvokeWithOptions(ctx, rec, process.Options{
		Prefix:      prefix,
		Interactive: d.Interactive,
		Self:        d,
	})
}

const kind = "docker"

func init() {
	delegate.RegisterKind(kind, func(cfg map[string]any, base delegate.Base) (delegate.Delegate, error) {
		d := &Delegate{Runtime: "docker"}
		d.Base = base
		if v, ok := cfg["staging_root"].(string); ok {
			d.StagingRoot = v
		}
		if v, ok := cfg["image"].(string); ok {
			d.Image = v
		}
		if v, ok := cfg["runtime"].(string); ok && v != "" {
			d.Runtime = v
		}
		if v, ok := cfg["runtime_args"].([]any); ok {
			for _, a := range v {
				if s, ok := a.(string); ok {
					d.RuntimeArgs = append(d.RuntimeArgs, s)
				}
			}
		}
		if v, ok := cfg["helper_path"].(string); ok {
			d.HelperPath = v
		}
		if v, ok := cfg["log_level"].(string); ok {
			d.LogLevel = v
		}
		if d.StagingRoot == "" {
			return nil, &delegate.ConstructionError{Delegate: kind, Reason: "staging_root is required"}
		}
		if d.Image == "" {
			return nil, &delegate.ConstructionError{Delegate: kind, Reason: "image is required"}
		}
		return d, nil
	})
}

func (d *Delegate) Kind() string { return kind }

func (d *Delegate) MarshalConfig() (map[string]any, error) {
	cfg := map[string]any{
		"staging_root": d.StagingRoot,
		"image":        d.Image,
		"runtime":      d.Runtime,
	}
	if len(d.RuntimeArgs) > 0 {
		args := make([]any, len(d.RuntimeArgs))
		for i, a := range d.RuntimeArgs {
			args[i] = a
		}
		cfg["runtime_args"] = args
	}
	if d.HelperPath != "" {
		cfg["helper_path"] = d.HelperPath
	}
	if d.LogLevel != "" {
		cfg["log_level"] = d.LogLevel
	}
	return cfg, nil
}
