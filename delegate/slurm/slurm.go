// Package slurm implements the batch-scheduler delegate: the helper runs
// inside a Slurm allocation via "salloc srun", on a shared
// filesystem staging root so the spawned batch job can see the
// before-image the submitting process wrote.
package slurm

import (
	"context"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/process"
	"github.com/aledsdavies/delegatefunc/internal/invariant"
)

// Delegate runs the helper inside a Slurm allocation.
type Delegate struct {
	process.Delegate

	// SallocArgs are extra flags inserted after "salloc", before "srun".
	SallocArgs []string
}

// NewDelegate wraps next in a Slurm batch-allocation link. stagingRoot
// must name a path on a filesystem shared with the allocated compute
// node; construction fails without one.
func NewDelegate(next delegate.Delegate, stagingRoot string) (*Delegate, error) {
	if stagingRoot == "" {
		return nil, &delegate.ConstructionError{Delegate: kind, Reason: "StagingRoot is required (shared filesystem)"}
	}
	d := &Delegate{}
	d.Next = next
	d.StagingRoot = stagingRoot
	return d, nil
}

func (d *Delegate) Invoke(ctx context.Context, rec *delegate.Record) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(d.Next != nil, "slurm delegate must have a subdelegate")
	invariant.Precondition(d.StagingRoot != "", "slurm delegate requires StagingRoot")

	prefix := append([]string{"salloc"}, d.SallocArgs...)
	prefix = append(prefix, "srun", "--export=ALL")
	if d.Interactive {
		prefix = append(prefix, "--pty")
	}

	return d.Delegate.InvokeWithOptions(ctx, rec, process.Options{
		Prefix:      prefix,
		Interactive: d.Interactive,
		Self:        d,
	})
}

const kind = "slurm"

func init() {
	delegate.RegisterKind(kind, func(cfg map[string]any, base delegate.Base) (delegate.Delegate, error) {
		d := &Delegate{}
		d.Base = base
		if v, ok := cfg["staging_root"].(string); ok {
			d.StagingRoot = v
		}
		if d.StagingRoot == "" {
			return nil, &delegate.ConstructionError{Delegate: kind, Reason: "staging_root is required (shared filesystem)"}
		}
		if v, ok := cfg["salloc_args"].([]any); ok {
			for _, a := range v {
				if s, ok := a.(string); ok {
					d.SallocArgs = append(d.SallocArgs, s)
				}
			}
		}
		if v, ok := cfg["helper_path"].(string); ok {
			d.HelperPath = v
		}
		if v, ok := cfg["log_level"].(string); ok {
			d.LogLevel = v
		}
		return d, nil
	})
}

func (d *Delegate) Kind() string { return kind }

func (d *Delegate) MarshalConfig() (map[string]any, error) {
	cfg := map[string]any{"staging_root": d.StagingRoot}
	if len(d.SallocArgs) > 0 {
		args := make([]any, len(d.SallocArgs))
		for i, a := range d.SallocArgs {
			args[i] = a
		}
		cfg["salloc_args"] = args
	}
	if d.HelperPath != "" {
		cfg["helper_path"] = d.HelperPath
	}
	if d.LogLevel != "" {
		cfg["log_level"] = d.LogLevel
	}
	return cfg, nil
}
