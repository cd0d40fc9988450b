package delegate

import (
	"context"
	"fmt"
	"os"

	"github.com/aledsdavies/delegatefunc/internal/invariant"
)

// WorkingDir is an in-process link: it creates a fresh temporary
// directory, switches the process into it for the dynamic
// extent of the nested forward step, then restores the previous working
// directory and removes the temporary one — even if the nested step
// fails.
type WorkingDir struct {
	Base
}

// NewWorkingDir wraps next in a fresh-temp-directory link.
func NewWorkingDir(next Delegate) *WorkingDir {
	return &WorkingDir{Base: Base{Next: next}}
}

const workingDirKind = "working_dir"

func init() {
	RegisterKind(workingDirKind, func(_ map[string]any, base Base) (Delegate, error) {
		return &WorkingDir{Base: base}, nil
	})
}

// Kind identifies this delegate in a serialized chain.
func (w *WorkingDir) Kind() string { return workingDirKind }

// MarshalConfig is empty: WorkingDir carries no configuration of its own.
func (w *WorkingDir) MarshalConfig() (map[string]any, error) { return nil, nil }

func (w *WorkingDir) Invoke(ctx context.Context, rec *Record) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(w.Next != nil, "WorkingDir delegate must have a subdelegate")

	return w.Base.Forward(ctx, rec, "", func(ctx context.Context, rec *Record) error {
		dir, err := os.MkdirTemp("", "delegatefunc-workdir-*")
		if err != nil {
			return fmt.Errorf("workdir: create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		previous, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("workdir: getwd: %w", err)
		}
		if err := os.Chdir(dir); err != nil {
			return fmt.Errorf("workdir: chdir into %s: %w", dir, err)
		}
		defer os.Chdir(previous)

		return w.Base.Step(ctx, rec)
	})
}
