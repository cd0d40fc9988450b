// Package sudo implements the privilege-elevation delegate: the same
// external-process protocol as package process, but run as a
// different local user via sudo, after widening the staging directory's
// ACL so that user can read the before-image and write the after-image.
package sudo

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/process"
	"github.com/aledsdavies/delegatefunc/internal/invariant"
)

// Delegate runs the helper under sudo as User.
type Delegate struct {
	process.Delegate

	// User is passed as "sudo -u <User>"; empty runs plain "sudo" (root).
	User string
	// SudoArgs are extra flags inserted before the helper path, e.g.
	// []string{"-n"} for non-interactive sudo.
	SudoArgs []string
}

// NewDelegate wraps next in a sudo-elevated external-process link.
// StagingRoot is optional: when it is empty, each call stages under a
// fresh temp directory and widens permissions on that directory instead.
func NewDelegate(next delegate.Delegate, user string) *Delegate {
	d := &Delegate{User: user}
	d.Next = next
	return d
}

func (d *Delegate) Invoke(ctx context.Context, rec *delegate.Record) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(d.Next != nil, "sudo delegate must have a subdelegate")

	prefix := append(append([]string{"sudo"}, d.SudoArgs...), sudoUserArgs(d.User)...)

	return d.Delegate.InvokeWithOptions(ctx, rec, process.Options{
		Prefix:      prefix,
		Interactive: d.Interactive,
		Self:        d,
		PreRun: func(ctx context.Context, root string, _ process.StagingFiles) error {
			return widenACL(ctx, root, d.User)
		},
	})
}

func sudoUserArgs(user string) []string {
	if user == "" {
		return nil
	}
	return []string{"-u", user}
}

func widenACL(ctx context.Context, root, user string) error {
	if user == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "setfacl", "-R", "-m", fmt.Sprintf("u:%s:rwX", user), root)
	if out, err := cmd.CombinedOutput(); err != nil {
		return &delegate.TransportError{Command: cmd.String(), Err: fmt.Errorf("%w: %s", err, out)}
	}
	return nil
}

const kind = "sudo"

func init() {
	delegate.RegisterKind(kind, func(cfg map[string]any, base delegate.Base) (delegate.Delegate, error) {
		d := &Delegate{}
		d.Base = base
		if v, ok := cfg["user"].(string); ok {
			d.User = v
		}
		if v, ok := cfg["sudo_args"].([]any); ok {
			for _, a := range v {
				if s, ok := a.(string); ok {
					d.SudoArgs = append(d.SudoArgs, s)
				}
			}
		}
		if v, ok := cfg["staging_root"].(string); ok {
			d.StagingRoot = v
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
	cfg := map[string]any{}
	if d.User != "" {
		cfg["user"] = d.User
	}
	if len(d.SudoArgs) > 0 {
		args := make([]any, len(d.SudoArgs))
		for i, a := range d.SudoArgs {
			args[i] = a
		}
		cfg["sudo_args"] = args
	}
	if d.StagingRoot != "" {
		cfg["staging_root"] = d.StagingRoot
	}
	if d.HelperPath != "" {
		cfg["helper_path"] = d.HelperPath
	}
	if d.LogLevel != "" {
		cfg["log_level"] = d.LogLevel
	}
	return cfg, nil
}
