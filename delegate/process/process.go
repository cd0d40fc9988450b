// Package process implements the external-process delegate: the base
// protocol for every link that crosses into another OS process by
// serializing the delegate chain and invocation to a before-image,
// running the delegate-function-run helper, and decoding its
// after-image back into the caller's record.
//
// sudo, slurm and docker each embed Delegate and supply their own command
// prefix and optional pre-run setup through InvokeWithOptions; none of
// them re-implement staging, serialization or after-image propagation.
// sshdelegate also embeds Delegate, for its configuration fields, but
// runs its own remote staging protocol instead of InvokeWithOptions.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/debughook"
	"github.com/aledsdavies/delegatefunc/delegate/wire"
	"github.com/aledsdavies/delegatefunc/internal/invariant"
)

const helperExecutableName = "delegate-function-run"

// Source selects where the before-image comes from.
type Source int

const (
	// SourceInline serializes the chain and record fresh on every
	// invocation. The default.
	SourceInline Source = iota
	// SourceFile uses a pre-staged before-image at SourceFilePath instead
	// of serializing one, for repeated invocation of the same target
	// against many hosts without re-encoding it each time.
	SourceFile
)

// Delegate is the external-process link. It is never constructed with
// Next == nil; the chain factory only produces terminal Direct links.
type Delegate struct {
	delegate.Base

	// HelperPath pins the helper executable to an absolute path (tests
	// point this at a stub binary); empty resolves it via $PATH.
	HelperPath string
	// LogLevel is passed through to the helper's --log-level flag.
	LogLevel string
	// StagingRoot configures a fixed staging directory (required by
	// Slurm and Docker, optional elsewhere); empty creates a fresh temp
	// directory removed after the call.
	StagingRoot string

	Source         Source
	SourceFilePath string
}

// NewDelegate wraps next in a bare external-process link with no
// transport prefix, used on its own without sudo, SSH, Slurm or Docker
// layered on top.
func NewDelegate(next delegate.Delegate) *Delegate {
	return &Delegate{Base: delegate.Base{Next: next}}
}

// Options parameterizes InvokeWithOptions for delegates layered on top
// of Delegate.
type Options struct {
	// Prefix is prepended to the helper command line, e.g.
	// []string{"sudo", "-u", "deploy"} or []string{"salloc", "srun", "--export=ALL"}.
	Prefix []string
	// PreRun runs after staging files are named but before the helper is
	// invoked, with the staging root and file pair already resolved
	// (sudo's setfacl widening, for example).
	PreRun func(ctx context.Context, root string, files StagingFiles) error
	// Interactive wires the helper's stdio to the calling process's,
	// independent of d.Interactive, for delegates that need to force TTY
	// attachment (Slurm with --pty, Docker with -it) based on their own logic.
	Interactive bool
	// Self is the delegate value serialized into the before-image in
	// Delegate's place. sudo/slurm/docker embed Delegate and
	// pass their own outer pointer here so the before-image's Kind/config
	// at this position reflects the real delegate kind instead of the
	// generic process.Delegate it wraps. Nil defaults to d itself.
	Self delegate.Delegate
}

// Invoke runs the base external-process protocol with no command
// prefix and no pre-run setup.
func (d *Delegate) Invoke(ctx context.Context, rec *delegate.Record) error {
	return d.InvokeWithOptions(ctx, rec, Options{Interactive: d.Interactive})
}

// InvokeWithOptions runs the full forward protocol: stage, serialize,
// debug-hook, run the helper, decode the after-image, propagate mutation
// and return value.
func (d *Delegate) InvokeWithOptions(ctx context.Context, rec *delegate.Record, opts Options) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(d.Next != nil, "process delegate must have a subdelegate")
	invariant.NotNil(rec, "rec")

	root, cleanupRoot, err := NewStagingRoot(d.StagingRoot)
	if err != nil {
		return err
	}
	defer cleanupRoot()

	files := NewStagingFiles(root)

	self := opts.Self
	if self == nil {
		self = d
	}

	beforePath := files.Before
	if d.Source == SourceFile {
		invariant.Precondition(d.SourceFilePath != "", "process: SourceFile requires SourceFilePath")
		beforePath = d.SourceFilePath
	} else {
		if err := writeBeforeImage(beforePath, self, rec); err != nil {
			return err
		}
		defer os.Remove(beforePath)
	}
	files.Before = beforePath
	defer os.Remove(files.After)

	if opts.PreRun != nil {
		if err := opts.PreRun(ctx, root, files); err != nil {
			return err
		}
	}

	helperPath, err := ResolveHelperPath(d.HelperPath)
	if err != nil {
		return err
	}

	cmd := BuildHelperCommand(ctx, opts.Prefix, helperPath, files, d.LogLevel)

	if err := debughook.Run(ctx, d.DebugHook, strings.Join(cmd.Args, " ")); err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if opts.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
	}

	runErr := cmd.Run()
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &delegate.HelperExitError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return &delegate.HelperNotFoundError{Path: helperPath}
	}

	f, err := os.Open(files.After)
	if err != nil {
		return &delegate.SerializationFailure{Op: "decode", Err: fmt.Errorf("open after-image: %w", err)}
	}
	defer f.Close()

	if err := wire.ApplyAfterImage(f, rec); err != nil {
		var userErr *delegate.UserMethodError
		if errors.As(err, &userErr) {
			return userErr
		}
		return &delegate.SerializationFailure{Op: "decode", Err: err}
	}
	return nil
}

func writeBeforeImage(path string, chain delegate.Delegate, rec *delegate.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return &delegate.SerializationFailure{Op: "encode", Err: fmt.Errorf("create before-image: %w", err)}
	}
	defer f.Close()

	if err := wire.WriteBeforeImage(f, chain, rec); err != nil {
		return &delegate.SerializationFailure{Op: "encode", Err: err}
	}
	return nil
}

// ResolveHelperPath locates the delegate-function-run executable:
// configured points at an absolute path, empty searches $PATH.
func ResolveHelperPath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", &delegate.HelperNotFoundError{Path: configured}
		}
		return configured, nil
	}
	path, err := exec.LookPath(helperExecutableName)
	if err != nil {
		return "", &delegate.HelperNotFoundError{}
	}
	return path, nil
}

// BuildHelperCommand composes "<prefix...> <helperPath> --delegate-before
// <b> --delegate-after <a> [--log-level <n>]".
func BuildHelperCommand(ctx context.Context, prefix []string, helperPath string, files StagingFiles, logLevel string) *exec.Cmd {
	args := make([]string, 0, len(prefix)+6)
	args = append(args, prefix...)
	args = append(args, helperPath, "--delegate-before", files.Before, "--delegate-after", files.After)
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	return exec.CommandContext(ctx, args[0], args[1:]...)
}

const kind = "process"

func init() {
	delegate.RegisterKind(kind, func(cfg map[string]any, base delegate.Base) (delegate.Delegate, error) {
		d := &Delegate{Base: base}
		if v, ok := cfg["helper_path"].(string); ok {
			d.HelperPath = v
		}
		if v, ok := cfg["log_level"].(string); ok {
			d.LogLevel = v
		}
		if v, ok := cfg["staging_root"].(string); ok {
			d.StagingRoot = v
		}
		if v, ok := cfg["source_file_path"].(string); ok {
			d.SourceFilePath = v
		}
		if v, ok := cfg["source"].(string); ok && v == "file" {
			d.Source = SourceFile
		}
		return d, nil
	})
}

// Kind identifies this delegate in a serialized chain.
func (d *Delegate) Kind() string { return kind }

// MarshalConfig serializes this link's own configuration (not its
// subdelegate chain, handled generically by delegate.ToDTO).
func (d *Delegate) MarshalConfig() (map[string]any, error) {
	cfg := map[string]any{}
	if d.HelperPath != "" {
		cfg["helper_path"] = d.HelperPath
	}
	if d.LogLevel != "" {
		cfg["log_level"] = d.LogLevel
	}
	if d.StagingRoot != "" {
		cfg["staging_root"] = d.StagingRoot
	}
	if d.SourceFilePath != "" {
		cfg["source_file_path"] = d.SourceFilePath
	}
	if d.Source == SourceFile {
		cfg["source"] = "file"
	}
	return cfg, nil
}
