// Package debughook implements the debug pre-hook: a user-supplied
// callable that runs before a link's delegated step, gated by the
// DELEGATE_FUNCTION_DEBUG_ENABLED environment switch. Debug hooks
// permit arbitrary command execution at every chain link, so they are
// suppressed with a warning unless explicitly armed.
package debughook

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/aledsdavies/delegatefunc/internal/reflectcall"
)

const (
	enabledVar = "DELEGATE_FUNCTION_DEBUG_ENABLED"
	commandVar = "DELEGATE_FUNCTION_COMMAND"
)

// Hook is a target/method/args/kwargs tuple run before a delegated step,
// the same shape as the invocation record it precedes.
type Hook struct {
	Target any
	Method string
	Args   []any
	Kwargs map[string]any
}

// Shell returns a hook that drops into an interactive shell in the
// delegate's current context, the convenience constructor the
// declarative loader recognizes as the "SHELL" sentinel.
func Shell() *Hook {
	return &Hook{Target: &shellTarget{}, Method: "Run"}
}

type shellTarget struct{}

// Run execs an interactive bash shell, inheriting stdio.
func (s *shellTarget) Run() error {
	cmd := exec.Command("bash")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Enabled reports whether DELEGATE_FUNCTION_DEBUG_ENABLED=yes.
func Enabled() bool {
	return os.Getenv(enabledVar) == "yes"
}

// Run executes hook, gated by Enabled. command is the composed helper
// command line about to be executed by the caller; it is published via
// DELEGATE_FUNCTION_COMMAND for the duration of the hook and unset
// immediately after.
//
// When hooks are not armed, Run silently returns nil after printing a
// warning instead of executing the hook.
func Run(ctx context.Context, hook *Hook, command string) error {
	if hook == nil {
		return nil
	}
	if !Enabled() {
		fmt.Fprintf(os.Stderr, "warning: debug pre-hook suppressed; set %s=yes to allow it\n", enabledVar)
		return nil
	}

	if err := os.Setenv(commandVar, command); err != nil {
		return fmt.Errorf("debughook: set %s: %w", commandVar, err)
	}
	defer os.Unsetenv(commandVar)

	_, err := reflectcall.Call(hook.Target, hook.Method, hook.Args, hook.Kwargs)
	return err
}
