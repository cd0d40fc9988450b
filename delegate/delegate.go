package delegate

import (
	"context"

	"github.com/aledsdavies/delegatefunc/delegate/debughook"
	"github.com/aledsdavies/delegatefunc/internal/invariant"
)

// Delegate is the uniform contract every execution-context transformer
// implements. Invoke executes rec.Method on rec.Target,
// possibly by forwarding through a subdelegate, and leaves rec.Return and
// rec.Target's mutated state in place on success.
type Delegate interface {
	Invoke(ctx context.Context, rec *Record) error
}

// Base holds the state common to every delegate: the subdelegate to
// forward to (nil for the terminal link), the debug pre-hook, and whether
// this link runs interactively. Concrete delegates embed Base and call its
// Forward/Step helpers from their own Invoke method.
type Base struct {
	Next        Delegate
	DebugHook   *debughook.Hook
	Interactive bool
}

// Forward runs the default forward step: the debug pre-hook (if armed),
// then step. command describes the operation about to happen, published
// to the debug hook via DELEGATE_FUNCTION_COMMAND; it may be empty for
// links that never cross a process boundary.
func (b *Base) Forward(ctx context.Context, rec *Record, command string, step func(context.Context, *Record) error) error {
	if err := debughook.Run(ctx, b.DebugHook, command); err != nil {
		return err
	}
	return step(ctx, rec)
}

// Step is the default delegated step: forward to the subdelegate if one
// exists, else this link must be the terminal Direct delegate. Only
// Direct overrides Step to perform the real call; every other delegate
// uses this default.
func (b *Base) Step(ctx context.Context, rec *Record) error {
	invariant.Precondition(b.Next != nil, "non-terminal delegate has no subdelegate")
	return b.Next.Invoke(ctx, rec)
}

// IsTerminal reports whether this link has no subdelegate.
func (b *Base) IsTerminal() bool { return b.Next == nil }

// SetInteractive sets this link's Interactive flag in place. Used by
// chain.Build to OR the flag outward across every link once at
// construction time.
func (b *Base) SetInteractive(v bool) { b.Interactive = v }

// SetDebugHook arms or disarms this link's debug pre-hook in place.
func (b *Base) SetDebugHook(h *debughook.Hook) { b.DebugHook = h }
