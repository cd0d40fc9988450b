package delegate

import (
	"context"
	"errors"

	"github.com/aledsdavies/delegatefunc/internal/invariant"
	"github.com/aledsdavies/delegatefunc/internal/reflectcall"
)

// Direct is the terminal link: it calls rec.Target.Method in-process
// with no I/O and no process boundary. A chain has exactly one Direct
// link: chain.Build takes it as its separate terminal argument, and
// loader.Build appends one when a document's sequence doesn't end with it.
type Direct struct {
	Base
}

// NewDirect returns a terminal Direct delegate.
func NewDirect() *Direct {
	return &Direct{}
}

const directKind = "direct"

func init() {
	RegisterKind(directKind, func(_ map[string]any, base Base) (Delegate, error) {
		return &Direct{Base: base}, nil
	})
}

// Kind identifies this delegate in a serialized chain.
func (d *Direct) Kind() string { return directKind }

// MarshalConfig is empty: Direct carries no configuration of its own.
func (d *Direct) MarshalConfig() (map[string]any, error) { return nil, nil }

// Invoke performs the method call directly. Direct ignores Base.Next (it
// must be nil) and Base.Step's subdelegate-forwarding default, since its
// forward step IS the delegated step.
func (d *Direct) Invoke(ctx context.Context, rec *Record) error {
	invariant.Precondition(d.Next == nil, "Direct delegate must be terminal")
	invariant.NotNil(ctx, "ctx")

	return d.Base.Forward(ctx, rec, "", d.Step)
}

// Step overrides Base.Step to perform the real call on rec.Target. The
// helper process calls it directly when a decoded chain is a bare Direct.
func (d *Direct) Step(ctx context.Context, rec *Record) error {
	result, err := reflectcall.Call(rec.Target, rec.Method, rec.Args, rec.Kwargs)
	if err != nil {
		var dispatchErr *reflectcall.DispatchError
		if errors.As(err, &dispatchErr) {
			return dispatchErr
		}
		return &UserMethodError{
			TypeName: "error",
			Message:  err.Error(),
		}
	}
	rec.Return = result
	return nil
}
