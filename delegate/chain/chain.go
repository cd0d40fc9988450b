// Package chain implements the delegate chain factory: an ordered list
// of constructors built right-to-left into a linked chain, with the
// Interactive flag OR-propagated outward once at build time.
package chain

import "github.com/aledsdavies/delegatefunc/delegate"

// Constructor wraps next in one more link. The chain factory calls these
// right-to-left: the last constructor in a Factory wraps the terminal
// link first, the first constructor wraps everything built so far last,
// becoming the chain's head.
type Constructor func(next delegate.Delegate) delegate.Delegate

// Factory is an ordered, immutable list of constructors. Build is safe
// to call repeatedly and always produces an equivalent chain.
type Factory []Constructor

// hasInteractive is implemented by every delegate through its embedded
// Base, letting Build OR the Interactive flag outward without a type
// switch over concrete kinds.
type hasInteractive interface {
	BaseFields() delegate.Base
}

// Build constructs the chain right-to-left. terminal is the innermost
// link (normally delegate.NewDirect()); Factory's constructors wrap it in
// reverse order, so Factory[len-1] wraps terminal first and Factory[0]
// becomes the returned head.
func Build(factory Factory, terminal delegate.Delegate) delegate.Delegate {
	head := terminal
	for i := len(factory) - 1; i >= 0; i-- {
		head = factory[i](head)
	}
	return PropagateInteractive(head)
}

// PropagateInteractive walks the chain once and sets Interactive on
// every link if any link in the chain has it set. It is a build-time
// pass, not a runtime mutation helper links consult on every Invoke.
// Exported so package loader can reuse it after applying per-entry
// interactive flags from a document.
func PropagateInteractive(head delegate.Delegate) delegate.Delegate {
	anySet := false
	for d := head; d != nil; {
		hi, ok := d.(hasInteractive)
		if !ok {
			break
		}
		base := hi.BaseFields()
		if base.Interactive {
			anySet = true
		}
		d = base.Next
	}
	if !anySet {
		return head
	}
	for d := head; d != nil; {
		hi, ok := d.(hasInteractive)
		if !ok {
			break
		}
		setter, ok := d.(interface{ SetInteractive(bool) })
		if ok {
			setter.SetInteractive(true)
		}
		d = hi.BaseFields().Next
	}
	return head
}
