// Package delegate implements the delegate chain model: a linked sequence
// of execution-context transformers sharing a uniform invocation contract.
// A chain's head is invoked once with a target object, method name, and
// arguments; control passes link to link until the terminal link performs
// the real call, and the return value and mutated target state propagate
// back out through every link that forwarded the call.
package delegate

// Record carries one method invocation through a chain: the target object,
// the method to call on it, its positional and keyword arguments, and
// (after a successful Invoke) the method's return value.
//
// Intermediate links must transport a Record unchanged; only the terminal
// link may mutate it.
type Record struct {
	Target any
	Method string
	Args   []any
	Kwargs map[string]any
	Return any
}
