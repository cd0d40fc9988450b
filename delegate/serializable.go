package delegate

import "fmt"

// Serializable must be implemented by any target object, debug-hook
// target, argument, or return value that needs to cross a process
// boundary and that isn't already one of CBOR's native scalar/slice/map
// types. This is the serialization-capability answer in place of an
// unconstrained pickle-style serializer: Go has no general object graph
// pickler, so a target opts in explicitly by exposing its state as a
// string-keyed map.
//
// TypeName must be a stable identifier registered with RegisterTarget so
// the receiving process can allocate a fresh zero value before replaying
// the state into it — the same registration idiom encoding/gob uses for
// concrete types behind an interface.
type Serializable interface {
	TypeName() string
	MarshalState() (map[string]any, error)
	UnmarshalState(map[string]any) error
}

var targetRegistry = map[string]func() Serializable{}

// RegisterTarget makes a Serializable type's zero value constructible by
// name during after/before-image decoding. Call it from an init() in the
// package that defines the concrete type, mirroring gob.Register.
func RegisterTarget(name string, factory func() Serializable) {
	targetRegistry[name] = factory
}

// NewTarget allocates a fresh Serializable registered under name.
func NewTarget(name string) (Serializable, error) {
	factory, ok := targetRegistry[name]
	if !ok {
		return nil, fmt.Errorf("delegate: no target type registered under %q (call delegate.RegisterTarget in an init())", name)
	}
	return factory(), nil
}
