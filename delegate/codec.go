package delegate

import "fmt"

// Codec is implemented by every concrete delegate kind so the generic
// chain (de)serializer (ToDTO/FromDTO, used by package wire) never has to know about
// concrete delegate types, only the uniform Kind/config shape: the
// before/after-image carries the delegate chain, including
// transitively its subdelegate chain, by kind name and config map.
type Codec interface {
	Delegate
	Kind() string
	MarshalConfig() (map[string]any, error)
}

// hasBase is implemented by every delegate through its embedded Base,
// giving the codec generic access to Next/Interactive/DebugHook without
// a type switch over concrete kinds.
type hasBase interface {
	BaseFields() Base
}

// BaseFields returns a copy of the embedded Base. Promoted automatically
// by every concrete delegate that embeds Base by value.
func (b *Base) BaseFields() Base { return *b }

// Decoder rebuilds one concrete delegate from its decoded config and an
// already-decoded Base (Next, Interactive and DebugHook populated).
type Decoder func(config map[string]any, base Base) (Delegate, error)

var kindRegistry = map[string]Decoder{}

// RegisterKind makes a delegate kind constructible by name during
// before/after-image decoding. Call it from an init() in the package
// that defines the concrete kind.
func RegisterKind(kind string, dec Decoder) {
	kindRegistry[kind] = dec
}

// DecodeKind rebuilds the delegate registered under kind.
func DecodeKind(kind string, config map[string]any, base Base) (Delegate, error) {
	dec, ok := kindRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("delegate: no kind registered under %q", kind)
	}
	return dec(config, base)
}
