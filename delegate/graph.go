package delegate

import (
	"fmt"

	"github.com/aledsdavies/delegatefunc/delegate/debughook"
)

// LinkDTO is the wire-level shape of one delegate in a chain, used to
// carry the delegate, including transitively its subdelegate chain,
// across a process boundary. Package wire CBOR-encodes this directly;
// it never needs to know about concrete delegate kinds.
type LinkDTO struct {
	Kind        string         `cbor:"kind"`
	Config      map[string]any `cbor:"config,omitempty"`
	Interactive bool           `cbor:"interactive"`
	DebugHook   *HookDTO       `cbor:"debug_hook,omitempty"`
	Next        *LinkDTO       `cbor:"next,omitempty"`
}

// HookDTO is the wire-level shape of a debughook.Hook.
type HookDTO struct {
	Target ValueDTO       `cbor:"target"`
	Method string         `cbor:"method"`
	Args   []ValueDTO     `cbor:"args,omitempty"`
	Kwargs map[string]any `cbor:"kwargs,omitempty"`
}

// ValueDTO carries one arbitrary value (a target object, a return value,
// a positional argument) across the wire. Values CBOR already handles
// natively (scalars, strings, slices, string-keyed maps) travel as-is;
// anything else must implement Serializable and be registered with
// RegisterTarget so the far side can rebuild a concrete instance.
type ValueDTO struct {
	TypeName string         `cbor:"type,omitempty"`
	Native   any            `cbor:"native,omitempty"`
	State    map[string]any `cbor:"state,omitempty"`
}

// EncodeValue converts v into its wire form.
func EncodeValue(v any) (ValueDTO, error) {
	if v == nil {
		return ValueDTO{}, nil
	}
	if s, ok := v.(Serializable); ok {
		state, err := s.MarshalState()
		if err != nil {
			return ValueDTO{}, fmt.Errorf("marshal state for %s: %w", s.TypeName(), err)
		}
		return ValueDTO{TypeName: s.TypeName(), State: state}, nil
	}
	return ValueDTO{Native: v}, nil
}

// DecodeValue rebuilds the value dto carried.
func DecodeValue(dto ValueDTO) (any, error) {
	if dto.TypeName == "" {
		return dto.Native, nil
	}
	target, err := NewTarget(dto.TypeName)
	if err != nil {
		return nil, err
	}
	if err := target.UnmarshalState(dto.State); err != nil {
		return nil, fmt.Errorf("unmarshal state for %s: %w", dto.TypeName, err)
	}
	return target, nil
}

// ApplyValue replays a decoded ValueDTO onto an existing target in place,
// used on the caller side of a process boundary to carry mutated target
// state back onto the caller's own object rather than allocating a new
// one: the return value and any mutation must propagate back to the
// original call site. Native-valued DTOs are a no-op: a plain scalar or
// map has no caller-visible identity to mutate through.
func ApplyValue(target any, dto ValueDTO) error {
	if dto.TypeName == "" {
		return nil
	}
	s, ok := target.(Serializable)
	if !ok {
		return fmt.Errorf("cannot apply serialized state of type %s onto %T: target is not Serializable", dto.TypeName, target)
	}
	if s.TypeName() != dto.TypeName {
		return fmt.Errorf("type mismatch applying state: target is %s, image carries %s", s.TypeName(), dto.TypeName)
	}
	return s.UnmarshalState(dto.State)
}

func encodeValues(vs []any) ([]ValueDTO, error) {
	if vs == nil {
		return nil, nil
	}
	out := make([]ValueDTO, len(vs))
	for i, v := range vs {
		dto, err := EncodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = dto
	}
	return out, nil
}

func decodeValues(dtos []ValueDTO) ([]any, error) {
	if dtos == nil {
		return nil, nil
	}
	out := make([]any, len(dtos))
	for i, dto := range dtos {
		v, err := DecodeValue(dto)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ToDTO walks d and its subdelegate chain into a serializable LinkDTO.
func ToDTO(d Delegate) (*LinkDTO, error) {
	if d == nil {
		return nil, nil
	}
	codec, ok := d.(Codec)
	if !ok {
		return nil, fmt.Errorf("delegate %T does not implement delegate.Codec", d)
	}
	hb, ok := d.(hasBase)
	if !ok {
		return nil, fmt.Errorf("delegate %T does not embed delegate.Base", d)
	}
	base := hb.BaseFields()

	cfg, err := codec.MarshalConfig()
	if err != nil {
		return nil, fmt.Errorf("marshal config for %s: %w", codec.Kind(), err)
	}
	next, err := ToDTO(base.Next)
	if err != nil {
		return nil, err
	}

	var hookDTO *HookDTO
	if base.DebugHook != nil {
		target, err := EncodeValue(base.DebugHook.Target)
		if err != nil {
			return nil, fmt.Errorf("encode debug hook target: %w", err)
		}
		args, err := encodeValues(base.DebugHook.Args)
		if err != nil {
			return nil, fmt.Errorf("encode debug hook args: %w", err)
		}
		hookDTO = &HookDTO{
			Target: target,
			Method: base.DebugHook.Method,
			Args:   args,
			Kwargs: base.DebugHook.Kwargs,
		}
	}

	return &LinkDTO{
		Kind:        codec.Kind(),
		Config:      cfg,
		Interactive: base.Interactive,
		DebugHook:   hookDTO,
		Next:        next,
	}, nil
}

// FromDTO rebuilds a delegate chain from its serialized form.
func FromDTO(dto *LinkDTO) (Delegate, error) {
	if dto == nil {
		return nil, nil
	}
	next, err := FromDTO(dto.Next)
	if err != nil {
		return nil, err
	}

	base := Base{Next: next, Interactive: dto.Interactive}
	if dto.DebugHook != nil {
		target, err := DecodeValue(dto.DebugHook.Target)
		if err != nil {
			return nil, fmt.Errorf("decode debug hook target: %w", err)
		}
		args, err := decodeValues(dto.DebugHook.Args)
		if err != nil {
			return nil, fmt.Errorf("decode debug hook args: %w", err)
		}
		base.DebugHook = &debughook.Hook{Target: target, Method: dto.DebugHook.Method, Args: args, Kwargs: dto.DebugHook.Kwargs}
	}

	return DecodeKind(dto.Kind, dto.Config, base)
}
