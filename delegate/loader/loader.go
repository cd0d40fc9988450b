// Package loader implements the declarative YAML chain loader: a
// version/sequence document naming delegate kinds and their
// configuration, resolved through the same explicit kind registry
// package delegate uses for before/after-image decoding — an explicit
// type->constructor table in place of the original implementation's
// eval()-based resolution.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/chain"
	"github.com/aledsdavies/delegatefunc/delegate/debughook"

	// Registering these packages' kinds with delegate.RegisterKind is a
	// side effect of importing them; the loader needs every concrete
	// kind available even though it never references their types by name.
	_ "github.com/aledsdavies/delegatefunc/delegate/docker"
	_ "github.com/aledsdavies/delegatefunc/delegate/process"
	_ "github.com/aledsdavies/delegatefunc/delegate/slurm"
	_ "github.com/aledsdavies/delegatefunc/delegate/sshdelegate"
	_ "github.com/aledsdavies/delegatefunc/delegate/sudo"
)

// Document is the top-level YAML shape: a format version and an
// ordered sequence of delegate entries, outermost first.
type Document struct {
	Version  string  `yaml:"version"`
	Sequence []Entry `yaml:"sequence"`
}

// Entry names one delegate kind and its configuration. Config holds
// every YAML key besides "type", "interactive" and "debug_pre_hook",
// keyed exactly as the corresponding package's RegisterKind decoder
// expects them.
type Entry struct {
	Type        string
	Interactive bool
	DebugHook   *debughook.Hook
	Config      map[string]any
}

// UnmarshalYAML flattens a sequence entry's mapping into Type,
// Interactive, DebugHook and Config, since yaml.v3 has no "remaining
// fields" tag.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	raw := map[string]any{}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("loader: decode sequence entry: %w", err)
	}
	t, ok := raw["type"].(string)
	if !ok || t == "" {
		return &delegate.ConstructionError{Delegate: "loader", Reason: "sequence entry missing required \"type\" field"}
	}
	delete(raw, "type")

	if v, ok := raw["interactive"]; ok {
		b, ok := v.(bool)
		if !ok {
			return &delegate.ConstructionError{Delegate: "loader", Reason: "\"interactive\" must be a boolean"}
		}
		e.Interactive = b
		delete(raw, "interactive")
	}

	if v, ok := raw["debug_pre_hook"]; ok {
		hook, err := parseDebugHook(v)
		if err != nil {
			return err
		}
		e.DebugHook = hook
		delete(raw, "debug_pre_hook")
	}

	e.Type = t
	e.Config = raw
	return nil
}

// parseDebugHook turns a "debug_pre_hook" YAML value into a hook: the
// "SHELL" sentinel maps to debughook.Shell(), anything else must be a
// {target, method, args, kwargs} tuple mapping.
func parseDebugHook(v any) (*debughook.Hook, error) {
	switch val := v.(type) {
	case string:
		if val == "SHELL" {
			return debughook.Shell(), nil
		}
		return nil, &delegate.ConstructionError{
			Delegate: "loader",
			Reason:   fmt.Sprintf("debug_pre_hook: unrecognized string %q (only \"SHELL\" is a sentinel)", val),
		}
	case map[string]any:
		method, _ := val["method"].(string)
		if method == "" {
			return nil, &delegate.ConstructionError{Delegate: "loader", Reason: "debug_pre_hook tuple requires a \"method\" string"}
		}
		hook := &debughook.Hook{Target: val["target"], Method: method}
		if args, ok := val["args"].([]any); ok {
			hook.Args = args
		}
		if kwargs, ok := val["kwargs"].(map[string]any); ok {
			hook.Kwargs = kwargs
		}
		return hook, nil
	default:
		return nil, &delegate.ConstructionError{
			Delegate: "loader",
			Reason:   "debug_pre_hook must be the string \"SHELL\" or a {target, method, args, kwargs} tuple",
		}
	}
}

// Parse unmarshals a YAML document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("loader: parse document: %w", err)
	}
	return doc, nil
}

// Build resolves doc into a delegate chain. A sequence whose last entry
// isn't a "direct" kind gets one appended implicitly, matching
// chain.Factory's convention that callers need not name the terminal
// link explicitly.
func Build(doc Document) (delegate.Delegate, error) {
	entries := doc.Sequence
	if len(entries) == 0 || entries[len(entries)-1].Type != "direct" {
		entries = append(entries, Entry{Type: "direct"})
	}

	var next delegate.Delegate
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		cfg, err := substituteEnv(e.Config)
		if err != nil {
			return nil, err
		}
		base := delegate.Base{Next: next, Interactive: e.Interactive, DebugHook: e.DebugHook}
		d, err := delegate.DecodeKind(e.Type, cfg, base)
		if err != nil {
			return nil, fmt.Errorf("loader: build entry %d (%s): %w", i, e.Type, err)
		}
		next = d
	}

	return chain.PropagateInteractive(next), nil
}

// LoadFile reads, parses and builds a chain document from path.
func LoadFile(path string) (delegate.Delegate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// substituteEnv walks every string leaf of cfg and replaces any value
// that is exactly "$NAME" with os.Getenv("NAME"), the supplemented
// environment-substitution selector from the original implementation.
func substituteEnv(v map[string]any) (map[string]any, error) {
	out, err := substituteAny(v)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func substituteAny(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			sub, err := substituteAny(vv)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			sub, err := substituteAny(vv)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	case string:
		if strings.HasPrefix(val, "$") && len(val) > 1 {
			return os.Getenv(val[1:]), nil
		}
		return val, nil
	default:
		return val, nil
	}
}
