// Package reflectcall resolves a method by name on an arbitrary target
// value and calls it, the way a dynamically typed language's
// getattr(obj, method)(*args, **kwargs) would.
//
// Go has no native varargs-of-any-type-plus-kwargs calling convention, so
// this is the constrained answer: positional arguments are passed through
// reflect.Value calls; keyword arguments are only honored when the target
// implements an explicit keyword-dispatch interface.
package reflectcall

import (
	"fmt"
	"reflect"
)

// KeywordCallable is implemented by targets that accept keyword arguments.
type KeywordCallable interface {
	CallKeyword(method string, args []any, kwargs map[string]any) (any, error)
}

// DispatchError reports a failure to resolve or invoke a method by
// reflection — an unknown method name, unsupported keyword arguments, or
// a panic during the call — as opposed to an error value the method
// itself returned. Callers should not treat this as a user method's own
// failure.
type DispatchError struct {
	Target any
	Method string
	Reason string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("target %T: %s for method %q", e.Target, e.Reason, e.Method)
}

// Call invokes target.method(args...). A trailing error result is split
// off and returned as the call's own error; of the remaining results, none
// yields nil, one yields that value, and several yield a []any of all of them.
func Call(target any, method string, args []any, kwargs map[string]any) (any, error) {
	if len(kwargs) > 0 {
		if kw, ok := target.(KeywordCallable); ok {
			return kw.CallKeyword(method, args, kwargs)
		}
		return nil, &DispatchError{Target: target, Method: method, Reason: "does not support keyword arguments"}
	}

	v := reflect.ValueOf(target)
	m := v.MethodByName(method)
	if !m.IsValid() {
		return nil, &DispatchError{Target: target, Method: method, Reason: "no such method"}
	}

	mt := m.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		av := reflect.ValueOf(a)
		// Arguments that crossed a process boundary come back through a
		// generic decoder (e.g. CBOR's int64 for any whole number), which
		// rarely matches the target method's exact parameter type. Convert
		// when the conversion is sound instead of letting Call panic.
		if av.IsValid() && i < mt.NumIn() {
			if pt := mt.In(i); av.Type() != pt && av.Type().ConvertibleTo(pt) {
				av = av.Convert(pt)
			}
		}
		in[i] = av
	}

	var out []reflect.Value
	var dispatchErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				dispatchErr = &DispatchError{Target: target, Method: method, Reason: fmt.Sprintf("panicked: %v", r)}
			}
		}()
		out = m.Call(in)
	}()
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	return unpackResults(out)
}

func unpackResults(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := asError(out[0]); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		if err, ok := asError(last); ok {
			if len(out) == 2 {
				return out[0].Interface(), err
			}
			values := make([]any, len(out)-1)
			for i, v := range out[:len(out)-1] {
				values[i] = v.Interface()
			}
			return values, err
		}
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, nil
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func asError(v reflect.Value) (error, bool) {
	if !v.Type().Implements(errorType) {
		return nil, false
	}
	if v.IsNil() {
		return nil, true
	}
	return v.Interface().(error), true
}
