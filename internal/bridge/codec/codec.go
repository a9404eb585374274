// Package codec classifies and transforms values crossing the isolation
// boundary. Host-side results that cannot travel as plain data are replaced
// with handle references; worker-side arguments may carry handle references
// back, or function source text to be reconstructed in the host context.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"time"
)

var (
	// ErrBareFunction is raised when a call result is itself a function.
	// Nested functions force a handle; a naked one is a programming error.
	ErrBareFunction = errors.New("bare function cannot be serialized as a call result")

	// ErrCycle is raised when the classifier revisits a node. Cyclic results
	// fail loudly instead of being silently under-serialized.
	ErrCycle = errors.New("cyclic value cannot be serialized")
)

const (
	handleKey   = "__handleId"
	functionKey = "__function"
)

// HandleRef is the wire representation of a host-side handle.
type HandleRef struct {
	HandleID string `json:"__handleId"`
}

// Function is the wire representation of a caller-supplied predicate: its
// source text, evaluated in the host's script context on arrival.
type Function struct {
	Source string `json:"__function"`
}

// Fn wraps predicate source text for use as a call argument.
func Fn(source string) Function {
	return Function{Source: source}
}

// Predicate is the host-side shape of a reconstructed function argument.
type Predicate func(args ...any) (any, error)

// Registrar is the handle registry surface the serializer needs.
type Registrar interface {
	Register(value any) string
	Get(id string) (any, bool)
}

// Evaluator reconstructs a function from source text in the host context.
type Evaluator interface {
	CompileFunction(source string) (Predicate, error)
}

// HandleID extracts a handle id from a value in wire form.
func HandleID(v any) (string, bool) {
	switch t := v.(type) {
	case HandleRef:
		return t.HandleID, t.HandleID != ""
	case *HandleRef:
		return t.HandleID, t.HandleID != ""
	case map[string]any:
		if id, ok := t[handleKey].(string); ok {
			return id, true
		}
	}
	return "", false
}

// FunctionSource extracts function source text from a value in wire form.
func FunctionSource(v any) (string, bool) {
	switch t := v.(type) {
	case Function:
		return t.Source, true
	case *Function:
		return t.Source, true
	case map[string]any:
		if src, ok := t[functionKey].(string); ok {
			return src, true
		}
	}
	return "", false
}

// NeedsHandle reports whether a host value must be replaced by a handle
// reference to cross the boundary. A bare function raises ErrBareFunction;
// a cyclic graph raises ErrCycle.
func NeedsHandle(v any) (bool, error) {
	return needsHandle(v, map[uintptr]bool{}, true)
}

func needsHandle(v any, seen map[uintptr]bool, top bool) (bool, error) {
	if v == nil {
		return false, nil
	}
	if isDirect(v) {
		return false, nil
	}
	if _, ok := HandleID(v); ok {
		return false, nil
	}
	if _, ok := FunctionSource(v); ok {
		return false, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Func:
		if top {
			return false, ErrBareFunction
		}
		return true, nil

	case reflect.Ptr:
		if rv.IsNil() {
			return false, nil
		}
		leave, err := mark(rv, seen)
		if err != nil {
			return false, err
		}
		defer leave()
		return needsHandle(rv.Elem().Interface(), seen, top)

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice {
			if rv.IsNil() {
				return false, nil
			}
			leave, err := mark(rv, seen)
			if err != nil {
				return false, err
			}
			defer leave()
		}
		for i := 0; i < rv.Len(); i++ {
			needs, err := needsHandle(rv.Index(i).Interface(), seen, false)
			if err != nil {
				return false, err
			}
			if needs {
				return true, nil
			}
		}
		return false, nil

	case reflect.Map:
		if rv.IsNil() {
			return false, nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return true, nil
		}
		leave, err := mark(rv, seen)
		if err != nil {
			return false, err
		}
		defer leave()
		iter := rv.MapRange()
		for iter.Next() {
			needs, err := needsHandle(iter.Value().Interface(), seen, false)
			if err != nil {
				return false, err
			}
			if needs {
				return true, nil
			}
		}
		return false, nil

	default:
		// Structs, channels and everything else not covered above are live
		// host objects: conservative default, take a handle.
		return true, nil
	}
}

// mark adds rv's referent to the current walk path and returns a function
// that removes it when the subtree is done. Only a node still on the path is
// a cycle; a node shared by sibling subtrees is an ordinary diamond and must
// classify normally.
func mark(rv reflect.Value, seen map[uintptr]bool) (leave func(), err error) {
	p := rv.Pointer()
	if p == 0 {
		return func() {}, nil
	}
	if seen[p] {
		return nil, ErrCycle
	}
	seen[p] = true
	return func() { delete(seen, p) }, nil
}

// isDirect reports whether a value crosses the boundary unchanged (or with a
// shallow conversion): primitives, errors, timestamps, patterns, URLs and
// binary buffers.
func isDirect(v any) bool {
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]byte,
		time.Time, *time.Time,
		*regexp.Regexp,
		url.URL, *url.URL:
		return true
	}
	if _, ok := v.(error); ok {
		return true
	}
	return false
}

// SerializeResult transforms a host call result into wire form, registering
// any value the classifier flags as needing a handle.
func SerializeResult(v any, reg Registrar) (any, error) {
	return serializeValue(v, reg, true)
}

func serializeValue(v any, reg Registrar, top bool) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(t), nil
	case *regexp.Regexp:
		return t.String(), nil
	case url.URL:
		return t.String(), nil
	case *url.URL:
		return t.String(), nil
	}
	if err, ok := v.(error); ok {
		return err.Error(), nil
	}
	if isDirect(v) {
		return v, nil
	}
	if _, ok := HandleID(v); ok {
		return v, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}

	// Arrays stay array-shaped: each element is transformed independently,
	// so one unserializable element becomes a handle without dragging the
	// rest of the array with it.
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			el, err := serializeValue(rv.Index(i).Interface(), reg, false)
			if err != nil {
				return nil, err
			}
			out[i] = el
		}
		return out, nil
	}

	needs, err := needsHandle(v, map[uintptr]bool{}, top)
	if err != nil {
		return nil, err
	}
	if needs {
		return HandleRef{HandleID: reg.Register(v)}, nil
	}

	// A plain map still needs its entries transformed: an error or pattern
	// nested inside would otherwise reach the JSON layer untranslated and
	// encode as an empty object. Non-string-keyed maps never get here; the
	// classifier sends those to a handle.
	if rv.Kind() == reflect.Map {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ev, err := serializeValue(iter.Value().Interface(), reg, false)
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = ev
		}
		return out, nil
	}
	return v, nil
}

// DeserializeArgs transforms incoming call arguments into live host values:
// handle references resolve against the registry, function source is
// reconstructed by the evaluator, arrays are recursed into, everything else
// passes through unchanged.
func DeserializeArgs(args []any, reg Registrar, eval Evaluator) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := DeserializeValue(arg, reg, eval)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DeserializeValue transforms a single incoming argument value.
func DeserializeValue(v any, reg Registrar, eval Evaluator) (any, error) {
	if id, ok := HandleID(v); ok {
		live, found := reg.Get(id)
		if !found {
			return nil, fmt.Errorf("handle not found: %s", id)
		}
		return live, nil
	}
	if src, ok := FunctionSource(v); ok {
		if eval == nil {
			return nil, errors.New("no evaluator configured for function arguments")
		}
		fn, err := eval.CompileFunction(src)
		if err != nil {
			return nil, fmt.Errorf("compile function argument: %w", err)
		}
		return fn, nil
	}
	if arr, ok := v.([]any); ok {
		out := make([]any, len(arr))
		for i, el := range arr {
			dv, err := DeserializeValue(el, reg, eval)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	}
	return v, nil
}

// SerializeArgs prepares worker-side call arguments for transport: Function
// values keep their wire form, handle references pass through, arrays are
// recursed into. A raw Go function is rejected; predicates must be supplied
// as Function source text.
func SerializeArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := serializeArg(arg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func serializeArg(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		return base64.StdEncoding.EncodeToString(b), nil
	}
	if _, ok := HandleID(v); ok {
		return v, nil
	}
	if _, ok := FunctionSource(v); ok {
		return v, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func {
		return nil, errors.New("cannot pass a Go function across the boundary; wrap predicate source with codec.Fn")
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			el, err := serializeArg(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = el
		}
		return out, nil
	}
	return v, nil
}
