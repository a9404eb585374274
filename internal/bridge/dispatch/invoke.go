package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/microsoft/vscode-test-web/internal/bridge/codec"
)

var (
	ctxType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType  = reflect.TypeOf((*error)(nil)).Elem()
	byteType = reflect.TypeOf([]byte(nil))
)

// resolvePath walks a dotted path from the root context. Path segments
// traverse string-keyed maps, exported struct fields, and zero-argument
// getter methods.
func resolvePath(roots map[string]any, target string) (any, error) {
	segs := strings.Split(target, ".")
	cur, ok := roots[segs[0]]
	if !ok {
		return nil, fmt.Errorf("target not found: %s", target)
	}
	for _, seg := range segs[1:] {
		next, found := property(cur, seg)
		if !found {
			return nil, fmt.Errorf("target not found: %s", target)
		}
		cur = next
	}
	return cur, nil
}

func property(v any, name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)

	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		mv := rv.MapIndex(reflect.ValueOf(name))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	}

	sv := rv
	for sv.Kind() == reflect.Ptr {
		if sv.IsNil() {
			return nil, false
		}
		sv = sv.Elem()
	}
	if sv.Kind() == reflect.Struct {
		f := sv.FieldByName(exportName(name))
		if f.IsValid() && f.CanInterface() {
			if f.Kind() == reflect.Ptr && f.IsNil() {
				return nil, false
			}
			return f.Interface(), true
		}
	}

	m := rv.MethodByName(exportName(name))
	if m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0].Interface(), true
	}
	return nil, false
}

// invoke calls the wire method on the resolved target with deserialized
// arguments. Targets implementing Invoker get first refusal; otherwise the
// wire name maps to the exported Go method (first letter upper-cased).
func (d *Dispatcher) invoke(ctx context.Context, target any, targetName, method string, args []any) (any, error) {
	if inv, ok := target.(Invoker); ok {
		out, handled, err := inv.InvokeWire(ctx, method, args)
		if handled {
			return out, err
		}
	}

	rv := reflect.ValueOf(target)
	m := rv.MethodByName(exportName(method))
	if !m.IsValid() {
		return nil, fmt.Errorf("not a function: %q on target %q", method, targetName)
	}
	mt := m.Type()

	in := make([]reflect.Value, 0, mt.NumIn())
	offset := 0
	if mt.NumIn() > 0 && mt.In(0) == ctxType {
		in = append(in, reflect.ValueOf(ctx))
		offset = 1
	}

	want := mt.NumIn() - offset
	if mt.IsVariadic() {
		if len(args) < want-1 {
			return nil, fmt.Errorf("wrong number of arguments for %q on %q: got %d, want at least %d", method, targetName, len(args), want-1)
		}
	} else if len(args) != want {
		return nil, fmt.Errorf("wrong number of arguments for %q on %q: got %d, want %d", method, targetName, len(args), want)
	}

	for i, arg := range args {
		idx := offset + i
		var pt reflect.Type
		if mt.IsVariadic() && idx >= mt.NumIn()-1 {
			pt = mt.In(mt.NumIn() - 1).Elem()
		} else {
			pt = mt.In(idx)
		}
		cv, err := convertArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %q on %q: %w", i, method, targetName, err)
		}
		in = append(in, cv)
	}

	outs := m.Call(in)
	return unpackReturns(mt, outs)
}

// convertArg adapts a JSON-decoded argument to the parameter type. Numbers
// arrive as float64 and convert to any numeric kind; base64 strings decode
// into byte slices.
func convertArg(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(pt), nil
	}
	av := reflect.ValueOf(arg)
	if av.Type().AssignableTo(pt) {
		return av, nil
	}
	if isNumeric(av.Kind()) && isNumeric(pt.Kind()) {
		return av.Convert(pt), nil
	}
	if pt == byteType {
		if s, ok := arg.(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("invalid base64 payload: %w", err)
			}
			return reflect.ValueOf(b), nil
		}
	}
	if pred, ok := arg.(codec.Predicate); ok && pt.Kind() == reflect.Func {
		pv := reflect.ValueOf(pred)
		if pv.Type().AssignableTo(pt) {
			return pv, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, pt)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func unpackReturns(mt reflect.Type, outs []reflect.Value) (any, error) {
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		if mt.Out(0).Implements(errType) {
			if outs[0].IsNil() {
				return nil, nil
			}
			return nil, outs[0].Interface().(error)
		}
		return outs[0].Interface(), nil
	case 2:
		var err error
		if !outs[1].IsNil() {
			err = outs[1].Interface().(error)
		}
		if err != nil {
			return nil, err
		}
		return outs[0].Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported method signature: %d return values", len(outs))
	}
}

func exportName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
