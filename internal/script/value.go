package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/peripherialabs/peribus/internal/scene"
)

// Value is the tagged-variant cell of the namespace: nil (None), bool,
// int64, float64, string, *List, *Object, *Module, or a builtin.
type Value interface{}

type List struct {
	Items []Value
}

// Module is the inert record of an import. It exists so the namespace
// remembers the binding (and the vars file can omit it).
type Module struct {
	Name string
}

// Object is an opaque handle: a scene item or a host seed (scene,
// view, window). Methods are dispatched through call.
type Object struct {
	TypeName string
	Item     *scene.Item
	call     func(ctx *evalCtx, sel string, args []Value, kw map[string]Value) (Value, error)
}

type builtin struct {
	name string
	fn   func(ctx *evalCtx, args []Value, kw map[string]Value) (Value, error)
}

// Repr renders a value the way the scripted-runtime protocol expects:
// None, True, 1, 1.5, 'text', [1, 2], <Rect object>.
func Repr(v Value) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
	case *List:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = Repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Module:
		return fmt.Sprintf("<module %s>", v.Name)
	case *Object:
		return fmt.Sprintf("<%s object>", v.TypeName)
	case *builtin:
		return fmt.Sprintf("<builtin %s>", v.name)
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// Str is Repr except strings render without quotes (print semantics).
func Str(v Value) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Repr(v)
}

// IsPrimitive reports whether v serializes verbatim into JSON for the
// vars file and the state envelope.
func IsPrimitive(v Value) bool {
	switch v := v.(type) {
	case nil, bool, int64, float64, string:
		return true
	case *List:
		for _, item := range v.Items {
			if !IsPrimitive(item) {
				return false
			}
		}
		return true
	}
	return false
}

// ToJSONValue lowers a primitive Value to plain Go values for
// encoding/json. Non-primitives render as their placeholder.
func ToJSONValue(v Value) interface{} {
	switch v := v.(type) {
	case nil, bool, int64, float64, string:
		return v
	case *List:
		out := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			out[i] = ToJSONValue(item)
		}
		return out
	case *Object:
		return fmt.Sprintf("<%s object>", v.TypeName)
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// FromJSONValue lifts a decoded JSON value into a namespace Value.
func FromJSONValue(v interface{}) Value {
	switch v := v.(type) {
	case nil, bool, string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
		return v
	case []interface{}:
		list := &List{}
		for _, item := range v {
			list.Items = append(list.Items, FromJSONValue(item))
		}
		return list
	default:
		return fmt.Sprintf("%v", v)
	}
}
