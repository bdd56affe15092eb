package script

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/peripherialabs/peribus/internal/scene"
)

// Interp executes scene DSL fragments against a single long-lived
// namespace. State persists between successive fragments: agents build
// a display iteratively, so a failure in one submission must never
// poison the bindings for the next.
type Interp struct {
	mu    sync.Mutex
	ns    map[string]Value
	scene *scene.Manager
}

// Result is what one execution produced.
type Result struct {
	Success         bool
	Err             string
	HasResult       bool
	Result          Value
	WidgetsCreated  []string
	ItemsRegistered []string
}

type evalCtx struct {
	in     *Interp
	stdout io.Writer
	stderr io.Writer
	result *Result
}

// Positional parameter names per constructor kind.
var ctorParams = map[string][]string{
	"Rect":    {"x", "y", "width", "height", "color"},
	"Ellipse": {"x", "y", "width", "height", "color"},
	"Line":    {"x1", "y1", "x2", "y2", "color"},
	"Text":    {"text", "x", "y", "color"},
}

func New(m *scene.Manager) *Interp {
	in := &Interp{scene: m}
	in.ns = in.seed()
	return in
}

func (in *Interp) seed() map[string]Value {
	ns := map[string]Value{
		"print": &builtin{name: "print", fn: builtinPrint},
		"len":   &builtin{name: "len", fn: builtinLen},
	}
	for kind := range ctorParams {
		kind := kind
		ns[kind] = &builtin{name: kind, fn: func(ctx *evalCtx, args []Value, kw map[string]Value) (Value, error) {
			return ctx.construct(kind, args, kw)
		}}
	}
	ns["scene"] = in.sceneObject()
	ns["window"] = in.windowObject()
	ns["view"] = in.viewObject()
	return ns
}

// Execute runs one fragment. Captured stdout/stderr go to the given
// sinks; the protocol-level caller posts them to the streaming files.
func (in *Interp) Execute(code string, stdout, stderr io.Writer) Result {
	in.mu.Lock()
	defer in.mu.Unlock()
	res := Result{}
	stmts, err := Parse(code)
	if err != nil {
		fmt.Fprintf(stderr, "parse error: %v\n", err)
		res.Err = err.Error()
		return res
	}
	ctx := &evalCtx{in: in, stdout: stdout, stderr: stderr, result: &res}
	var last Value
	lastWasExpr := false
	for _, ps := range stmts {
		switch stmt := ps.Stmt.(type) {
		case *ImportStmt:
			in.ns[moduleBinding(stmt.Module)] = &Module{Name: stmt.Module}
			lastWasExpr = false
		case *AssignStmt:
			v, err := ctx.eval(stmt.X)
			if err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
				res.Err = err.Error()
				return res
			}
			in.ns[stmt.Name] = v
			lastWasExpr = false
		case *ExprStmt:
			v, err := ctx.eval(stmt.X)
			if err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
				res.Err = err.Error()
				return res
			}
			last = v
			lastWasExpr = true
		}
	}
	res.Success = true
	res.HasResult = lastWasExpr
	if lastWasExpr {
		res.Result = last
	}
	return res
}

func moduleBinding(module string) string {
	if i := strings.Index(module, "."); i >= 0 {
		return module[:i]
	}
	return module
}

// Has reports whether name is bound.
func (in *Interp) Has(name string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.ns[name]
	return ok
}

// LiveWidget reports whether name is bound to a scene item that is
// still registered, or to any non-item value. Compaction drops widget
// creations whose result has left the namespace or the scene.
func (in *Interp) LiveWidget(name string) bool {
	in.mu.Lock()
	v, ok := in.ns[name]
	in.mu.Unlock()
	if !ok {
		return false
	}
	if obj, ok := v.(*Object); ok && obj.Item != nil {
		return in.scene.IsRegistered(obj.Item.ID)
	}
	return true
}

// VarsSnapshot returns the namespace for the vars file: primitives and
// containers verbatim, other values as placeholders. Underscore names,
// modules and builtins are omitted.
func (in *Interp) VarsSnapshot() map[string]interface{} {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make(map[string]interface{})
	for name, v := range in.ns {
		if strings.HasPrefix(name, "_") {
			continue
		}
		switch v.(type) {
		case *Module, *builtin:
			continue
		}
		out[name] = ToJSONValue(v)
	}
	return out
}

// PrimitiveVars returns only the verbatim-serializable bindings, for
// the state envelope.
func (in *Interp) PrimitiveVars() map[string]interface{} {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make(map[string]interface{})
	for name, v := range in.ns {
		if strings.HasPrefix(name, "_") {
			continue
		}
		switch v.(type) {
		case *Module, *builtin, *Object:
			continue
		}
		if IsPrimitive(v) {
			out[name] = ToJSONValue(v)
		}
	}
	return out
}

// SetVar binds a primitive restored from a state envelope.
func (in *Interp) SetVar(name string, v interface{}) {
	in.mu.Lock()
	in.ns[name] = FromJSONValue(v)
	in.mu.Unlock()
}

// Reset reseeds the namespace. Used by state restore before replay.
func (in *Interp) Reset() {
	in.mu.Lock()
	in.ns = in.seed()
	in.mu.Unlock()
}

// Names returns the bound names in sorted order (tests and debugging).
func (in *Interp) Names() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	names := make([]string, 0, len(in.ns))
	for name := range in.ns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ctx *evalCtx) eval(x Expr) (Value, error) {
	switch x := x.(type) {
	case *Lit:
		return x.V, nil
	case *NameExpr:
		if v, ok := ctx.in.ns[x.Ident]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("name %q is not defined", x.Ident)
	case *ListExpr:
		list := &List{}
		for _, e := range x.Elems {
			v, err := ctx.eval(e)
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, v)
		}
		return list, nil
	case *UnaryExpr:
		v, err := ctx.eval(x.X)
		if err != nil {
			return nil, err
		}
		switch v := v.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		}
		return nil, fmt.Errorf("bad operand for unary -: %s", Repr(v))
	case *BinaryExpr:
		return ctx.binary(x)
	case *AttrExpr:
		return nil, fmt.Errorf("attribute %q is not callable standalone", x.Sel)
	case *CallExpr:
		return ctx.call(x)
	}
	return nil, fmt.Errorf("cannot evaluate %T", x)
}

func (ctx *evalCtx) binary(x *BinaryExpr) (Value, error) {
	a, err := ctx.eval(x.X)
	if err != nil {
		return nil, err
	}
	b, err := ctx.eval(x.Y)
	if err != nil {
		return nil, err
	}
	if x.Op == "+" {
		if as, ok := a.(string); ok {
			if bs, ok := b.(string); ok {
				return as + bs, nil
			}
		}
		if al, ok := a.(*List); ok {
			if bl, ok := b.(*List); ok {
				return &List{Items: append(append([]Value{}, al.Items...), bl.Items...)}, nil
			}
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, fmt.Errorf("unsupported operands for %s: %s and %s", x.Op, Repr(a), Repr(b))
	}
	ai, aint := a.(int64)
	bi, bint := b.(int64)
	switch x.Op {
	case "+":
		if aint && bint {
			return ai + bi, nil
		}
		return af + bf, nil
	case "-":
		if aint && bint {
			return ai - bi, nil
		}
		return af - bf, nil
	case "*":
		if aint && bint {
			return ai * bi, nil
		}
		return af * bf, nil
	case "/":
		if bf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return af / bf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", x.Op)
}

func toFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func (ctx *evalCtx) call(x *CallExpr) (Value, error) {
	args := make([]Value, 0, len(x.Args))
	for _, a := range x.Args {
		v, err := ctx.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	kw := make(map[string]Value, len(x.Kw))
	for _, a := range x.Kw {
		v, err := ctx.eval(a.X)
		if err != nil {
			return nil, err
		}
		kw[a.Name] = v
	}
	if attr, ok := x.Fn.(*AttrExpr); ok {
		recv, err := ctx.eval(attr.X)
		if err != nil {
			return nil, err
		}
		obj, ok := recv.(*Object)
		if !ok {
			return nil, fmt.Errorf("%s has no method %q", Repr(recv), attr.Sel)
		}
		return obj.call(ctx, attr.Sel, args, kw)
	}
	fn, err := ctx.eval(x.Fn)
	if err != nil {
		return nil, err
	}
	if b, ok := fn.(*builtin); ok {
		return b.fn(ctx, args, kw)
	}
	return nil, fmt.Errorf("%s is not callable", Repr(fn))
}

// construct makes a scene item, registers it, and records the creation
// on the result.
func (ctx *evalCtx) construct(kind string, args []Value, kw map[string]Value) (Value, error) {
	params := ctorParams[kind]
	if len(args) > len(params) {
		return nil, fmt.Errorf("%s() takes at most %d positional arguments", kind, len(params))
	}
	props := make(map[string]interface{})
	for i, v := range args {
		props[params[i]] = ToJSONValue(v)
	}
	for name, v := range kw {
		if !IsPrimitive(v) {
			return nil, fmt.Errorf("%s() argument %q must be a primitive", kind, name)
		}
		props[name] = ToJSONValue(v)
	}
	item := ctx.in.scene.RegisterItem(kind, props)
	ctx.result.WidgetsCreated = append(ctx.result.WidgetsCreated, item.ID)
	ctx.result.ItemsRegistered = append(ctx.result.ItemsRegistered, item.ID)
	return ctx.in.itemObject(item), nil
}

func builtinPrint(ctx *evalCtx, args []Value, kw map[string]Value) (Value, error) {
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = Str(v)
	}
	fmt.Fprintln(ctx.stdout, strings.Join(parts, " "))
	return nil, nil
}

func builtinLen(ctx *evalCtx, args []Value, kw map[string]Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case string:
		return int64(len(v)), nil
	case *List:
		return int64(len(v.Items)), nil
	}
	return nil, fmt.Errorf("object of type %s has no len()", Repr(args[0]))
}
