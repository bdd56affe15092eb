package script

import (
	"fmt"

	"github.com/peripherialabs/peribus/internal/scene"
)

// Host seeds. The namespace starts with references to the scene
// manager and the display so agents can drive them without any file
// round-trips.

func needInt(name string, v Value) (int, error) {
	switch v := v.(type) {
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("%s must be a number, got %s", name, Repr(v))
}

func needString(name string, v Value) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%s must be a string, got %s", name, Repr(v))
}

func (in *Interp) sceneObject() *Object {
	obj := &Object{TypeName: "Scene"}
	obj.call = func(ctx *evalCtx, sel string, args []Value, kw map[string]Value) (Value, error) {
		switch sel {
		case "clear":
			in.scene.Clear()
			return nil, nil
		case "refresh":
			in.scene.Refresh()
			return nil, nil
		case "item_count":
			return int64(in.scene.ItemCount()), nil
		case "set_background":
			if len(args) != 1 {
				return nil, fmt.Errorf("set_background takes one argument")
			}
			color, err := needString("color", args[0])
			if err != nil {
				return nil, err
			}
			in.scene.SetBackground(color)
			return nil, nil
		}
		return nil, fmt.Errorf("Scene has no method %q", sel)
	}
	return obj
}

func (in *Interp) windowObject() *Object {
	obj := &Object{TypeName: "Window"}
	obj.call = func(ctx *evalCtx, sel string, args []Value, kw map[string]Value) (Value, error) {
		switch sel {
		case "resize":
			if len(args) != 2 {
				return nil, fmt.Errorf("resize takes two arguments")
			}
			w, err := needInt("width", args[0])
			if err != nil {
				return nil, err
			}
			h, err := needInt("height", args[1])
			if err != nil {
				return nil, err
			}
			in.scene.Resize(w, h)
			return nil, nil
		case "width":
			return int64(in.scene.Settings().Width), nil
		case "height":
			return int64(in.scene.Settings().Height), nil
		}
		return nil, fmt.Errorf("Window has no method %q", sel)
	}
	return obj
}

func (in *Interp) viewObject() *Object {
	obj := &Object{TypeName: "View"}
	obj.call = func(ctx *evalCtx, sel string, args []Value, kw map[string]Value) (Value, error) {
		switch sel {
		case "refresh":
			in.scene.Refresh()
			return nil, nil
		}
		return nil, fmt.Errorf("View has no method %q", sel)
	}
	return obj
}

func (in *Interp) itemObject(item *scene.Item) *Object {
	obj := &Object{TypeName: item.Kind, Item: item}
	obj.call = func(ctx *evalCtx, sel string, args []Value, kw map[string]Value) (Value, error) {
		if !in.scene.IsRegistered(item.ID) {
			return nil, fmt.Errorf("%s no longer exists", item.ID)
		}
		switch sel {
		case "move":
			if len(args) != 2 {
				return nil, fmt.Errorf("move takes two arguments")
			}
			dx, err := needInt("dx", args[0])
			if err != nil {
				return nil, err
			}
			dy, err := needInt("dy", args[1])
			if err != nil {
				return nil, err
			}
			shift := func(prop string, d int) {
				if cur, ok := item.Props[prop]; ok {
					f, ok := toFloat(cur)
					if !ok {
						f, ok = toFloat(FromJSONValue(cur))
					}
					if ok {
						item.Props[prop] = int64(f) + int64(d)
					}
				}
			}
			shift("x", dx)
			shift("y", dy)
			shift("x1", dx)
			shift("y1", dy)
			shift("x2", dx)
			shift("y2", dy)
			in.scene.Refresh()
			return nil, nil
		case "set":
			for name, v := range kw {
				if !IsPrimitive(v) {
					return nil, fmt.Errorf("set argument %q must be a primitive", name)
				}
				item.Props[name] = ToJSONValue(v)
			}
			in.scene.Refresh()
			return nil, nil
		case "remove":
			in.scene.RemoveItem(item.ID)
			return nil, nil
		case "id":
			return item.ID, nil
		}
		return nil, fmt.Errorf("%s has no method %q", item.Kind, sel)
	}
	return obj
}
