// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"

	"github.com/easel-foundation/easel/protocol"
)

// Bridge is the runtime bridge woven into every generated program: it
// provides the builtins the program uses to declare geometry and
// parameters, mirrors every registered parameter into the gui-config
// projection instead of letting the program render its own controls,
// and remembers the explicitly exported main handle when the program
// sets one.
//
// A Bridge lives exactly as long as one program universe. Reload
// discards it wholesale.
type Bridge struct {
	scene  *Scene
	params *paramRegistry

	// explicitMain is the handle the program exported via set_main,
	// if any. It takes precedence over the first-object heuristic.
	explicitMain *Object

	// pendingMaterial is the last material() declaration; applied to
	// the main object after the program finishes, once the main
	// object is known.
	pendingMaterial *protocol.MaterialConfig
}

func newBridge(scene *Scene, params *paramRegistry) *Bridge {
	return &Bridge{scene: scene, params: params}
}

// MainObject resolves the main render object: the exported handle
// when present, else the first visible non-helper object.
func (bridge *Bridge) MainObject() *Object {
	return bridge.scene.MainObject(bridge.explicitMain)
}

// Finish runs after a successful evaluation: applies the pending
// material declaration to the resolved main object.
func (bridge *Bridge) Finish() {
	if bridge.pendingMaterial == nil {
		return
	}
	if main := bridge.MainObject(); main != nil {
		main.Material = *bridge.pendingMaterial
	}
}

// Predeclared returns the builtin environment injected into program
// evaluation. This is the entire API surface a program can reach;
// nothing else from the host process is visible inside the
// interpreter.
func (bridge *Bridge) Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"param":    starlark.NewBuiltin("param", bridge.paramBuiltin),
		"box":      starlark.NewBuiltin("box", bridge.boxBuiltin),
		"sphere":   starlark.NewBuiltin("sphere", bridge.sphereBuiltin),
		"cylinder": starlark.NewBuiltin("cylinder", bridge.cylinderBuiltin),
		"group":    starlark.NewBuiltin("group", bridge.groupBuiltin),
		"helper":   starlark.NewBuiltin("helper", bridge.helperBuiltin),
		"hide":     starlark.NewBuiltin("hide", bridge.hideBuiltin),
		"set_main": starlark.NewBuiltin("set_main", bridge.setMainBuiltin),
		"material": starlark.NewBuiltin("material", bridge.materialBuiltin),
	}
}

// objectValue wraps a scene object as a Starlark value so programs
// can pass handles to helper(), hide(), and set_main().
type objectValue struct {
	object *Object
}

func (v objectValue) String() string {
	return fmt.Sprintf("<%s %s>", v.object.Kind, v.object.ID)
}
func (v objectValue) Type() string          { return "scene_object" }
func (v objectValue) Freeze()               {}
func (v objectValue) Truth() starlark.Bool  { return starlark.True }
func (v objectValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: scene_object") }

// Attr exposes read-only identity attributes to programs.
func (v objectValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "id":
		return starlark.String(v.object.ID), nil
	case "name":
		return starlark.String(v.object.Name), nil
	case "kind":
		return starlark.String(v.object.Kind), nil
	}
	return nil, nil
}

func (v objectValue) AttrNames() []string {
	return []string{"id", "kind", "name"}
}

// paramBuiltin is the parameter-registration proxy. Every parameter a
// program declares is mirrored into the gui-config projection; the
// builtin returns the effective value: the host override when one is
// set, the declared default otherwise.
func (bridge *Bridge) paramBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.Value
	var min, max, step starlark.Value
	var kind, group string
	var options *starlark.List
	if err := starlark.UnpackArgs("param", args, kwargs,
		"name", &name,
		"default", &defaultValue,
		"min?", &min,
		"max?", &max,
		"step?", &step,
		"kind?", &kind,
		"group?", &group,
		"options?", &options,
	); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("param: name must not be empty")
	}

	control := protocol.ParameterControl{Name: name, Group: group, Kind: kind}

	integer := false
	switch value := defaultValue.(type) {
	case starlark.Bool:
		control.Value = bool(value)
		if control.Kind == "" {
			control.Kind = "toggle"
		}
	case starlark.String:
		control.Value = string(value)
		if control.Kind == "" {
			control.Kind = "choice"
		}
	case starlark.Int:
		number, _ := starlark.AsFloat(value)
		control.Value = number
		integer = true
		if control.Kind == "" {
			control.Kind = "number"
		}
	case starlark.Float:
		control.Value = float64(value)
		if control.Kind == "" {
			control.Kind = "number"
		}
	default:
		return nil, fmt.Errorf("param %s: default must be a bool, string, or number, got %s", name, defaultValue.Type())
	}

	var err error
	if control.Min, err = optionalNumber("min", min); err != nil {
		return nil, fmt.Errorf("param %s: %w", name, err)
	}
	if control.Max, err = optionalNumber("max", max); err != nil {
		return nil, fmt.Errorf("param %s: %w", name, err)
	}
	if control.Step, err = optionalNumber("step", step); err != nil {
		return nil, fmt.Errorf("param %s: %w", name, err)
	}
	if options != nil {
		iterator := options.Iterate()
		defer iterator.Done()
		var element starlark.Value
		for iterator.Next(&element) {
			text, ok := starlark.AsString(element)
			if !ok {
				return nil, fmt.Errorf("param %s: options must be strings, got %s", name, element.Type())
			}
			control.Options = append(control.Options, text)
		}
	}

	effective := bridge.params.register(control, integer)
	return goToStarlark(effective, integer)
}

// numberArg coerces an int or float argument the way AsFloat does, so
// generated code can write sphere(radius=8) as naturally as radius=8.0.
func numberArg(builtinName, argumentName string, value starlark.Value, fallback float64) (float64, error) {
	if value == nil || value == starlark.None {
		return fallback, nil
	}
	number, ok := starlark.AsFloat(value)
	if !ok {
		return 0, fmt.Errorf("%s: %s must be a number, got %s", builtinName, argumentName, value.Type())
	}
	return number, nil
}

func optionalNumber(argumentName string, value starlark.Value) (*float64, error) {
	if value == nil || value == starlark.None {
		return nil, nil
	}
	number, ok := starlark.AsFloat(value)
	if !ok {
		return nil, fmt.Errorf("%s must be a number, got %s", argumentName, value.Type())
	}
	return &number, nil
}

func goToStarlark(value any, integer bool) (starlark.Value, error) {
	switch typed := value.(type) {
	case bool:
		return starlark.Bool(typed), nil
	case string:
		return starlark.String(typed), nil
	case float64:
		if integer && typed == math.Trunc(typed) {
			return starlark.MakeInt64(int64(typed)), nil
		}
		return starlark.Float(typed), nil
	}
	return nil, fmt.Errorf("param: unsupported value %T", value)
}

func (bridge *Bridge) boxBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var sizeValue, atValue starlark.Value
	if err := starlark.UnpackArgs("box", args, kwargs,
		"size?", &sizeValue, "at?", &atValue, "name?", &name); err != nil {
		return nil, err
	}

	size := [3]float64{1, 1, 1}
	if sizeValue != nil {
		var err error
		if size, err = unpackVec3("size", sizeValue); err != nil {
			return nil, err
		}
	}
	center, err := unpackVec3Default("at", atValue)
	if err != nil {
		return nil, err
	}

	object := bridge.scene.Add(&Object{
		Name:          name,
		Kind:          "box",
		Visible:       true,
		Center:        center,
		Size:          size,
		Triangles:     12,
		Manifold:      true,
		ManifoldKnown: true,
	})
	return objectValue{object}, nil
}

func (bridge *Bridge) sphereBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var radiusValue, atValue starlark.Value
	if err := starlark.UnpackArgs("sphere", args, kwargs,
		"radius?", &radiusValue, "at?", &atValue, "name?", &name); err != nil {
		return nil, err
	}
	radius, err := numberArg("sphere", "radius", radiusValue, 1)
	if err != nil {
		return nil, err
	}
	if radius <= 0 {
		return nil, fmt.Errorf("sphere: radius must be positive, got %v", radius)
	}
	center, err := unpackVec3Default("at", atValue)
	if err != nil {
		return nil, err
	}

	object := bridge.scene.Add(&Object{
		Name:          name,
		Kind:          "sphere",
		Visible:       true,
		Center:        center,
		Size:          [3]float64{2 * radius, 2 * radius, 2 * radius},
		Triangles:     960,
		Manifold:      true,
		ManifoldKnown: true,
	})
	return objectValue{object}, nil
}

func (bridge *Bridge) cylinderBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var radiusValue, heightValue, atValue starlark.Value
	if err := starlark.UnpackArgs("cylinder", args, kwargs,
		"radius?", &radiusValue, "height?", &heightValue, "at?", &atValue, "name?", &name); err != nil {
		return nil, err
	}
	radius, err := numberArg("cylinder", "radius", radiusValue, 1)
	if err != nil {
		return nil, err
	}
	height, err := numberArg("cylinder", "height", heightValue, 1)
	if err != nil {
		return nil, err
	}
	if radius <= 0 || height <= 0 {
		return nil, fmt.Errorf("cylinder: radius and height must be positive, got %v and %v", radius, height)
	}
	center, err := unpackVec3Default("at", atValue)
	if err != nil {
		return nil, err
	}

	object := bridge.scene.Add(&Object{
		Name:          name,
		Kind:          "cylinder",
		Visible:       true,
		Center:        center,
		Size:          [3]float64{2 * radius, height, 2 * radius},
		Triangles:     128,
		Manifold:      true,
		ManifoldKnown: true,
	})
	return objectValue{object}, nil
}

func (bridge *Bridge) groupBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs("group", args, kwargs, "name?", &name); err != nil {
		return nil, err
	}
	object := bridge.scene.Add(&Object{
		Name:          name,
		Kind:          "group",
		Visible:       true,
		Manifold:      true,
		ManifoldKnown: true,
	})
	return objectValue{object}, nil
}

func (bridge *Bridge) helperBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	handle, err := unpackObject("helper", args, kwargs)
	if err != nil {
		return nil, err
	}
	handle.object.Helper = true
	return handle, nil
}

func (bridge *Bridge) hideBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	handle, err := unpackObject("hide", args, kwargs)
	if err != nil {
		return nil, err
	}
	handle.object.Visible = false
	return handle, nil
}

func (bridge *Bridge) setMainBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	handle, err := unpackObject("set_main", args, kwargs)
	if err != nil {
		return nil, err
	}
	bridge.explicitMain = handle.object
	return handle, nil
}

func (bridge *Bridge) materialBuiltin(thread *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	config := protocol.MaterialConfig{Metalness: 0, Roughness: 0.8, Opacity: 1}
	var flatShading, wireframe bool
	var metalnessValue, roughnessValue, opacityValue starlark.Value
	if err := starlark.UnpackArgs("material", args, kwargs,
		"color?", &config.Color,
		"metalness?", &metalnessValue,
		"roughness?", &roughnessValue,
		"opacity?", &opacityValue,
		"wireframe?", &wireframe,
		"flat_shading?", &flatShading,
	); err != nil {
		return nil, err
	}
	var err error
	if config.Metalness, err = numberArg("material", "metalness", metalnessValue, config.Metalness); err != nil {
		return nil, err
	}
	if config.Roughness, err = numberArg("material", "roughness", roughnessValue, config.Roughness); err != nil {
		return nil, err
	}
	if config.Opacity, err = numberArg("material", "opacity", opacityValue, config.Opacity); err != nil {
		return nil, err
	}
	config.Wireframe = wireframe
	config.FlatShading = flatShading
	bridge.pendingMaterial = &config
	return starlark.None, nil
}

func unpackObject(builtinName string, args starlark.Tuple, kwargs []starlark.Tuple) (objectValue, error) {
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(builtinName, args, kwargs, 1, &value); err != nil {
		return objectValue{}, err
	}
	handle, ok := value.(objectValue)
	if !ok {
		return objectValue{}, fmt.Errorf("%s: want a scene object, got %s", builtinName, value.Type())
	}
	return handle, nil
}

func unpackVec3Default(argumentName string, value starlark.Value) ([3]float64, error) {
	if value == nil || value == starlark.None {
		return [3]float64{}, nil
	}
	return unpackVec3(argumentName, value)
}

func unpackVec3(argumentName string, value starlark.Value) ([3]float64, error) {
	sequence, ok := value.(starlark.Indexable)
	if !ok || sequence.Len() != 3 {
		return [3]float64{}, fmt.Errorf("%s: want a sequence of 3 numbers, got %s", argumentName, value.Type())
	}
	var result [3]float64
	for i := 0; i < 3; i++ {
		number, ok := starlark.AsFloat(sequence.Index(i))
		if !ok {
			return [3]float64{}, fmt.Errorf("%s[%d]: want a number, got %s", argumentName, i, sequence.Index(i).Type())
		}
		result[i] = number
	}
	return result, nil
}
