// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"github.com/easel-foundation/easel/protocol"
)

// paramRegistry holds the parameter controls a program registered
// through the bridge's param builtin, plus the host-set overrides.
// Overrides outlive individual evaluations (a parameter change
// re-runs the program) but not a program reload (a fresh universe
// starts from declared defaults).
type paramRegistry struct {
	entries   []paramEntry
	byName    map[string]int
	overrides map[string]any
}

type paramEntry struct {
	control protocol.ParameterControl

	// integer records that the declared default was a Starlark int,
	// so overridden whole numbers flow back into the program as ints
	// (a program doing range(n) must keep working after the host
	// drags a slider).
	integer bool
}

func newParamRegistry() *paramRegistry {
	return &paramRegistry{
		byName:    map[string]int{},
		overrides: map[string]any{},
	}
}

// register records a control declaration and returns the effective
// value: the override when the host set one of a compatible type,
// the declared default otherwise. Re-registering a name replaces the
// declaration but keeps its position.
func (registry *paramRegistry) register(control protocol.ParameterControl, integer bool) any {
	if index, ok := registry.byName[control.Name]; ok {
		registry.entries[index] = paramEntry{control: control, integer: integer}
	} else {
		registry.byName[control.Name] = len(registry.entries)
		registry.entries = append(registry.entries, paramEntry{control: control, integer: integer})
	}

	if override, ok := registry.overrides[control.Name]; ok {
		if effective, ok := coerceOverride(control, override); ok {
			return effective
		}
	}
	return control.Value
}

// SetOverride stores a host-set value for a named parameter. Unknown
// names are stored too: the program may register the parameter on
// its next evaluation (broadcast lag means the host can know about
// parameters before this universe does).
func (registry *paramRegistry) SetOverride(name string, value any) {
	registry.overrides[name] = value
}

// coerceOverride checks an override against the control's kind and
// clamps numbers into the declared bounds. Returns false for
// type-mismatched values, which are then ignored in favor of the
// default.
func coerceOverride(control protocol.ParameterControl, override any) (any, bool) {
	switch control.Value.(type) {
	case bool:
		typed, ok := override.(bool)
		return typed, ok
	case string:
		typed, ok := override.(string)
		if !ok {
			return nil, false
		}
		if len(control.Options) > 0 {
			for _, option := range control.Options {
				if option == typed {
					return typed, true
				}
			}
			return nil, false
		}
		return typed, true
	case float64:
		number, ok := toFloat(override)
		if !ok {
			return nil, false
		}
		if control.Min != nil && number < *control.Min {
			number = *control.Min
		}
		if control.Max != nil && number > *control.Max {
			number = *control.Max
		}
		return number, true
	}
	return nil, false
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	}
	return 0, false
}

// Controls returns the registered controls with effective (override-
// applied) values, in registration order.
func (registry *paramRegistry) Controls() []protocol.ParameterControl {
	controls := make([]protocol.ParameterControl, 0, len(registry.entries))
	for _, entry := range registry.entries {
		control := entry.control
		if override, ok := registry.overrides[control.Name]; ok {
			if effective, ok := coerceOverride(control, override); ok {
				control.Value = effective
			}
		}
		controls = append(controls, control)
	}
	return controls
}

// cloneOverrides returns a fresh registry carrying only the
// overrides. The re-evaluation after a parameter change runs against
// the clone, so a failing program leaves the active universe's
// declarations intact.
func (registry *paramRegistry) cloneOverrides() *paramRegistry {
	clone := newParamRegistry()
	for name, value := range registry.overrides {
		clone.overrides[name] = value
	}
	return clone
}
