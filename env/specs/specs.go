// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package specs declares the schema contracts for actions, observations
// and task extras. Schemas are built once from static configuration and
// never mutated afterwards.
package specs

import (
	"fmt"

	"go.droidenv.dev/env/actions"
	"go.droidenv.dev/env/tensor"
)

// Well-known map keys used across the environment boundary.
const (
	KeyActionType    = "action_type"
	KeyTouchPosition = "touch_position"
	KeyPixels        = "pixels"
	KeyTimedelta     = "timedelta"
	KeyOrientation   = "orientation"
)

// Spec describes one named array: its dtype, shape and optional bounds.
// A nil shape denotes a scalar.
type Spec struct {
	Name  string
	DType tensor.DType
	Shape []int

	// Bounded gates Min/Max. Bounds are inclusive and apply to every
	// element.
	Bounded bool
	Min     float64
	Max     float64
}

// ViolationError reports a value that does not satisfy its declared
// schema. It is the only error kind this package produces.
type ViolationError struct {
	Name   string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("schema violation for %q: %s", e.Name, e.Reason)
}

// Validate checks t against s and returns a *ViolationError on the
// first dtype, shape or bounds mismatch.
func (s Spec) Validate(t tensor.Tensor) error {
	if t.DType() != s.DType {
		return &ViolationError{Name: s.Name, Reason: fmt.Sprintf("dtype %s, want %s", t.DType(), s.DType)}
	}
	shape := t.Shape()
	if len(shape) != len(s.Shape) {
		return &ViolationError{Name: s.Name, Reason: fmt.Sprintf("shape %v, want %v", shape, s.Shape)}
	}
	for i := range shape {
		if shape[i] != s.Shape[i] {
			return &ViolationError{Name: s.Name, Reason: fmt.Sprintf("shape %v, want %v", shape, s.Shape)}
		}
	}
	if s.Bounded {
		for _, v := range t.Floats() {
			if v < s.Min || v > s.Max {
				return &ViolationError{Name: s.Name, Reason: fmt.Sprintf("value %v outside bounds [%v, %v]", v, s.Min, s.Max)}
			}
		}
	}
	return nil
}

// ValidateMap checks every entry of value against schema. Entries with
// no declared spec and declared specs with no entry both fail.
func ValidateMap(value map[string]tensor.Tensor, schema map[string]Spec) error {
	for name, spec := range schema {
		t, ok := value[name]
		if !ok {
			return &ViolationError{Name: name, Reason: "missing entry"}
		}
		if err := spec.Validate(t); err != nil {
			return err
		}
	}
	for name := range value {
		if _, ok := schema[name]; !ok {
			return &ViolationError{Name: name, Reason: "entry not declared in schema"}
		}
	}
	return nil
}

// BaseActionSpec returns the action schema. It is fixed for the process
// lifetime: a discrete action kind drawn from the action enumeration
// plus a continuous normalized pointer position.
func BaseActionSpec() map[string]Spec {
	return map[string]Spec{
		KeyActionType: {
			Name:    KeyActionType,
			DType:   tensor.Int32,
			Bounded: true,
			Min:     0,
			Max:     float64(len(actions.All()) - 1),
		},
		KeyTouchPosition: {
			Name:    KeyTouchPosition,
			DType:   tensor.Float32,
			Shape:   []int{2},
			Bounded: true,
			Min:     0.0,
			Max:     1.0,
		},
	}
}

// BaseObservationSpec returns the observation schema for a screen of
// the given dimensions: raw pixels, the microsecond delta since the
// previous observation, and the device orientation as a one-hot vector.
func BaseObservationSpec(height, width, channels int) map[string]Spec {
	return map[string]Spec{
		KeyPixels: {
			Name:  KeyPixels,
			DType: tensor.Uint8,
			Shape: []int{height, width, channels},
		},
		KeyTimedelta: {
			Name:  KeyTimedelta,
			DType: tensor.Int64,
		},
		KeyOrientation: {
			Name:  KeyOrientation,
			DType: tensor.Uint8,
			Shape: []int{4},
		},
	}
}

// TaskExtrasSpec keys the declared extras of a task definition by name.
func TaskExtrasSpec(extras []Spec) map[string]Spec {
	out := make(map[string]Spec, len(extras))
	for _, s := range extras {
		out[s.Name] = s
	}
	return out
}
