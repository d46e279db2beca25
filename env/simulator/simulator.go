// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package simulator defines the device interface driven by the
// coordinator. The device may be an emulator, a virtual machine or a
// physical handset; the coordinator only sees this surface.
package simulator

import (
	"errors"
	"fmt"
	"math"

	"go.droidenv.dev/env/actions"
	"go.droidenv.dev/env/specs"
	"go.droidenv.dev/env/tensor"
)

// ErrNotLaunched is returned for queries that are only valid after a
// successful Launch call.
var ErrNotLaunched = errors.New("simulator has not been launched")

// ScreenDimensions describes the device screen in pixels.
type ScreenDimensions struct {
	Height   int
	Width    int
	Channels int
}

// Simulator is the controlled device.
type Simulator interface {
	// Launch starts the device. Launching an already-launched device
	// restarts it.
	Launch() error
	// Restart tears the device down and brings it back up.
	Restart() error
	// IsLaunched reports whether Launch has succeeded at least once.
	IsLaunched() bool
	// ScreenDimensions is only valid after a successful Launch.
	ScreenDimensions() (ScreenDimensions, error)
	// SendAction delivers a prepared agent action to the device.
	SendAction(action map[string]tensor.Tensor) error
	// Observation captures the current device observation: pixels,
	// microsecond delta since the previous capture, and orientation.
	Observation() (map[string]tensor.Tensor, error)
	// Close releases device resources. Idempotent.
	Close()
}

// OrientationOnehot encodes a device orientation quadrant as a 4-wide
// one-hot uint8 vector.
func OrientationOnehot(orientation int) tensor.Tensor {
	values := make([]uint8, 4)
	if orientation >= 0 && orientation < 4 {
		values[orientation] = 1
	}
	t, _ := tensor.NewUint8([]int{4}, values)
	return t
}

// TouchPixels converts a normalized [0,1]x[0,1] touch position into
// integer pixel coordinates on the given screen.
func TouchPixels(x, y float32, dims ScreenDimensions) (int, int) {
	px := int(math.Round(float64(x) * float64(dims.Width-1)))
	py := int(math.Round(float64(y) * float64(dims.Height-1)))
	return px, py
}

// PrepareAction converts an agent action into the (x, y, down) triple a
// device consumes. Lift maps to a pointer release at the origin.
func PrepareAction(action map[string]tensor.Tensor, dims ScreenDimensions) (x, y int, down bool, err error) {
	at := ActionTypeOf(action)
	switch at {
	case actions.Lift:
		return 0, 0, false, nil
	case actions.Touch:
		pos, ok := action[specs.KeyTouchPosition].Float32s()
		if !ok || len(pos) != 2 {
			return 0, 0, false, fmt.Errorf("malformed %s in action", specs.KeyTouchPosition)
		}
		px, py := TouchPixels(pos[0], pos[1], dims)
		return px, py, true, nil
	default:
		return 0, 0, false, fmt.Errorf("unexpected action type %s", at)
	}
}

// ActionTypeOf extracts the action type from an action map. Returns -1
// when the entry is missing or malformed.
func ActionTypeOf(action map[string]tensor.Tensor) actions.ActionType {
	vs, ok := action[specs.KeyActionType].Int32s()
	if !ok || len(vs) != 1 {
		return actions.ActionType(-1)
	}
	return actions.ActionType(vs[0])
}
