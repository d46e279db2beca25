// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package actions defines the fixed action enumeration understood by the
// device backend. The set is closed: telemetry counters and the action
// schema are both enumerated from it at construction time.
package actions

import "fmt"

// ActionType identifies the kind of interaction sent to the device.
type ActionType int32

const (
	// Touch presses the pointer down at the supplied screen position.
	Touch ActionType = 0
	// Lift releases the pointer. Also used as the null action during reset.
	Lift ActionType = 1
	// Repeat re-issues the previous action without contacting the device.
	Repeat ActionType = 2
)

// All returns every defined action type in enumeration order.
func All() []ActionType {
	return []ActionType{Touch, Lift, Repeat}
}

// Valid reports whether t is a member of the enumeration.
func (t ActionType) Valid() bool {
	return t >= Touch && t <= Repeat
}

func (t ActionType) String() string {
	switch t {
	case Touch:
		return "TOUCH"
	case Lift:
		return "LIFT"
	case Repeat:
		return "REPEAT"
	default:
		return fmt.Sprintf("ActionType(%d)", int32(t))
	}
}
