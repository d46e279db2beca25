// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package env

// State names the position of the environment in its episode
// lifecycle.
type State int

const (
	// StateUninitialized precedes the first reset.
	StateUninitialized State = iota
	// StateActive covers FIRST and MID steps of a live episode.
	StateActive
	// StateTerminated follows a LAST step; the next reset (explicit or
	// silent) moves back to StateActive.
	StateTerminated
)

const (
	StateUninitializedName = "UNINITIALIZED"
	StateActiveName        = "ACTIVE"
	StateTerminatedName    = "TERMINATED"
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return StateUninitializedName
	case StateActive:
		return StateActiveName
	case StateTerminated:
		return StateTerminatedName
	default:
		return "UNKNOWN"
	}
}
