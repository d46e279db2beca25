// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package timestep defines the record returned by every environment
// reset and step call.
package timestep

import (
	"fmt"

	"go.droidenv.dev/env/tensor"
)

// StepType tags the position of a TimeStep within an episode.
type StepType int

const (
	// First is the step produced by a reset.
	First StepType = iota
	// Mid is any step strictly inside an episode.
	Mid
	// Last terminates an episode.
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "FIRST"
	case Mid:
		return "MID"
	case Last:
		return "LAST"
	default:
		return fmt.Sprintf("StepType(%d)", int(s))
	}
}

// Observation maps observation names to their tensor values.
type Observation map[string]tensor.Tensor

// TimeStep is immutable once returned. Discount is 0.0 on First and
// Last, 1.0 on Mid.
type TimeStep struct {
	StepType    StepType
	Observation Observation
	Reward      float64
	Discount    float64
}

// First reports whether the step starts an episode.
func (t TimeStep) First() bool { return t.StepType == First }

// Mid reports whether the step is inside an episode.
func (t TimeStep) Mid() bool { return t.StepType == Mid }

// Last reports whether the step terminates an episode.
func (t TimeStep) Last() bool { return t.StepType == Last }

// Restart builds the TimeStep returned by a reset.
func Restart(obs Observation) TimeStep {
	return TimeStep{StepType: First, Observation: obs, Reward: 0.0, Discount: 0.0}
}

// Transition builds a mid-episode TimeStep.
func Transition(reward float64, obs Observation) TimeStep {
	return TimeStep{StepType: Mid, Observation: obs, Reward: reward, Discount: 1.0}
}

// Termination builds an episode-terminating TimeStep.
func Termination(reward float64, obs Observation) TimeStep {
	return TimeStep{StepType: Last, Observation: obs, Reward: reward, Discount: 0.0}
}
