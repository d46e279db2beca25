// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package env implements the episode lifecycle state machine driving a
// reset/step interaction loop against a simulated device. The device
// itself is only reached through the Coordinator collaborator; reward
// and episode-end semantics live behind the TaskManager collaborator.
package env

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.droidenv.dev/env/simulator"
	"go.droidenv.dev/env/specs"
	"go.droidenv.dev/env/telemetry"
	"go.droidenv.dev/env/tensor"
	"go.droidenv.dev/env/timestep"
)

// Coordinator is the backend collaborator controlling the simulated
// device. Device failures never surface as errors mid-episode: the
// coordinator flags ShouldRestart and returns nil observations instead.
type Coordinator interface {
	// Reset prepares the backend for a new episode.
	Reset() error
	// ExecuteAction performs the action (nil means observe only) and
	// returns the resulting observation, or nil when the device was
	// unusable.
	ExecuteAction(action map[string]tensor.Tensor) map[string]tensor.Tensor
	// ShouldRestart reports a flagged device failure.
	ShouldRestart() bool
	// RestartSimulator relaunches the device.
	RestartSimulator() error
	// CheckTimeout reports whether the step timeout has elapsed.
	CheckTimeout() bool
	// ScreenDimensions queries the device screen. Only called at
	// construction time.
	ScreenDimensions() (simulator.ScreenDimensions, error)
	// LogDict exports backend counters, merged into telemetry flushes.
	LogDict() map[string]float64
	// Close releases backend resources. Idempotent.
	Close()
}

// TaskManager is the episode/task collaborator.
type TaskManager interface {
	CurrentReward() float64
	CurrentExtras() map[string]tensor.Tensor
	IncrementSteps()
	EpisodeEnded() bool
}

// Env is the environment state machine. It owns the latest-state cache
// and the reset-pending flag exclusively. Not safe for concurrent use;
// a single logical caller drives Reset/Step/Close.
type Env struct {
	coord Coordinator
	task  TaskManager

	actionSpec map[string]specs.Spec
	obsSpec    map[string]specs.Spec
	extrasSpec map[string]specs.Spec

	latestAction      map[string]tensor.Tensor
	latestObservation map[string]tensor.Tensor
	latestExtras      map[string]tensor.Tensor
	latestStepType    timestep.StepType

	state         State
	resetNextStep bool
	episodeID     string
	closed        bool

	ledger *telemetry.Ledger
}

// New builds an Env over its collaborators. The observation schema is
// derived from the device screen; a backend that cannot report its
// screen is fatal to construction.
func New(coord Coordinator, task TaskManager, taskExtras []specs.Spec) (*Env, error) {
	dims, err := coord.ScreenDimensions()
	if err != nil {
		return nil, err
	}
	e := &Env{
		coord:             coord,
		task:              task,
		actionSpec:        specs.BaseActionSpec(),
		obsSpec:           specs.BaseObservationSpec(dims.Height, dims.Width, dims.Channels),
		extrasSpec:        specs.TaskExtrasSpec(taskExtras),
		latestAction:      map[string]tensor.Tensor{},
		latestObservation: map[string]tensor.Tensor{},
		latestExtras:      map[string]tensor.Tensor{},
		latestStepType:    timestep.Last,
		state:             StateUninitialized,
		resetNextStep:     true,
		ledger:            telemetry.NewLedger(),
	}
	log.Infof("action spec: %v", e.actionSpec)
	log.Infof("observation spec: %v", e.obsSpec)
	log.Infof("task extras spec: %v", e.extrasSpec)
	return e, nil
}

// ActionSpec returns the action schema. Callers must not mutate it.
func (e *Env) ActionSpec() map[string]specs.Spec { return e.actionSpec }

// ObservationSpec returns the observation schema. Callers must not
// mutate it.
func (e *Env) ObservationSpec() map[string]specs.Spec { return e.obsSpec }

// TaskExtrasSpec returns the task-extras schema. Callers must not
// mutate it.
func (e *Env) TaskExtrasSpec() map[string]specs.Spec { return e.extrasSpec }

// RawAction returns the latest cached action as a read-only view, not a
// defensive copy. Callers must not mutate it.
func (e *Env) RawAction() map[string]tensor.Tensor { return e.latestAction }

// RawObservation returns the latest cached observation as a read-only
// view, not a defensive copy. Callers must not mutate it.
func (e *Env) RawObservation() map[string]tensor.Tensor { return e.latestObservation }

// State returns the lifecycle state.
func (e *Env) State() State { return e.state }

// EpisodeID returns the identifier minted for the current episode.
// Empty before the first reset.
func (e *Env) EpisodeID() string { return e.episodeID }

// Ledger exposes the telemetry ledger for metric export.
func (e *Env) Ledger() *telemetry.Ledger { return e.ledger }

// Reset starts a new episode and returns its FIRST TimeStep. Backend
// failures during reset are absorbed by the coordinator's own restart
// policy; the only outward error is an exhausted restart budget.
func (e *Env) Reset() (timestep.TimeStep, error) {
	log.Info("resetting environment")
	if err := e.coord.Reset(); err != nil {
		return timestep.TimeStep{}, err
	}

	e.latestAction = map[string]tensor.Tensor{}
	e.ledger.BeginEpisode()
	e.episodeID = uuid.New().String()

	// A nil action fetches the initial observation without touching the
	// device. If the capture failed, the stale cached observation (or
	// the empty one on first reset) is kept.
	if obs := e.coord.ExecuteAction(nil); obs != nil {
		e.latestObservation = copyValues(obs)
	}
	e.latestExtras = copyValues(e.task.CurrentExtras())

	e.resetNextStep = false
	e.latestStepType = timestep.First
	e.state = StateActive

	log.Infof("starting episode %s", e.episodeID)
	return timestep.Restart(e.latestObservation), nil
}

// Step advances the episode by one action. Backend unhealthiness and
// step timeouts short-circuit semantic processing, in that order, and
// terminate the episode with zero reward and the previous observation.
// A step issued after a terminal TimeStep silently resets instead and
// discards the action.
func (e *Env) Step(action map[string]tensor.Tensor) (timestep.TimeStep, error) {
	if e.coord.ShouldRestart() {
		e.ledger.RecordRestart()
		if err := e.coord.RestartSimulator(); err != nil {
			return timestep.TimeStep{}, err
		}
		e.terminate()
		return timestep.Termination(0.0, e.latestObservation), nil
	}

	if e.coord.CheckTimeout() {
		e.ledger.RecordTimeoutReset()
		log.Info("step has timed out, ending episode")
		e.terminate()
		return timestep.Termination(0.0, e.latestObservation), nil
	}

	if e.resetNextStep {
		return e.Reset()
	}

	e.latestAction = copyValues(action)
	e.ledger.RecordStep(simulator.ActionTypeOf(action))
	e.task.IncrementSteps()

	if obs := e.coord.ExecuteAction(action); obs != nil {
		e.latestObservation = copyValues(obs)
	}
	reward := e.task.CurrentReward()
	e.latestExtras = copyValues(e.task.CurrentExtras())

	if e.task.EpisodeEnded() {
		e.terminate()
		return timestep.Termination(reward, e.latestObservation), nil
	}
	e.resetNextStep = false
	e.latestStepType = timestep.Mid
	e.state = StateActive
	return timestep.Transition(reward, e.latestObservation), nil
}

func (e *Env) terminate() {
	e.resetNextStep = true
	e.latestStepType = timestep.Last
	e.state = StateTerminated
}

// TaskExtras returns the task extras accumulated since the last step,
// validated against the task-extras schema. With latestOnly, only the
// most recent value per key is returned. The read is idempotent.
func (e *Env) TaskExtras(latestOnly bool) (map[string]tensor.Tensor, error) {
	out := make(map[string]tensor.Tensor, len(e.extrasSpec))
	for key, spec := range e.extrasSpec {
		raw, ok := e.latestExtras[key]
		if !ok {
			continue
		}
		values := raw.Convert(spec.DType)
		elems := values.Elems()
		if len(elems) == 0 {
			continue
		}
		for _, elem := range elems {
			if err := spec.Validate(elem); err != nil {
				return nil, err
			}
		}
		if latestOnly {
			out[key] = elems[len(elems)-1]
		} else {
			out[key] = values
		}
	}
	return out, nil
}

// Logs flushes the telemetry ledger merged with the backend counters.
// The result is a snapshot; it never aliases internal storage.
func (e *Env) Logs() map[string]float64 {
	return e.ledger.Flush(e.coord.LogDict())
}

// Close releases the backend exactly once. Safe to call any number of
// times; never fails.
func (e *Env) Close() {
	if e.closed {
		return
	}
	log.Info("cleaning up environment")
	e.coord.Close()
	e.closed = true
	log.Info("done cleaning up environment")
}

func copyValues(m map[string]tensor.Tensor) map[string]tensor.Tensor {
	out := make(map[string]tensor.Tensor, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
