// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package coordinator mediates between the environment core and the
// simulated device: it owns restart policy, frame pacing and step
// timeout detection, and shields the core from device failures by
// flagging a restart instead of surfacing errors mid-episode.
package coordinator

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"go.droidenv.dev/env/actions"
	"go.droidenv.dev/env/simulator"
	"go.droidenv.dev/env/specs"
	"go.droidenv.dev/env/tensor"
)

const maxRestartTries = 3

// ErrTooManyRestarts is returned once the restart retry budget is
// exhausted. There is no recovery policy beyond it.
var ErrTooManyRestarts = errors.New("maximum number of simulator restarts reached")

// TaskLifecycle is the slice of the task manager the coordinator
// drives around restarts and resets.
type TaskLifecycle interface {
	PauseTask()
	ResumeTask()
	SetupTask() error
	ResetTask() error
	ResetCounters()
	LogDict() map[string]float64
	Close()
}

// Config tunes the coordinator.
type Config struct {
	// StepTimeout ends the episode when the gap since the last
	// observation exceeds it. Zero disables the check.
	StepTimeout time.Duration
	// MaxStepsPerSec paces interaction; the coordinator sleeps before
	// capturing an observation if the device is faster.
	MaxStepsPerSec float64
	// PeriodicRestart proactively restarts the simulator at the next
	// episode boundary once it has been up this long. Zero disables.
	PeriodicRestart time.Duration
	// ForceLaunch relaunches the simulator at construction even if it
	// reports being up already.
	ForceLaunch bool
}

// restartCounts holds the typed per-cause restart counters exported in
// the coordinator log dict.
type restartCounts struct {
	fetchObservation int64
	simulatorReset   int64
	simulatorRestart int64
	setupSteps       int64
	executeAction    int64
	periodic         int64
}

// Coordinator implements the backend collaborator surface consumed by
// the environment. Single-caller, like the environment itself.
type Coordinator struct {
	sim  simulator.Simulator
	task TaskLifecycle
	cfg  Config

	shouldRestart bool
	counts        restartCounts
	latestObsTime time.Time
	simStart      time.Time

	// Stubbed in tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New builds a Coordinator and performs the initial simulator launch.
// Launch failure after the retry budget is fatal to construction.
func New(sim simulator.Simulator, task TaskLifecycle, cfg Config) (*Coordinator, error) {
	if cfg.MaxStepsPerSec <= 0 {
		cfg.MaxStepsPerSec = 5.0
	}
	c := &Coordinator{
		sim:   sim,
		task:  task,
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}
	if err := c.RestartSimulator(); err != nil {
		return nil, err
	}
	return c, nil
}

// ShouldRestart reports whether a device failure was flagged since the
// last restart.
func (c *Coordinator) ShouldRestart() bool {
	return c.shouldRestart
}

// ScreenDimensions queries the launched device.
func (c *Coordinator) ScreenDimensions() (simulator.ScreenDimensions, error) {
	return c.sim.ScreenDimensions()
}

// LogDict returns the coordinator restart counters merged with the task
// manager's own counters. The returned map is a fresh copy.
func (c *Coordinator) LogDict() map[string]float64 {
	out := map[string]float64{
		"restart_count_fetch_observation": float64(c.counts.fetchObservation),
		"restart_count_simulator_reset":   float64(c.counts.simulatorReset),
		"restart_count_simulator_restart": float64(c.counts.simulatorRestart),
		"restart_count_setup_steps":       float64(c.counts.setupSteps),
		"restart_count_execute_action":    float64(c.counts.executeAction),
		"restart_count_periodic":          float64(c.counts.periodic),
	}
	for k, v := range c.task.LogDict() {
		out[k] = v
	}
	return out
}

// RestartSimulator relaunches the device and re-runs task setup,
// retrying up to the restart budget.
func (c *Coordinator) RestartSimulator() error {
	c.shouldRestart = false
	c.task.PauseTask()

	for try := 1; ; try++ {
		if try > maxRestartTries {
			log.Error("maximum number of restarts reached")
			return ErrTooManyRestarts
		}
		log.Infof("simulator launch attempt %d of %d", try, maxRestartTries)

		if c.cfg.ForceLaunch || !c.sim.IsLaunched() {
			if err := c.sim.Launch(); err != nil {
				log.WithError(err).Error("error launching the simulator")
				c.counts.simulatorRestart++
				continue
			}
			c.simStart = c.now()
		}

		if err := c.task.SetupTask(); err != nil {
			log.WithError(err).Error("failed to execute task setup, restarting simulator")
			c.counts.setupSteps++
			continue
		}
		return nil
	}
}

// Reset prepares the device for a new episode. Task reset failures flag
// a restart instead of propagating; only an exhausted periodic restart
// surfaces an error.
func (c *Coordinator) Reset() error {
	if err := c.maybePeriodicRestart(); err != nil {
		return err
	}

	// Release the pointer before resetting.
	c.sendAction(liftAction())

	c.latestObsTime = time.Time{}
	c.task.PauseTask()

	if err := c.task.ResetTask(); err != nil {
		log.WithError(err).Error("failed to execute task reset, restarting simulator")
		c.counts.simulatorReset++
		c.shouldRestart = true
		return nil
	}

	c.task.ResetCounters()
	c.task.ResumeTask()
	return nil
}

func (c *Coordinator) maybePeriodicRestart() error {
	if c.simStart.IsZero() || c.cfg.PeriodicRestart <= 0 {
		return nil
	}
	alive := c.now().Sub(c.simStart)
	if alive < c.cfg.PeriodicRestart {
		return nil
	}
	log.Infof("simulator has been up %s, triggering a periodic restart", alive)
	// Not counted under restart_count: a periodic restart is expected
	// behavior, not a failure.
	c.counts.periodic++
	return c.RestartSimulator()
}

// ExecuteAction sends the action to the device (unless nil or a Repeat)
// and captures a fresh observation. A nil return means the device was
// unusable and a restart has been flagged.
func (c *Coordinator) ExecuteAction(action map[string]tensor.Tensor) map[string]tensor.Tensor {
	if action != nil && simulator.ActionTypeOf(action) != actions.Repeat {
		c.sendAction(action)
	}

	c.waitForNextFrame()

	obs, err := c.sim.Observation()
	if err != nil {
		log.WithError(err).Error("unable to fetch observation, restarting simulator")
		c.counts.fetchObservation++
		c.shouldRestart = true
		return nil
	}
	c.latestObsTime = c.now()
	return obs
}

func (c *Coordinator) sendAction(action map[string]tensor.Tensor) {
	if err := c.sim.SendAction(action); err != nil {
		log.WithError(err).Error("unable to execute action, restarting simulator")
		c.counts.executeAction++
		c.shouldRestart = true
	}
}

func (c *Coordinator) waitForNextFrame() {
	since := c.timeSinceLastObservation()
	wait := time.Duration(float64(time.Second)/c.cfg.MaxStepsPerSec) - since
	if wait > 0 {
		c.sleep(wait)
	}
}

func (c *Coordinator) timeSinceLastObservation() time.Duration {
	if c.latestObsTime.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return c.now().Sub(c.latestObsTime)
}

// CheckTimeout reports whether the configured step timeout has elapsed
// since the last observation.
func (c *Coordinator) CheckTimeout() bool {
	if c.cfg.StepTimeout <= 0 {
		return false
	}
	return c.timeSinceLastObservation() > c.cfg.StepTimeout
}

// Close releases the task manager and the device. Idempotent because
// both collaborators are.
func (c *Coordinator) Close() {
	log.Info("cleaning up coordinator")
	c.task.Close()
	c.sim.Close()
	log.Info("done cleaning up coordinator")
}

func liftAction() map[string]tensor.Tensor {
	return map[string]tensor.Tensor{
		specs.KeyActionType:    tensor.Int32Scalar(int32(actions.Lift)),
		specs.KeyTouchPosition: tensor.Float32Vector(0, 0),
	}
}
