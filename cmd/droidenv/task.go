// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	log "github.com/sirupsen/logrus"

	"go.droidenv.dev/env/tensor"
)

// demoTask is a scripted task for the demo binary: one reward per step,
// an episode of fixed length, and a single accumulating "score" extra.
// It implements both env.TaskManager and coordinator.TaskLifecycle.
type demoTask struct {
	episodeSteps int
	steps        int
	score        float32
	setups       float64
	resets       float64
	paused       bool
}

func newDemoTask(episodeSteps int) *demoTask {
	return &demoTask{episodeSteps: episodeSteps}
}

func (t *demoTask) CurrentReward() float64 { return 1.0 }

func (t *demoTask) CurrentExtras() map[string]tensor.Tensor {
	score, err := tensor.NewFloat32([]int{1}, []float32{t.score})
	if err != nil {
		return map[string]tensor.Tensor{}
	}
	return map[string]tensor.Tensor{"score": score}
}

func (t *demoTask) IncrementSteps() {
	t.steps++
	t.score++
}

func (t *demoTask) EpisodeEnded() bool {
	return t.steps >= t.episodeSteps
}

func (t *demoTask) PauseTask()  { t.paused = true }
func (t *demoTask) ResumeTask() { t.paused = false }

func (t *demoTask) SetupTask() error {
	t.setups++
	return nil
}

func (t *demoTask) ResetTask() error {
	t.resets++
	return nil
}

func (t *demoTask) ResetCounters() {
	t.steps = 0
	t.score = 0
}

func (t *demoTask) LogDict() map[string]float64 {
	return map[string]float64{
		"task_setups": t.setups,
		"task_resets": t.resets,
	}
}

func (t *demoTask) Close() {
	log.Debug("demo task closed")
}
