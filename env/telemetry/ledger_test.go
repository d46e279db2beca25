// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"go.droidenv.dev/env/actions"
)

func TestNewLedgerStartsZeroed(t *testing.T) {
	l := NewLedger()
	for _, scope := range Scopes() {
		assert.Equal(t, int64(0), l.Steps(scope))
		for _, at := range actions.All() {
			assert.Equal(t, int64(0), l.ActionCount(scope, at))
		}
	}
	assert.Equal(t, int64(0), l.Restarts())
	assert.Equal(t, int64(0), l.TimeoutResets())
}

func TestRecordStepCountsBothScopes(t *testing.T) {
	l := NewLedger()
	l.RecordStep(actions.Touch)
	l.RecordStep(actions.Touch)
	l.RecordStep(actions.Lift)

	for _, scope := range Scopes() {
		assert.Equal(t, int64(3), l.Steps(scope))
		assert.Equal(t, int64(2), l.ActionCount(scope, actions.Touch))
		assert.Equal(t, int64(1), l.ActionCount(scope, actions.Lift))
		assert.Equal(t, int64(0), l.ActionCount(scope, actions.Repeat))
	}
}

func TestBeginEpisodeResetsOnlyEpisodeScope(t *testing.T) {
	l := NewLedger()
	l.RecordStep(actions.Touch)
	l.RecordRestart()
	l.RecordTimeoutReset()

	l.BeginEpisode()

	assert.Equal(t, int64(0), l.Steps(Episode))
	assert.Equal(t, int64(0), l.ActionCount(Episode, actions.Touch))
	assert.Equal(t, int64(1), l.Steps(Total))
	assert.Equal(t, int64(1), l.ActionCount(Total, actions.Touch))
	assert.Equal(t, int64(1), l.Restarts())
	assert.Equal(t, int64(1), l.TimeoutResets())
}

func TestFlushDerivesRatios(t *testing.T) {
	l := NewLedger()
	seq := []actions.ActionType{actions.Touch, actions.Lift, actions.Touch, actions.Touch}
	for _, at := range seq {
		l.RecordStep(at)
	}

	out := l.Flush(nil)
	assert.Equal(t, 4.0, out["droidenv_episode_steps"])
	assert.InDelta(t, 0.75, out["droidenv_episode_action_type_ratio_TOUCH"], 1e-9)
	assert.InDelta(t, 0.25, out["droidenv_episode_action_type_ratio_LIFT"], 1e-9)
	assert.InDelta(t, 0.0, out["droidenv_episode_action_type_ratio_REPEAT"], 1e-9)

	sum := 0.0
	for _, at := range actions.All() {
		sum += out["droidenv_total_action_type_ratio_"+at.String()]
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestFlushSkipsRatiosOnZeroSteps(t *testing.T) {
	l := NewLedger()
	out := l.Flush(nil)
	assert.Equal(t, 0.0, out["droidenv_total_steps"])
	assert.NotContains(t, out, "droidenv_total_action_type_ratio_TOUCH")
	assert.NotContains(t, out, "droidenv_episode_action_type_ratio_TOUCH")
}

func TestFlushMergesBackendCounters(t *testing.T) {
	l := NewLedger()
	l.RecordRestart()
	out := l.Flush(map[string]float64{"restart_count_periodic": 3})
	assert.Equal(t, 1.0, out[RestartCountKey])
	assert.Equal(t, 3.0, out["restart_count_periodic"])
}

func TestFlushReturnsSnapshot(t *testing.T) {
	l := NewLedger()
	l.RecordStep(actions.Touch)

	out := l.Flush(nil)
	out["droidenv_total_steps"] = 999

	again := l.Flush(nil)
	assert.Equal(t, 1.0, again["droidenv_total_steps"])
}

func TestCollectorEmitsEveryCounter(t *testing.T) {
	l := NewLedger()
	l.RecordStep(actions.Touch)
	l.RecordRestart()

	c := NewCollector(l)
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)
	n := 0
	for range ch {
		n++
	}
	// Two scopes x (steps + 3 action types) + 2 lifetime counters.
	assert.Equal(t, 10, n)
}
