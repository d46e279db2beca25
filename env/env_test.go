// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.droidenv.dev/env/actions"
	"go.droidenv.dev/env/simulator"
	"go.droidenv.dev/env/specs"
	"go.droidenv.dev/env/tensor"
	"go.droidenv.dev/env/timestep"
)

type fakeCoordinator struct {
	dims    simulator.ScreenDimensions
	dimsErr error

	shouldRestart bool
	restartErr    error
	timeout       bool
	// nextObs is returned by the next ExecuteAction call; nil simulates
	// an unusable device.
	nextObs map[string]tensor.Tensor
	logDict map[string]float64

	resetCalls   int
	restartCalls int
	executeCalls int
	closeCalls   int
	lastAction   map[string]tensor.Tensor
}

func (c *fakeCoordinator) Reset() error {
	c.resetCalls++
	return nil
}

func (c *fakeCoordinator) ExecuteAction(action map[string]tensor.Tensor) map[string]tensor.Tensor {
	c.executeCalls++
	c.lastAction = action
	return c.nextObs
}

func (c *fakeCoordinator) ShouldRestart() bool { return c.shouldRestart }

func (c *fakeCoordinator) RestartSimulator() error {
	c.restartCalls++
	if c.restartErr != nil {
		return c.restartErr
	}
	c.shouldRestart = false
	return nil
}

func (c *fakeCoordinator) CheckTimeout() bool { return c.timeout }

func (c *fakeCoordinator) ScreenDimensions() (simulator.ScreenDimensions, error) {
	return c.dims, c.dimsErr
}

func (c *fakeCoordinator) LogDict() map[string]float64 {
	if c.logDict == nil {
		return map[string]float64{}
	}
	return c.logDict
}

func (c *fakeCoordinator) Close() { c.closeCalls++ }

type fakeTask struct {
	reward   float64
	extras   map[string]tensor.Tensor
	endAfter int

	steps          int
	incrementCalls int
}

func (t *fakeTask) CurrentReward() float64 { return t.reward }

func (t *fakeTask) CurrentExtras() map[string]tensor.Tensor {
	if t.extras == nil {
		return map[string]tensor.Tensor{}
	}
	return t.extras
}

func (t *fakeTask) IncrementSteps() {
	t.steps++
	t.incrementCalls++
}

func (t *fakeTask) EpisodeEnded() bool {
	return t.endAfter > 0 && t.steps >= t.endAfter
}

func testObservation(t *testing.T, fill uint8) map[string]tensor.Tensor {
	t.Helper()
	values := make([]uint8, 84*84*3)
	for i := range values {
		values[i] = fill
	}
	pixels, err := tensor.NewUint8([]int{84, 84, 3}, values)
	require.NoError(t, err)
	return map[string]tensor.Tensor{
		specs.KeyPixels:      pixels,
		specs.KeyTimedelta:   tensor.Int64Scalar(100),
		specs.KeyOrientation: simulator.OrientationOnehot(0),
	}
}

func touchAction() map[string]tensor.Tensor {
	return map[string]tensor.Tensor{
		specs.KeyActionType:    tensor.Int32Scalar(int32(actions.Touch)),
		specs.KeyTouchPosition: tensor.Float32Vector(0.5, 0.5),
	}
}

func liftAction() map[string]tensor.Tensor {
	return map[string]tensor.Tensor{
		specs.KeyActionType:    tensor.Int32Scalar(int32(actions.Lift)),
		specs.KeyTouchPosition: tensor.Float32Vector(0, 0),
	}
}

func newTestEnv(t *testing.T, coord *fakeCoordinator, task *fakeTask, extras []specs.Spec) *Env {
	t.Helper()
	if coord.dims == (simulator.ScreenDimensions{}) {
		coord.dims = simulator.ScreenDimensions{Height: 84, Width: 84, Channels: 3}
	}
	e, err := New(coord, task, extras)
	require.NoError(t, err)
	return e
}

func TestConstructionFailsWhenScreenUnavailable(t *testing.T) {
	coord := &fakeCoordinator{dimsErr: errors.New("no screen")}
	_, err := New(coord, &fakeTask{}, nil)
	assert.Error(t, err)
}

func TestResetReturnsFirstTimeStep(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	e := newTestEnv(t, coord, &fakeTask{}, nil)
	assert.Equal(t, StateUninitialized, e.State())

	ts, err := e.Reset()
	require.NoError(t, err)
	assert.Equal(t, timestep.First, ts.StepType)
	assert.Equal(t, 0.0, ts.Reward)
	assert.Equal(t, 0.0, ts.Discount)
	assert.Equal(t, StateActive, e.State())
	assert.NotEmpty(t, e.EpisodeID())
	assert.Equal(t, 1, coord.resetCalls)
	// The initial observation comes from a nil action through the
	// executor.
	assert.Nil(t, coord.lastAction)
}

func TestEpisodeStepTypesAndDiscounts(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	task := &fakeTask{reward: 1.0, endAfter: 3}
	e := newTestEnv(t, coord, task, nil)

	_, err := e.Reset()
	require.NoError(t, err)

	wantTypes := []timestep.StepType{timestep.Mid, timestep.Mid, timestep.Last}
	wantDiscounts := []float64{1.0, 1.0, 0.0}
	for i := range wantTypes {
		ts, err := e.Step(touchAction())
		require.NoError(t, err)
		assert.Equal(t, wantTypes[i], ts.StepType, "step %d", i)
		assert.Equal(t, wantDiscounts[i], ts.Discount, "step %d", i)
		assert.Equal(t, 1.0, ts.Reward, "step %d", i)
	}
	assert.Equal(t, StateTerminated, e.State())
}

func TestEpisodeNeverContainsTwoLastSteps(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	task := &fakeTask{endAfter: 2}
	e := newTestEnv(t, coord, task, nil)

	_, err := e.Reset()
	require.NoError(t, err)

	lastSeen := false
	for i := 0; i < 6; i++ {
		ts, err := e.Step(touchAction())
		require.NoError(t, err)
		if lastSeen {
			// LAST must be immediately followed by FIRST.
			assert.Equal(t, timestep.First, ts.StepType)
			lastSeen = false
			task.steps = 0
			continue
		}
		if ts.StepType == timestep.Last {
			lastSeen = true
		}
	}
}

func TestRestartShortCircuitsStep(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 7)}
	task := &fakeTask{reward: 5.0}
	e := newTestEnv(t, coord, task, nil)

	_, err := e.Reset()
	require.NoError(t, err)
	_, err = e.Step(touchAction())
	require.NoError(t, err)
	prevPixels := e.RawObservation()[specs.KeyPixels]
	executesBefore := coord.executeCalls
	incrementsBefore := task.incrementCalls

	coord.shouldRestart = true
	ts, err := e.Step(liftAction())
	require.NoError(t, err)

	assert.Equal(t, timestep.Last, ts.StepType)
	assert.Equal(t, 0.0, ts.Reward)
	assert.Equal(t, 0.0, ts.Discount)
	assert.Equal(t, 1, coord.restartCalls)
	// No new observation is computed and no semantic processing runs.
	assert.Equal(t, executesBefore, coord.executeCalls)
	assert.Equal(t, incrementsBefore, task.incrementCalls)
	assert.True(t, prevPixels.Equal(ts.Observation[specs.KeyPixels]))
	// LIFT was not counted in telemetry.
	logs := e.Logs()
	assert.Equal(t, 1.0, logs["restart_count"])
	assert.Equal(t, 0.0, logs["droidenv_total_action_type_LIFT"])
	assert.Equal(t, StateTerminated, e.State())
}

func TestRestartFailurePropagates(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	e := newTestEnv(t, coord, &fakeTask{}, nil)

	_, err := e.Reset()
	require.NoError(t, err)

	coord.shouldRestart = true
	coord.restartErr = errors.New("restart budget exhausted")
	_, err = e.Step(touchAction())
	assert.Error(t, err)
}

func TestTimeoutEndsEpisode(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 3)}
	task := &fakeTask{}
	e := newTestEnv(t, coord, task, nil)

	_, err := e.Reset()
	require.NoError(t, err)
	_, err = e.Step(touchAction())
	require.NoError(t, err)

	coord.timeout = true
	ts, err := e.Step(touchAction())
	require.NoError(t, err)

	assert.Equal(t, timestep.Last, ts.StepType)
	assert.Equal(t, 0.0, ts.Reward)
	logs := e.Logs()
	assert.Equal(t, 1.0, logs["reset_count_step_timeout"])
	assert.Equal(t, 0.0, logs["restart_count"])
	// Only the first, successful step was counted.
	assert.Equal(t, 1.0, logs["droidenv_episode_steps"])
}

func TestStepWhileResetPendingSilentlyResets(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	task := &fakeTask{endAfter: 1}
	e := newTestEnv(t, coord, task, nil)

	_, err := e.Reset()
	require.NoError(t, err)
	ts, err := e.Step(touchAction())
	require.NoError(t, err)
	require.Equal(t, timestep.Last, ts.StepType)

	task.steps = 0
	incrementsBefore := task.incrementCalls
	ts, err = e.Step(touchAction())
	require.NoError(t, err)

	// The step behaved exactly like Reset: FIRST, zero reward, zero
	// discount, and the supplied action was discarded.
	assert.Equal(t, timestep.First, ts.StepType)
	assert.Equal(t, 0.0, ts.Reward)
	assert.Equal(t, 0.0, ts.Discount)
	assert.Equal(t, incrementsBefore, task.incrementCalls)
	assert.Empty(t, e.RawAction())
	logs := e.Logs()
	assert.Equal(t, 0.0, logs["droidenv_episode_steps"])
	assert.Equal(t, 2, coord.resetCalls)
}

func TestStaleObservationKeptWhenExecutorReturnsNil(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 9)}
	e := newTestEnv(t, coord, &fakeTask{}, nil)

	_, err := e.Reset()
	require.NoError(t, err)
	prevPixels := e.RawObservation()[specs.KeyPixels]

	coord.nextObs = nil
	ts, err := e.Step(touchAction())
	require.NoError(t, err)

	assert.Equal(t, timestep.Mid, ts.StepType)
	assert.True(t, prevPixels.Equal(ts.Observation[specs.KeyPixels]))
}

func TestActionIsCachedOnNormalStep(t *testing.T) {
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	e := newTestEnv(t, coord, &fakeTask{}, nil)

	_, err := e.Reset()
	require.NoError(t, err)
	action := touchAction()
	_, err = e.Step(action)
	require.NoError(t, err)

	raw := e.RawAction()
	assert.True(t, action[specs.KeyActionType].Equal(raw[specs.KeyActionType]))
	assert.True(t, action[specs.KeyTouchPosition].Equal(raw[specs.KeyTouchPosition]))
}

func TestTaskExtrasLatestOnly(t *testing.T) {
	score, err := tensor.NewFloat32([]int{3}, []float32{1, 2, 3})
	require.NoError(t, err)
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	task := &fakeTask{extras: map[string]tensor.Tensor{"score": score}}
	extrasSpec := []specs.Spec{{Name: "score", DType: tensor.Float32}}
	e := newTestEnv(t, coord, task, extrasSpec)

	_, err = e.Reset()
	require.NoError(t, err)

	latest, err := e.TaskExtras(true)
	require.NoError(t, err)
	require.Contains(t, latest, "score")
	assert.Equal(t, []float64{3}, latest["score"].Floats())

	// Idempotent read: no hidden consumption.
	again, err := e.TaskExtras(true)
	require.NoError(t, err)
	assert.True(t, latest["score"].Equal(again["score"]))

	full, err := e.TaskExtras(false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, full["score"].Floats())
}

func TestTaskExtrasCastToDeclaredDType(t *testing.T) {
	// The task reports float64 values for an extra declared int32.
	raw, err := tensor.NewFloat64([]int{2}, []float64{4.0, 7.0})
	require.NoError(t, err)
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	task := &fakeTask{extras: map[string]tensor.Tensor{"lives": raw}}
	extrasSpec := []specs.Spec{{Name: "lives", DType: tensor.Int32}}
	e := newTestEnv(t, coord, task, extrasSpec)

	_, err = e.Reset()
	require.NoError(t, err)

	latest, err := e.TaskExtras(true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Int32, latest["lives"].DType())
	assert.Equal(t, []float64{7}, latest["lives"].Floats())
}

func TestTaskExtrasViolationSurfaces(t *testing.T) {
	// Declared shape [2] but accumulated elements have shape [3].
	bad, err := tensor.NewFloat32([]int{1, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	coord := &fakeCoordinator{nextObs: testObservation(t, 1)}
	task := &fakeTask{extras: map[string]tensor.Tensor{"pos": bad}}
	extrasSpec := []specs.Spec{{Name: "pos", DType: tensor.Float32, Shape: []int{2}}}
	e := newTestEnv(t, coord, task, extrasSpec)

	_, err = e.Reset()
	require.NoError(t, err)

	_, err = e.TaskExtras(true)
	require.Error(t, err)
	var verr *specs.ViolationError
	assert.ErrorAs(t, err, &verr)
}

func TestLogsMergeBackendAndDeriveRatios(t *testing.T) {
	coord := &fakeCoordinator{
		nextObs: testObservation(t, 1),
		logDict: map[string]float64{"restart_count_periodic": 2},
	}
	e := newTestEnv(t, coord, &fakeTask{}, nil)

	_, err := e.Reset()
	require.NoError(t, err)
	for _, a := range []map[string]tensor.Tensor{touchAction(), touchAction(), liftAction()} {
		_, err = e.Step(a)
		require.NoError(t, err)
	}

	logs := e.Logs()
	assert.Equal(t, 3.0, logs["droidenv_episode_steps"])
	assert.Equal(t, 2.0, logs["restart_count_periodic"])
	assert.InDelta(t, 2.0/3.0, logs["droidenv_episode_action_type_ratio_TOUCH"], 1e-9)
	assert.InDelta(t, 1.0/3.0, logs["droidenv_episode_action_type_ratio_LIFT"], 1e-9)
	sum := logs["droidenv_episode_action_type_ratio_TOUCH"] +
		logs["droidenv_episode_action_type_ratio_LIFT"] +
		logs["droidenv_episode_action_type_ratio_REPEAT"]
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestCloseIsIdempotent(t *testing.T) {
	coord := &fakeCoordinator{}
	e := newTestEnv(t, coord, &fakeTask{}, nil)

	e.Close()
	e.Close()
	assert.Equal(t, 1, coord.closeCalls)
}
