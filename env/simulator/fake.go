// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package simulator

import (
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"go.droidenv.dev/env/specs"
	"go.droidenv.dev/env/tensor"
)

// Fake is an in-memory device used by tests and the demo binary. It
// produces random pixel observations of a fixed screen size and accepts
// any prepared action.
type Fake struct {
	dims ScreenDimensions
	rng  *rand.Rand
	now  func() time.Time

	launched      bool
	closed        bool
	orientation   int
	lastTimestamp int64

	// Injectable failures for tests. When set, the matching call
	// returns the error once and clears it.
	SendErr error
	ObsErr  error

	// Lifecycle counters, readable by tests.
	Launches int
	Restarts int
}

// NewFake builds a Fake with the given screen. A zero seed gives a
// time-seeded stream.
func NewFake(dims ScreenDimensions, seed int64) *Fake {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Fake{
		dims: dims,
		rng:  rand.New(rand.NewSource(seed)),
		now:  time.Now,
	}
}

// Launch implements Simulator. A second launch restarts the device.
func (f *Fake) Launch() error {
	if f.launched {
		return f.Restart()
	}
	f.launched = true
	f.Launches++
	log.Infof("fake simulator launched (%dx%dx%d)", f.dims.Height, f.dims.Width, f.dims.Channels)
	return nil
}

// Restart implements Simulator.
func (f *Fake) Restart() error {
	f.Restarts++
	f.lastTimestamp = 0
	log.Info("fake simulator restarted")
	return nil
}

// IsLaunched implements Simulator.
func (f *Fake) IsLaunched() bool { return f.launched }

// ScreenDimensions implements Simulator.
func (f *Fake) ScreenDimensions() (ScreenDimensions, error) {
	if !f.launched {
		return ScreenDimensions{}, ErrNotLaunched
	}
	return f.dims, nil
}

// SendAction implements Simulator.
func (f *Fake) SendAction(action map[string]tensor.Tensor) error {
	if err := f.SendErr; err != nil {
		f.SendErr = nil
		return err
	}
	if !f.launched {
		return ErrNotLaunched
	}
	_, _, _, err := PrepareAction(action, f.dims)
	return err
}

// Observation implements Simulator.
func (f *Fake) Observation() (map[string]tensor.Tensor, error) {
	if err := f.ObsErr; err != nil {
		f.ObsErr = nil
		return nil, err
	}
	if !f.launched {
		return nil, ErrNotLaunched
	}
	n := f.dims.Height * f.dims.Width * f.dims.Channels
	values := make([]uint8, n)
	f.rng.Read(values)
	pixels, err := tensor.NewUint8([]int{f.dims.Height, f.dims.Width, f.dims.Channels}, values)
	if err != nil {
		return nil, err
	}
	timestamp := f.now().UnixMicro()
	delta := timestamp - f.lastTimestamp
	if f.lastTimestamp == 0 {
		delta = 0
	}
	f.lastTimestamp = timestamp
	return map[string]tensor.Tensor{
		specs.KeyPixels:      pixels,
		specs.KeyTimedelta:   tensor.Int64Scalar(delta),
		specs.KeyOrientation: OrientationOnehot(f.orientation),
	}, nil
}

// Close implements Simulator.
func (f *Fake) Close() {
	if f.closed {
		return
	}
	f.closed = true
	log.Info("fake simulator closed")
}
