// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package specs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.droidenv.dev/env/tensor"
)

func TestValidateAcceptsConformingValue(t *testing.T) {
	s := Spec{Name: "touch_position", DType: tensor.Float32, Shape: []int{2}, Bounded: true, Min: 0, Max: 1}
	assert.NoError(t, s.Validate(tensor.Float32Vector(0.25, 1.0)))
}

func TestValidateRejectsDTypeMismatch(t *testing.T) {
	s := Spec{Name: "timedelta", DType: tensor.Int64}
	err := s.Validate(tensor.Int32Scalar(5))
	require.Error(t, err)
	var verr *ViolationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "timedelta", verr.Name)
}

func TestValidateRejectsShapeMismatch(t *testing.T) {
	s := Spec{Name: "orientation", DType: tensor.Uint8, Shape: []int{4}}
	v, err := tensor.NewUint8([]int{3}, []uint8{1, 0, 0})
	require.NoError(t, err)
	assert.Error(t, s.Validate(v))
}

func TestValidateRejectsOutOfBounds(t *testing.T) {
	s := Spec{Name: "touch_position", DType: tensor.Float32, Shape: []int{2}, Bounded: true, Min: 0, Max: 1}
	assert.Error(t, s.Validate(tensor.Float32Vector(0.5, 1.5)))
	assert.Error(t, s.Validate(tensor.Float32Vector(-0.1, 0.5)))
}

func TestValidateMap(t *testing.T) {
	schema := BaseActionSpec()
	good := map[string]tensor.Tensor{
		KeyActionType:    tensor.Int32Scalar(1),
		KeyTouchPosition: tensor.Float32Vector(0.1, 0.9),
	}
	assert.NoError(t, ValidateMap(good, schema))

	missing := map[string]tensor.Tensor{KeyActionType: tensor.Int32Scalar(1)}
	assert.Error(t, ValidateMap(missing, schema))

	extra := map[string]tensor.Tensor{
		KeyActionType:    tensor.Int32Scalar(1),
		KeyTouchPosition: tensor.Float32Vector(0.1, 0.9),
		"undeclared":     tensor.Int32Scalar(0),
	}
	assert.Error(t, ValidateMap(extra, schema))
}

func TestBaseActionSpecBoundsCoverEnumeration(t *testing.T) {
	schema := BaseActionSpec()
	at := schema[KeyActionType]
	assert.True(t, at.Bounded)
	assert.NoError(t, at.Validate(tensor.Int32Scalar(0)))
	assert.NoError(t, at.Validate(tensor.Int32Scalar(2)))
	assert.Error(t, at.Validate(tensor.Int32Scalar(3)))
}

func TestBaseObservationSpecTracksScreen(t *testing.T) {
	schema := BaseObservationSpec(84, 120, 3)
	assert.Equal(t, []int{84, 120, 3}, schema[KeyPixels].Shape)
	assert.Equal(t, tensor.Uint8, schema[KeyPixels].DType)
	assert.Equal(t, tensor.Int64, schema[KeyTimedelta].DType)
	assert.Equal(t, []int{4}, schema[KeyOrientation].Shape)
}

func TestTaskExtrasSpecKeysByName(t *testing.T) {
	schema := TaskExtrasSpec([]Spec{
		{Name: "score", DType: tensor.Float32},
		{Name: "lives", DType: tensor.Int32},
	})
	require.Len(t, schema, 2)
	assert.Equal(t, tensor.Float32, schema["score"].DType)
	assert.Equal(t, tensor.Int32, schema["lives"].DType)
}
