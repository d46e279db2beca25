// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package tensor implements the dtype-tagged n-dimensional arrays that
// cross the environment boundary: observations, actions and task extras
// are all maps from name to Tensor.
package tensor

import (
	"fmt"
)

// DType enumerates the element types a Tensor can carry.
type DType int

const (
	Uint8 DType = iota
	Int32
	Int64
	Float32
	Float64
)

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Tensor is an immutable-by-convention n-dimensional array. A nil or
// empty shape denotes a scalar. The backing slice is never copied on
// read; callers must not mutate what accessors return.
type Tensor struct {
	dtype DType
	shape []int
	data  interface{}
}

func numElems(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// NewUint8 builds a uint8 tensor. The number of values must match the
// product of the shape dimensions.
func NewUint8(shape []int, values []uint8) (Tensor, error) {
	if len(values) != numElems(shape) {
		return Tensor{}, fmt.Errorf("tensor: shape %v requires %d values, got %d", shape, numElems(shape), len(values))
	}
	return Tensor{dtype: Uint8, shape: shape, data: values}, nil
}

// NewInt32 builds an int32 tensor.
func NewInt32(shape []int, values []int32) (Tensor, error) {
	if len(values) != numElems(shape) {
		return Tensor{}, fmt.Errorf("tensor: shape %v requires %d values, got %d", shape, numElems(shape), len(values))
	}
	return Tensor{dtype: Int32, shape: shape, data: values}, nil
}

// NewInt64 builds an int64 tensor.
func NewInt64(shape []int, values []int64) (Tensor, error) {
	if len(values) != numElems(shape) {
		return Tensor{}, fmt.Errorf("tensor: shape %v requires %d values, got %d", shape, numElems(shape), len(values))
	}
	return Tensor{dtype: Int64, shape: shape, data: values}, nil
}

// NewFloat32 builds a float32 tensor.
func NewFloat32(shape []int, values []float32) (Tensor, error) {
	if len(values) != numElems(shape) {
		return Tensor{}, fmt.Errorf("tensor: shape %v requires %d values, got %d", shape, numElems(shape), len(values))
	}
	return Tensor{dtype: Float32, shape: shape, data: values}, nil
}

// NewFloat64 builds a float64 tensor.
func NewFloat64(shape []int, values []float64) (Tensor, error) {
	if len(values) != numElems(shape) {
		return Tensor{}, fmt.Errorf("tensor: shape %v requires %d values, got %d", shape, numElems(shape), len(values))
	}
	return Tensor{dtype: Float64, shape: shape, data: values}, nil
}

// Int32Scalar builds a scalar int32 tensor.
func Int32Scalar(v int32) Tensor {
	return Tensor{dtype: Int32, data: []int32{v}}
}

// Int64Scalar builds a scalar int64 tensor.
func Int64Scalar(v int64) Tensor {
	return Tensor{dtype: Int64, data: []int64{v}}
}

// Float32Scalar builds a scalar float32 tensor.
func Float32Scalar(v float32) Tensor {
	return Tensor{dtype: Float32, data: []float32{v}}
}

// Float32Vector builds a 1-D float32 tensor from its arguments.
func Float32Vector(values ...float32) Tensor {
	return Tensor{dtype: Float32, shape: []int{len(values)}, data: values}
}

// DType returns the element type.
func (t Tensor) DType() DType { return t.dtype }

// Shape returns the tensor shape. The returned slice is the internal
// one; callers must not mutate it.
func (t Tensor) Shape() []int { return t.shape }

// Len returns the total number of elements.
func (t Tensor) Len() int { return numElems(t.shape) }

// IsZero reports whether t is the zero Tensor (no data attached).
func (t Tensor) IsZero() bool { return t.data == nil }

// Floats returns every element widened to float64, in row-major order.
func (t Tensor) Floats() []float64 {
	out := make([]float64, 0, t.Len())
	switch vs := t.data.(type) {
	case []uint8:
		for _, v := range vs {
			out = append(out, float64(v))
		}
	case []int32:
		for _, v := range vs {
			out = append(out, float64(v))
		}
	case []int64:
		for _, v := range vs {
			out = append(out, float64(v))
		}
	case []float32:
		for _, v := range vs {
			out = append(out, float64(v))
		}
	case []float64:
		out = append(out, vs...)
	}
	return out
}

// Uint8s returns the backing slice when the dtype is uint8.
func (t Tensor) Uint8s() ([]uint8, bool) {
	vs, ok := t.data.([]uint8)
	return vs, ok
}

// Int32s returns the backing slice when the dtype is int32.
func (t Tensor) Int32s() ([]int32, bool) {
	vs, ok := t.data.([]int32)
	return vs, ok
}

// Int64s returns the backing slice when the dtype is int64.
func (t Tensor) Int64s() ([]int64, bool) {
	vs, ok := t.data.([]int64)
	return vs, ok
}

// Float32s returns the backing slice when the dtype is float32.
func (t Tensor) Float32s() ([]float32, bool) {
	vs, ok := t.data.([]float32)
	return vs, ok
}

// Float64s returns the backing slice when the dtype is float64.
func (t Tensor) Float64s() ([]float64, bool) {
	vs, ok := t.data.([]float64)
	return vs, ok
}

// Convert returns a copy of t with every element cast to dtype.
// Float-to-integer casts truncate.
func (t Tensor) Convert(dtype DType) Tensor {
	if dtype == t.dtype {
		return t
	}
	fs := t.Floats()
	out := Tensor{dtype: dtype, shape: t.shape}
	switch dtype {
	case Uint8:
		vs := make([]uint8, len(fs))
		for i, f := range fs {
			vs[i] = uint8(f)
		}
		out.data = vs
	case Int32:
		vs := make([]int32, len(fs))
		for i, f := range fs {
			vs[i] = int32(f)
		}
		out.data = vs
	case Int64:
		vs := make([]int64, len(fs))
		for i, f := range fs {
			vs[i] = int64(f)
		}
		out.data = vs
	case Float32:
		vs := make([]float32, len(fs))
		for i, f := range fs {
			vs[i] = float32(f)
		}
		out.data = vs
	case Float64:
		out.data = fs
	}
	return out
}

// Elems splits t along its leading axis. A scalar yields itself as the
// single element. Returned tensors alias the original backing slice.
func (t Tensor) Elems() []Tensor {
	if len(t.shape) == 0 {
		return []Tensor{t}
	}
	n := t.shape[0]
	inner := t.shape[1:]
	stride := numElems(inner)
	out := make([]Tensor, 0, n)
	for i := 0; i < n; i++ {
		elem := Tensor{dtype: t.dtype, shape: inner}
		switch vs := t.data.(type) {
		case []uint8:
			elem.data = vs[i*stride : (i+1)*stride]
		case []int32:
			elem.data = vs[i*stride : (i+1)*stride]
		case []int64:
			elem.data = vs[i*stride : (i+1)*stride]
		case []float32:
			elem.data = vs[i*stride : (i+1)*stride]
		case []float64:
			elem.data = vs[i*stride : (i+1)*stride]
		}
		out = append(out, elem)
	}
	return out
}

// Equal reports whether two tensors have identical dtype, shape and
// element values.
func (t Tensor) Equal(o Tensor) bool {
	if t.dtype != o.dtype || len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	a, b := t.Floats(), o.Floats()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, shape=%v)", t.dtype, t.shape)
}
