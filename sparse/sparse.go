// Copyright 2026 BlockSparse Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package sparse

import (
	"github.com/sparse-ml/blocksparse/internal/buffer"
	"github.com/sparse-ml/blocksparse/internal/sparse"
)

// Type aliases for public API

// Shape represents the dimensions of a buffer or matrix.
// Example: Shape{2, 128, 128} is a batch of two 128x128 sparse planes.
type Shape = buffer.Shape

// DataType represents the underlying element type of a buffer.
type DataType = buffer.DataType

// Element type constants. The BCSR contract fixes values to Float16,
// indices to Int16 and offsets to Int32.
const (
	Float16 DataType = buffer.Float16
	Float32 DataType = buffer.Float32
	Int16   DataType = buffer.Int16
	Int32   DataType = buffer.Int32
	Int64   DataType = buffer.Int64
)

// Device represents where buffer storage resides.
type Device = buffer.Device

// Device constants.
const (
	CPU    Device = buffer.CPU
	WebGPU Device = buffer.WebGPU
	CUDA   Device = buffer.CUDA
	Metal  Device = buffer.Metal
)

// Buffer is a multi-dimensional element buffer with reference-counted
// storage shared across views.
type Buffer = buffer.Buffer

// Allocator moves raw bytes on and off a device.
type Allocator = buffer.Allocator

// DeviceBuffer is an opaque handle to device-resident storage.
type DeviceBuffer = buffer.DeviceBuffer

// Matrix is a sparse matrix in BCSR format.
type Matrix = sparse.Matrix

// Error kinds, matched with errors.Is.
var (
	ErrShape          = sparse.ErrShape
	ErrCapacity       = sparse.ErrCapacity
	ErrCountMismatch  = sparse.ErrCountMismatch
	ErrDeviceMismatch = sparse.ErrDeviceMismatch
	ErrDType          = sparse.ErrDType
	ErrRank           = sparse.ErrRank
	ErrNotContiguous  = sparse.ErrNotContiguous
	ErrNotImplemented = sparse.ErrNotImplemented
)

// Matrix construction

// New constructs a matrix from caller-supplied buffers, validating the full
// structural contract eagerly.
//
// Example:
//
//	values, _ := sparse.NewBuffer(sparse.Shape{6, 32, 32}, sparse.Float16, sparse.CPU)
//	indices, _ := sparse.FromInt16([]int16{0, 2, 1, 3, 0, 2}, sparse.Shape{6})
//	offsets, _ := sparse.FromInt32([]int32{0, 2, 3, 5, 6}, sparse.Shape{5})
//	m, err := sparse.New(sparse.Shape{128, 128}, values, indices, offsets)
func New(shape Shape, values, indices, offsets *Buffer) (*Matrix, error) {
	return sparse.New(shape, values, indices, offsets)
}

// FromDense builds a BCSR matrix from a dense row-major 2-D matrix, storing
// every block containing a nonzero.
func FromDense(shape Shape, blocking int, data []float32) (*Matrix, error) {
	return sparse.FromDense(shape, blocking, data)
}

// ToDense expands a contiguous 2-D matrix back into dense row-major float32.
func ToDense(m *Matrix) ([]float32, error) {
	return sparse.ToDense(m)
}

// Buffer construction

// NewBuffer creates a zero-initialized buffer with the given shape and type.
func NewBuffer(shape Shape, dtype DataType, device Device) (*Buffer, error) {
	return buffer.New(shape, dtype, device)
}

// FromFloat32 creates a Float16 buffer from float32 values.
func FromFloat32(data []float32, shape Shape) (*Buffer, error) {
	return buffer.FromFloat32(data, shape)
}

// FromInt16 creates an Int16 buffer from a slice.
func FromInt16(data []int16, shape Shape) (*Buffer, error) {
	return buffer.FromInt16(data, shape)
}

// FromInt32 creates an Int32 buffer from a slice.
func FromInt32(data []int32, shape Shape) (*Buffer, error) {
	return buffer.FromInt32(data, shape)
}

// RegisterAllocator makes an allocator available for device transfers.
func RegisterAllocator(a Allocator) {
	buffer.RegisterAllocator(a)
}
