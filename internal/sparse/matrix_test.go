package sparse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparse-ml/blocksparse/internal/buffer"
)

func newTestMatrix(t *testing.T) *Matrix {
	t.Helper()
	shape, values, indices, offsets := validTuple(t)
	m, err := New(shape, values, indices, offsets)
	require.NoError(t, err)
	return m
}

func TestMatrixAccessors(t *testing.T) {
	m := newTestMatrix(t)

	assert.True(t, m.Shape().Equal(buffer.Shape{128, 128}))
	assert.Equal(t, 2, m.Dim())
	assert.Equal(t, buffer.Float16, m.DType())
	assert.Equal(t, buffer.CPU, m.Device())
	assert.Equal(t, 6*32*32, m.NNZ())
	assert.Equal(t, 6, m.BlockCount())
	assert.Equal(t, 32, m.Blocking())
	assert.True(t, m.IsContiguous())
	assert.False(t, m.RequiresGrad())
}

func TestMatrixValidateIsNoOp(t *testing.T) {
	m := newTestMatrix(t)
	assert.NoError(t, m.Validate())
}

func TestMatrixConstructionFails(t *testing.T) {
	_, values, indices, offsets := validTuple(t)
	_, err := New(buffer.Shape{100, 128}, values, indices, offsets)
	assert.ErrorIs(t, err, ErrShape)
}

func TestMatrixTranspose(t *testing.T) {
	m := newTestMatrix(t)

	mt, err := m.T()
	require.NoError(t, err)

	assert.True(t, mt.Shape().Equal(buffer.Shape{128, 128}))
	assert.False(t, mt.IsContiguous())

	// The view shares the physical buffers with its source.
	assert.Same(t, m.Values(), mt.Values())
	assert.Same(t, m.Indices(), mt.Indices())
	assert.Same(t, m.Offsets(), mt.Offsets())

	// Transposing twice restores the original metadata.
	mtt, err := mt.T()
	require.NoError(t, err)
	assert.True(t, mtt.Shape().Equal(m.Shape()))
	assert.True(t, mtt.IsContiguous())
	assert.Same(t, m.Values(), mtt.Values())
}

func TestMatrixTransposeSwapsRectangularShape(t *testing.T) {
	_, values, indices, offsets := validTuple(t)
	m, err := New(buffer.Shape{128, 256}, values, indices, offsets)
	require.NoError(t, err)

	mt, err := m.T()
	require.NoError(t, err)
	assert.True(t, mt.Shape().Equal(buffer.Shape{256, 128}))
}

func TestMatrixTransposeRequiresRank2(t *testing.T) {
	_, values, indices, offsets := validTuple(t)

	// Batched shape: 2 planes of 64x128, still 4 block rows in total.
	m, err := New(buffer.Shape{2, 64, 128}, values, indices, offsets)
	require.NoError(t, err)

	_, err = m.T()
	assert.ErrorIs(t, err, ErrRank)
}

func TestMatrixContiguousUnimplemented(t *testing.T) {
	m := newTestMatrix(t)
	_, err := m.Contiguous()
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestMatrixReshape(t *testing.T) {
	m := newTestMatrix(t)

	r, err := m.Reshape(buffer.Shape{2, 64, 128})
	require.NoError(t, err)

	assert.True(t, r.Shape().Equal(buffer.Shape{2, 64, 128}))
	assert.Equal(t, m.NNZ(), r.NNZ())
	assert.Same(t, m.Values(), r.Values())
	assert.Same(t, m.Indices(), r.Indices())
	assert.Same(t, m.Offsets(), r.Offsets())

	// The source is untouched.
	assert.True(t, m.Shape().Equal(buffer.Shape{128, 128}))
}

func TestMatrixReshapeRejectsCompressedDimension(t *testing.T) {
	m := newTestMatrix(t)
	_, err := m.Reshape(buffer.Shape{256, 64})
	assert.ErrorIs(t, err, ErrShape)
}

func TestMatrixReshapeRejectsElementCountChange(t *testing.T) {
	m := newTestMatrix(t)
	_, err := m.Reshape(buffer.Shape{64, 128})
	assert.ErrorIs(t, err, ErrShape)
}

func TestMatrixReshapeRequiresContiguous(t *testing.T) {
	m := newTestMatrix(t)
	mt, err := m.T()
	require.NoError(t, err)

	_, err = mt.Reshape(buffer.Shape{128, 128})
	assert.ErrorIs(t, err, ErrNotContiguous)
}

func TestMatrixGradView(t *testing.T) {
	m := newTestMatrix(t)

	_, err := m.Grad()
	require.Error(t, err, "gradient view without tracking should fail")

	m.SetRequiresGrad(true)
	require.True(t, m.RequiresGrad())

	g, err := m.Grad()
	require.NoError(t, err)
	assert.True(t, g.Shape().Equal(m.Shape()))
	assert.True(t, g.IsContiguous())
	assert.Same(t, m.Indices(), g.Indices())
	assert.Same(t, m.Offsets(), g.Offsets())

	grad, err := m.Values().Grad()
	require.NoError(t, err)
	assert.Same(t, grad, g.Values())
}

func TestMatrixGradViewTransposed(t *testing.T) {
	m := newTestMatrix(t).SetRequiresGrad(true)
	mt, err := m.T()
	require.NoError(t, err)

	g, err := mt.Grad()
	require.NoError(t, err)

	// The gradient is computed in physical space and re-exposed through the
	// same transpose as its source.
	assert.True(t, g.Shape().Equal(mt.Shape()))
	assert.False(t, g.IsContiguous())
}

func TestMatrixTo(t *testing.T) {
	buffer.RegisterAllocator(buffer.NewMockAllocator(buffer.CUDA))
	m := newTestMatrix(t)

	moved, err := m.To(buffer.CUDA)
	require.NoError(t, err)
	assert.Same(t, m, moved)
	assert.Equal(t, buffer.CUDA, m.Device())
	assert.Equal(t, buffer.CUDA, m.Indices().Device())
	assert.Equal(t, buffer.CUDA, m.Offsets().Device())
	assert.NoError(t, m.Validate())

	_, err = m.To(buffer.CPU)
	require.NoError(t, err)
	assert.Equal(t, buffer.CPU, m.Device())
}

func TestMatrixToFailurePropagates(t *testing.T) {
	mock := buffer.NewMockAllocator(buffer.Metal)
	mock.Fail = errors.New("device lost")
	buffer.RegisterAllocator(mock)

	m := newTestMatrix(t)
	_, err := m.To(buffer.Metal)
	assert.ErrorIs(t, err, mock.Fail)
}

func TestMatrixToPartialFailureLeavesMixedDevices(t *testing.T) {
	mock := buffer.NewMockAllocator(buffer.WebGPU)
	mock.Fail = errors.New("device lost")
	mock.FailAfter = 1
	buffer.RegisterAllocator(mock)

	m := newTestMatrix(t)
	_, err := m.To(buffer.WebGPU)
	require.ErrorIs(t, err, mock.Fail)

	// Values moved before the indices transfer failed; the split placement
	// is detectable through Validate.
	assert.Equal(t, buffer.WebGPU, m.Device())
	assert.Equal(t, buffer.CPU, m.Indices().Device())
	assert.ErrorIs(t, m.Validate(), ErrDeviceMismatch)
}

func TestMatrixDeviceMismatchAfterExternalMove(t *testing.T) {
	buffer.RegisterAllocator(buffer.NewMockAllocator(buffer.CUDA))
	m := newTestMatrix(t)

	// An external collaborator moving only the values buffer leaves the
	// matrix structurally invalid.
	_, err := m.Values().To(buffer.CUDA)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Validate(), ErrDeviceMismatch)
}
