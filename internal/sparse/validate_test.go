package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparse-ml/blocksparse/internal/buffer"
)

// validTuple returns buffers for a 128x128 matrix with blocking 32 and six
// stored blocks: two in block row 0, one in row 1, two in row 2, one in row 3.
func validTuple(t *testing.T) (buffer.Shape, *buffer.Buffer, *buffer.Buffer, *buffer.Buffer) {
	t.Helper()
	values, err := buffer.New(buffer.Shape{6, 32, 32}, buffer.Float16, buffer.CPU)
	require.NoError(t, err)
	indices, err := buffer.FromInt16([]int16{0, 2, 1, 3, 0, 2}, buffer.Shape{6})
	require.NoError(t, err)
	offsets, err := buffer.FromInt32([]int32{0, 2, 3, 5, 6}, buffer.Shape{5})
	require.NoError(t, err)
	return buffer.Shape{128, 128}, values, indices, offsets
}

func TestValidateAccepts(t *testing.T) {
	shape, values, indices, offsets := validTuple(t)

	v, err := validate(shape, values, indices, offsets)
	require.NoError(t, err)
	assert.True(t, v.Shape().Equal(buffer.Shape{6, 32, 32}))
}

func TestValidateCanonicalizesRank1(t *testing.T) {
	values, err := buffer.New(buffer.Shape{4}, buffer.Float16, buffer.CPU)
	require.NoError(t, err)
	indices, err := buffer.FromInt16([]int16{0, 1, 0, 1}, buffer.Shape{4})
	require.NoError(t, err)
	offsets, err := buffer.FromInt32([]int32{0, 2, 4}, buffer.Shape{3})
	require.NoError(t, err)

	// Rank-1 values promote to [4, 1, 1]: blocking defaults to 1.
	v, err := validate(buffer.Shape{2, 2}, values, indices, offsets)
	require.NoError(t, err)
	assert.True(t, v.Shape().Equal(buffer.Shape{4, 1, 1}))
}

func TestValidateFlattensBatchDimensions(t *testing.T) {
	shape, _, indices, offsets := validTuple(t)
	values, err := buffer.New(buffer.Shape{2, 3, 32, 32}, buffer.Float16, buffer.CPU)
	require.NoError(t, err)

	v, err := validate(shape, values, indices, offsets)
	require.NoError(t, err)
	assert.True(t, v.Shape().Equal(buffer.Shape{6, 32, 32}))
}

func TestValidateRejectsScalarValues(t *testing.T) {
	shape, _, indices, offsets := validTuple(t)
	values, err := buffer.New(buffer.Shape{}, buffer.Float16, buffer.CPU)
	require.NoError(t, err)

	// A rank-0 buffer has no block dimensions to inspect.
	_, err = validate(shape, values, indices, offsets)
	assert.ErrorIs(t, err, ErrShape)
}

func TestValidateRejectsNonSquareBlocks(t *testing.T) {
	shape, _, indices, offsets := validTuple(t)
	values, err := buffer.New(buffer.Shape{6, 32, 16}, buffer.Float16, buffer.CPU)
	require.NoError(t, err)

	_, err = validate(shape, values, indices, offsets)
	assert.ErrorIs(t, err, ErrShape)
}

func TestValidateRejectsIndivisibleShape(t *testing.T) {
	_, values, indices, offsets := validTuple(t)

	// 100 is not divisible by the blocking of 32.
	_, err := validate(buffer.Shape{100, 128}, values, indices, offsets)
	assert.ErrorIs(t, err, ErrShape)
}

func TestValidateRejectsOverCapacity(t *testing.T) {
	_, values, _, _ := validTuple(t)
	indices, err := buffer.FromInt16([]int16{0, 0, 0, 0, 0, 0}, buffer.Shape{6})
	require.NoError(t, err)
	offsets, err := buffer.FromInt32([]int32{0, 6}, buffer.Shape{2})
	require.NoError(t, err)

	// A 32x32 matrix holds 1024 elements; six 32x32 blocks store 6144.
	_, err = validate(buffer.Shape{32, 32}, values, indices, offsets)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestValidateRejectsNonVectorIndices(t *testing.T) {
	shape, values, _, offsets := validTuple(t)
	indices, err := buffer.New(buffer.Shape{2, 3}, buffer.Int16, buffer.CPU)
	require.NoError(t, err)

	_, err = validate(shape, values, indices, offsets)
	assert.ErrorIs(t, err, ErrShape)
}

func TestValidateRejectsNonVectorOffsets(t *testing.T) {
	shape, values, indices, _ := validTuple(t)
	offsets, err := buffer.New(buffer.Shape{5, 1}, buffer.Int32, buffer.CPU)
	require.NoError(t, err)

	_, err = validate(shape, values, indices, offsets)
	assert.ErrorIs(t, err, ErrShape)
}

func TestValidateRejectsIndexCountMismatch(t *testing.T) {
	shape, values, _, offsets := validTuple(t)
	indices, err := buffer.FromInt16([]int16{0, 2, 1}, buffer.Shape{3})
	require.NoError(t, err)

	_, err = validate(shape, values, indices, offsets)
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestValidateRejectsOffsetCountMismatch(t *testing.T) {
	shape, values, indices, _ := validTuple(t)

	// 128x128 with blocking 32 has 4 block rows, so 5 offsets are required.
	offsets, err := buffer.FromInt32([]int32{0, 2, 3, 6}, buffer.Shape{4})
	require.NoError(t, err)

	_, err = validate(shape, values, indices, offsets)
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestValidateRejectsMixedDevices(t *testing.T) {
	buffer.RegisterAllocator(buffer.NewMockAllocator(buffer.CUDA))
	shape, values, indices, offsets := validTuple(t)

	_, err := values.To(buffer.CUDA)
	require.NoError(t, err)

	_, err = validate(shape, values, indices, offsets)
	assert.ErrorIs(t, err, ErrDeviceMismatch)
}

func TestValidateRejectsWrongDTypes(t *testing.T) {
	tests := []struct {
		name string
		swap func(values, indices, offsets *buffer.Buffer) (*buffer.Buffer, *buffer.Buffer, *buffer.Buffer)
	}{
		{
			name: "float32 values",
			swap: func(_, indices, offsets *buffer.Buffer) (*buffer.Buffer, *buffer.Buffer, *buffer.Buffer) {
				v, err := buffer.New(buffer.Shape{6, 32, 32}, buffer.Float32, buffer.CPU)
				require.NoError(t, err)
				return v, indices, offsets
			},
		},
		{
			name: "int32 indices",
			swap: func(values, _, offsets *buffer.Buffer) (*buffer.Buffer, *buffer.Buffer, *buffer.Buffer) {
				i, err := buffer.New(buffer.Shape{6}, buffer.Int32, buffer.CPU)
				require.NoError(t, err)
				return values, i, offsets
			},
		},
		{
			name: "int16 offsets",
			swap: func(values, indices, _ *buffer.Buffer) (*buffer.Buffer, *buffer.Buffer, *buffer.Buffer) {
				o, err := buffer.New(buffer.Shape{5}, buffer.Int16, buffer.CPU)
				require.NoError(t, err)
				return values, indices, o
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, values, indices, offsets := validTuple(t)
			values, indices, offsets = tt.swap(values, indices, offsets)

			_, err := validate(shape, values, indices, offsets)
			assert.ErrorIs(t, err, ErrDType)
		})
	}
}

func TestValidateRejectsScalarShape(t *testing.T) {
	_, values, indices, offsets := validTuple(t)

	_, err := validate(buffer.Shape{128}, values, indices, offsets)
	assert.ErrorIs(t, err, ErrRank)
}
