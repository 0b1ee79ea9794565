package sparse

import (
	"fmt"

	"github.com/sparse-ml/blocksparse/internal/buffer"
)

// validate checks a candidate (shape, values, indices, offsets) tuple against
// the full structural contract and returns the values buffer canonicalized to
// rank-3 [blocks, blockSize, blockSize]. Canonicalization reshapes in place
// semantics-wise: the returned buffer is a zero-copy view of the input.
func validate(shape buffer.Shape, values, indices, offsets *buffer.Buffer) (*buffer.Buffer, error) {
	// Rank-1 values are a degenerate blocking of size 1.
	if values.Dim() == 1 {
		v, err := values.Reshape(buffer.Shape{values.NumElements(), 1, 1})
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrShape)
		}
		values = v
	}

	if values.Dim() < 2 {
		return nil, fmt.Errorf("expected at least 2D values, got %dD: %w", values.Dim(), ErrShape)
	}

	vs := values.Shape()
	if vs[len(vs)-2] != vs[len(vs)-1] {
		return nil, fmt.Errorf("expected square blocking in values, got block shape [%d %d]: %w",
			vs[len(vs)-2], vs[len(vs)-1], ErrShape)
	}
	blockSize := vs[len(vs)-1]

	// Flatten batch dimensions on values - the original shape is preserved
	// in the shape argument.
	if values.Dim() != 3 {
		blocks := values.NumElements() / (blockSize * blockSize)
		v, err := values.Reshape(buffer.Shape{blocks, blockSize, blockSize})
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrShape)
		}
		values = v
	}

	if err := validateShape(shape, values); err != nil {
		return nil, err
	}

	if indices.Dim() != 1 {
		return nil, fmt.Errorf("expected 1D indices, got %dD: %w", indices.Dim(), ErrShape)
	}
	if offsets.Dim() != 1 {
		return nil, fmt.Errorf("expected 1D offsets, got %dD: %w", offsets.Dim(), ErrShape)
	}

	blocks := values.Shape()[0]
	if indices.NumElements() != blocks {
		return nil, fmt.Errorf("expected 1 index per nonzero block, got %d indices for %d blocks: %w",
			indices.NumElements(), blocks, ErrCountMismatch)
	}

	rows := blockRows(shape, blockSize)
	if offsets.NumElements() != rows+1 {
		return nil, fmt.Errorf("expected one offset per block row plus one, got %d offsets with %d block rows: %w",
			offsets.NumElements(), rows, ErrCountMismatch)
	}

	if values.Device() != indices.Device() || values.Device() != offsets.Device() {
		return nil, fmt.Errorf("expected buffers on a common device, got values on %s, indices on %s and offsets on %s: %w",
			values.Device(), indices.Device(), offsets.Device(), ErrDeviceMismatch)
	}

	if values.DType() != buffer.Float16 {
		return nil, fmt.Errorf("expected float16 values, got %s: %w", values.DType(), ErrDType)
	}
	if indices.DType() != buffer.Int16 {
		return nil, fmt.Errorf("expected int16 indices, got %s: %w", indices.DType(), ErrDType)
	}
	if offsets.DType() != buffer.Int32 {
		return nil, fmt.Errorf("expected int32 offsets, got %s: %w", offsets.DType(), ErrDType)
	}

	return values, nil
}

// validateShape is the shape-only validation tier used when deriving views.
// It assumes values is already canonical rank-3 and skips the device, dtype
// and count scans that construction performs.
func validateShape(shape buffer.Shape, values *buffer.Buffer) error {
	if len(shape) < 2 {
		return fmt.Errorf("matrix shape must have at least 2 dimensions, got %d: %w", len(shape), ErrRank)
	}

	blockSize := values.Shape()[2]
	if shape[len(shape)-2]%blockSize != 0 || shape[len(shape)-1]%blockSize != 0 {
		return fmt.Errorf("matrix shape %v must be divisible by blocking [%d %d]: %w",
			shape, blockSize, blockSize, ErrShape)
	}

	if shape.NumElements() < values.NumElements() {
		return fmt.Errorf("number of nonzeros exceeds matrix capacity (%d vs %d): %w",
			values.NumElements(), shape.NumElements(), ErrCapacity)
	}
	return nil
}

// blockRows returns the number of block rows in the (possibly batched)
// logical shape: all leading dimensions collapse into the row axis.
func blockRows(shape buffer.Shape, blockSize int) int {
	rows := 1
	for _, dim := range shape[:len(shape)-1] {
		rows *= dim
	}
	return rows / blockSize
}
