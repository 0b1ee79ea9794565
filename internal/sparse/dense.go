package sparse

import (
	"fmt"
	"math"

	"github.com/sparse-ml/blocksparse/internal/buffer"
)

// FromDense builds a BCSR matrix from a dense row-major 2-D matrix, storing
// every blocking-by-blocking block that contains a nonzero. Values are packed
// to float16; indices are column-block positions in row-major block order and
// offsets are the cumulative block counts per block row.
func FromDense(shape buffer.Shape, blocking int, data []float32) (*Matrix, error) {
	if len(shape) != 2 {
		return nil, fmt.Errorf("dense construction expects a 2-dimensional shape, got %dD: %w", len(shape), ErrRank)
	}
	rows, cols := shape[0], shape[1]
	if blocking <= 0 || rows%blocking != 0 || cols%blocking != 0 {
		return nil, fmt.Errorf("matrix shape %v must be divisible by blocking [%d %d]: %w",
			shape, blocking, blocking, ErrShape)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("dense data has %d elements, shape %v requires %d: %w",
			len(data), shape, rows*cols, ErrCountMismatch)
	}

	blockRows := rows / blocking
	blockCols := cols / blocking

	// Column-block indices are stored as int16.
	if blockCols-1 > math.MaxInt16 {
		return nil, fmt.Errorf("%d block columns exceed the int16 index range: %w", blockCols, ErrShape)
	}

	var (
		blockVals []float32
		indices   []int16
		offsets   = make([]int32, 1, blockRows+1)
	)
	block := make([]float32, blocking*blocking)
	for br := 0; br < blockRows; br++ {
		for bc := 0; bc < blockCols; bc++ {
			nonzero := false
			for r := 0; r < blocking; r++ {
				for c := 0; c < blocking; c++ {
					v := data[(br*blocking+r)*cols+bc*blocking+c]
					block[r*blocking+c] = v
					if v != 0 {
						nonzero = true
					}
				}
			}
			if nonzero {
				blockVals = append(blockVals, block...)
				indices = append(indices, int16(bc))
			}
		}
		offsets = append(offsets, int32(len(indices)))
	}

	if len(indices) == 0 {
		return nil, fmt.Errorf("dense matrix has no nonzero blocks: %w", ErrShape)
	}

	values, err := buffer.FromFloat32(blockVals, buffer.Shape{len(indices), blocking, blocking})
	if err != nil {
		return nil, err
	}
	idx, err := buffer.FromInt16(indices, buffer.Shape{len(indices)})
	if err != nil {
		return nil, err
	}
	off, err := buffer.FromInt32(offsets, buffer.Shape{len(offsets)})
	if err != nil {
		return nil, err
	}
	return New(shape, values, idx, off)
}

// ToDense expands a contiguous 2-D matrix back into dense row-major float32.
// The buffers must be CPU-resident.
func ToDense(m *Matrix) ([]float32, error) {
	if m.Dim() != 2 {
		return nil, fmt.Errorf("dense expansion expects a 2-dimensional matrix, got %dD: %w", m.Dim(), ErrRank)
	}
	if !m.IsContiguous() {
		return nil, fmt.Errorf("dense expansion requires a contiguous matrix: %w", ErrNotContiguous)
	}
	if m.Device() != buffer.CPU {
		return nil, fmt.Errorf("dense expansion requires CPU-resident buffers, got %s", m.Device())
	}

	rows, cols := m.Shape()[0], m.Shape()[1]
	bs := m.Blocking()
	vals := m.values.AsFloat16()
	indices := m.indices.AsInt16()
	offsets := m.offsets.AsInt32()

	dense := make([]float32, rows*cols)
	for br := 0; br < rows/bs; br++ {
		for i := offsets[br]; i < offsets[br+1]; i++ {
			bc := int(indices[i])
			base := int(i) * bs * bs
			for r := 0; r < bs; r++ {
				for c := 0; c < bs; c++ {
					dense[(br*bs+r)*cols+bc*bs+c] = vals[base+r*bs+c].Float32()
				}
			}
		}
	}
	return dense, nil
}

// ValidateData runs the heavyweight content checks that construction skips:
// offsets must start at zero, be nondecreasing and end at the stored block
// count, and every column-block index must lie within the matrix. Requires
// CPU-resident buffers; structural validation alone covers device-resident
// matrices.
func (m *Matrix) ValidateData() error {
	if m.Device() != buffer.CPU {
		return fmt.Errorf("data validation requires CPU-resident buffers, got %s", m.Device())
	}

	indices := m.indices.AsInt16()
	offsets := m.offsets.AsInt32()

	if offsets[0] != 0 {
		return fmt.Errorf("expected offsets to start at 0, got %d: %w", offsets[0], ErrCountMismatch)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("offsets decrease at block row %d (%d after %d): %w",
				i-1, offsets[i], offsets[i-1], ErrCountMismatch)
		}
	}
	if int(offsets[len(offsets)-1]) != m.BlockCount() {
		return fmt.Errorf("offsets cover %d blocks, matrix stores %d: %w",
			offsets[len(offsets)-1], m.BlockCount(), ErrCountMismatch)
	}

	// The column extent is the last physical dimension.
	cols := m.shape[len(m.shape)-1]
	if m.transposed {
		cols = m.shape[len(m.shape)-2]
	}
	blockCols := cols / m.Blocking()
	for i, idx := range indices {
		if idx < 0 || int(idx) >= blockCols {
			return fmt.Errorf("block %d has column index %d outside [0, %d): %w",
				i, idx, blockCols, ErrCountMismatch)
		}
	}
	return nil
}
