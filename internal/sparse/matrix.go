package sparse

import (
	"fmt"

	"github.com/sparse-ml/blocksparse/internal/buffer"
)

// Matrix is a sparse matrix stored in block compressed sparse row (BCSR)
// format. It owns no element data of its own: values holds the nonzero blocks
// as [blocks, blockSize, blockSize], indices the column-block index of each
// stored block, and offsets the per-block-row boundaries into both.
//
// Views produced by T, Reshape and Grad share the underlying buffers with
// their source. Mutation of a shared buffer by an external kernel is visible
// through every view; callers coordinating concurrent mutation serialize
// externally.
type Matrix struct {
	shape   buffer.Shape
	values  *buffer.Buffer
	indices *buffer.Buffer
	offsets *buffer.Buffer

	// transposed marks that shape's last two dimensions are swapped
	// relative to the physical block layout.
	transposed bool
}

// New constructs a matrix from caller-supplied buffers, running the full
// structural validation eagerly. The stored values buffer is the canonical
// rank-3 view of the supplied one.
func New(shape buffer.Shape, values, indices, offsets *buffer.Buffer) (*Matrix, error) {
	v, err := validate(shape, values, indices, offsets)
	if err != nil {
		return nil, err
	}
	return &Matrix{
		shape:   shape.Clone(),
		values:  v,
		indices: indices,
		offsets: offsets,
	}, nil
}

// newView derives a buffer-sharing matrix from an existing one, running only
// the shape-level validation tier.
func newView(shape buffer.Shape, values, indices, offsets *buffer.Buffer, transposed bool) (*Matrix, error) {
	if err := validateShape(shape, values); err != nil {
		return nil, err
	}
	return &Matrix{
		shape:      shape.Clone(),
		values:     values,
		indices:    indices,
		offsets:    offsets,
		transposed: transposed,
	}, nil
}

// Validate re-runs the full structural checks on the current state. Used
// after external mutation of the buffers; a freshly constructed matrix
// validates trivially.
func (m *Matrix) Validate() error {
	_, err := validate(m.shape, m.values, m.indices, m.offsets)
	return err
}

// To transfers all three buffers to the target device and returns the
// receiver. Transfer failures propagate unchanged. Buffers move one at a
// time, so a failed transfer can leave them split across devices; Validate
// reports the mixed placement.
func (m *Matrix) To(device buffer.Device) (*Matrix, error) {
	if _, err := m.values.To(device); err != nil {
		return nil, err
	}
	if _, err := m.indices.To(device); err != nil {
		return nil, err
	}
	if _, err := m.offsets.To(device); err != nil {
		return nil, err
	}
	return m, nil
}

// T returns a transposed view of a 2-dimensional matrix. The physical buffers
// are shared; only the advertised shape and the transposed flag change.
func (m *Matrix) T() (*Matrix, error) {
	if m.Dim() != 2 {
		return nil, fmt.Errorf("t() expects a 2-dimensional matrix, got %dD: %w", m.Dim(), ErrRank)
	}
	out, err := newView(buffer.Shape{m.shape[1], m.shape[0]}, m.values, m.indices, m.offsets, !m.transposed)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsContiguous reports whether the advertised shape matches the physical
// block layout order, i.e. no outstanding transpose.
func (m *Matrix) IsContiguous() bool {
	return !m.transposed
}

// Contiguous would materialize a transposed view into canonical block order.
// The block permutation and offset recomputation this requires are not
// implemented.
func (m *Matrix) Contiguous() (*Matrix, error) {
	return nil, fmt.Errorf("materializing a transposed view into contiguous storage: %w", ErrNotImplemented)
}

// Reshape returns a view with a new logical shape sharing the same buffers.
// The matrix must be contiguous, the compressed (last) dimension cannot
// change, and the element count must be preserved.
func (m *Matrix) Reshape(shape buffer.Shape) (*Matrix, error) {
	if !m.IsContiguous() {
		return nil, fmt.Errorf("reshape requires a contiguous matrix: %w", ErrNotContiguous)
	}
	if len(shape) < 2 {
		return nil, fmt.Errorf("reshape target must have at least 2 dimensions, got %d: %w", len(shape), ErrRank)
	}
	if shape[len(shape)-1] != m.shape[len(m.shape)-1] {
		return nil, fmt.Errorf("cannot change view on compressed dimension (%d vs %d): %w",
			m.shape[len(m.shape)-1], shape[len(shape)-1], ErrShape)
	}
	if shape.NumElements() != m.shape.NumElements() {
		return nil, fmt.Errorf("mismatch in element count of matrix and new shape (%d vs %d): %w",
			m.shape.NumElements(), shape.NumElements(), ErrShape)
	}
	return newView(shape, m.values, m.indices, m.offsets, false)
}

// Grad returns a matrix view over the gradient buffer of values. For a
// transposed source the gradient is laid out in physical space, so the view
// is built over the un-transposed shape and then transposed back; its
// advertised shape always equals the source's.
func (m *Matrix) Grad() (*Matrix, error) {
	g, err := m.values.Grad()
	if err != nil {
		return nil, err
	}

	shape := m.shape
	if !m.IsContiguous() {
		shape = buffer.Shape{m.shape[1], m.shape[0]}
	}
	out, err := newView(shape, g, m.indices, m.offsets, false)
	if err != nil {
		return nil, err
	}
	if m.IsContiguous() {
		return out, nil
	}
	return out.T()
}

// Shape returns the advertised logical shape.
func (m *Matrix) Shape() buffer.Shape {
	return m.shape
}

// Dim returns the logical rank.
func (m *Matrix) Dim() int {
	return len(m.shape)
}

// DType returns the element type of the values buffer.
func (m *Matrix) DType() buffer.DataType {
	return m.values.DType()
}

// Device returns the device the matrix resides on.
func (m *Matrix) Device() buffer.Device {
	return m.values.Device()
}

// NNZ returns the number of stored nonzero elements.
func (m *Matrix) NNZ() int {
	return m.values.NumElements()
}

// BlockCount returns the number of stored blocks.
func (m *Matrix) BlockCount() int {
	return m.values.Shape()[0]
}

// Blocking returns the block side length.
func (m *Matrix) Blocking() int {
	return m.values.Shape()[1]
}

// Values returns the canonical [blocks, blockSize, blockSize] values buffer.
func (m *Matrix) Values() *buffer.Buffer {
	return m.values
}

// Indices returns the per-block column index buffer.
func (m *Matrix) Indices() *buffer.Buffer {
	return m.indices
}

// Offsets returns the block-row offset buffer.
func (m *Matrix) Offsets() *buffer.Buffer {
	return m.offsets
}

// RequiresGrad reports whether the values buffer tracks gradients.
func (m *Matrix) RequiresGrad() bool {
	return m.values.RequiresGrad()
}

// SetRequiresGrad toggles gradient tracking on the values buffer. Returns the
// receiver for chaining.
func (m *Matrix) SetRequiresGrad(v bool) *Matrix {
	m.values.SetRequiresGrad(v)
	return m
}
