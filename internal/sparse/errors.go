// Package sparse implements block compressed sparse row (BCSR) matrices over
// shared element buffers.
package sparse

import "errors"

// Error taxonomy for structural violations. Every failure is surfaced to the
// caller at the point of violation; nothing is recovered internally. Raise
// sites wrap these sentinels with context, so match with errors.Is.
var (
	// ErrShape indicates non-square blocks, an indivisible matrix shape,
	// a rank mismatch, or an incompatible reshape target.
	ErrShape = errors.New("sparse: invalid shape")

	// ErrCapacity indicates the declared matrix shape cannot hold the
	// stored nonzero count.
	ErrCapacity = errors.New("sparse: nonzeros exceed matrix capacity")

	// ErrCountMismatch indicates the indices or offsets length disagrees
	// with the stored block count or block-row count.
	ErrCountMismatch = errors.New("sparse: index/offset count mismatch")

	// ErrDeviceMismatch indicates the three buffers span more than one
	// device.
	ErrDeviceMismatch = errors.New("sparse: buffers on mixed devices")

	// ErrDType indicates a buffer's element type deviates from the fixed
	// float16/int16/int32 contract.
	ErrDType = errors.New("sparse: unexpected element type")

	// ErrRank indicates an operation requiring a specific dimensionality
	// was invoked on a matrix of different rank.
	ErrRank = errors.New("sparse: wrong dimensionality")

	// ErrNotContiguous indicates a contiguity-dependent operation was
	// invoked on a transposed matrix.
	ErrNotContiguous = errors.New("sparse: matrix is not contiguous")

	// ErrNotImplemented marks operations deliberately left unimplemented.
	ErrNotImplemented = errors.New("sparse: not implemented")
)
