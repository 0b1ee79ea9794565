// Copyright 2026 BlockSparse Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sparse provides the public API for block compressed sparse row
// (BCSR) matrices.
//
// A BCSR matrix stores fixed-size square blocks of nonzero values plus the
// column-block index of each stored block and per-block-row offset ranges:
//
//   - values:  [blocks, blockSize, blockSize] float16 buffer
//   - indices: [blocks] int16 buffer, column-block index per stored block
//   - offsets: [blockRows + 1] int32 buffer, block-row boundaries
//
// Construction validates the full structural contract eagerly; views derived
// with T, Reshape and Grad share the underlying buffers without copying and
// re-validate shape-level invariants only.
//
// Example:
//
//	m, err := sparse.FromDense(sparse.Shape{128, 128}, 32, dense)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mt, _ := m.T()              // metadata-only transpose view
//	fmt.Println(mt.Shape())     // [128 128]
//	fmt.Println(m.Blocking())   // 32
//
// Numeric kernels, autodiff and device memory management are external
// collaborators: this package only guarantees that the three buffers stay
// mutually consistent through every structural operation.
package sparse
