// Copyright 2026 BlockSparse Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides GPU residency for sparse matrix buffers via WebGPU.
//
// WebGPU is a cross-platform graphics and compute API that works on:
//   - Windows (via Dawn/D3D12)
//   - macOS (via Dawn/Metal)
//   - Linux (via Dawn/Vulkan)
//
// Example:
//
//	import (
//	    "github.com/sparse-ml/blocksparse/backend/webgpu"
//	    "github.com/sparse-ml/blocksparse/sparse"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    m, err = m.To(sparse.WebGPU)
//	}
package webgpu

import (
	internalwebgpu "github.com/sparse-ml/blocksparse/internal/backend/webgpu"
	"github.com/sparse-ml/blocksparse/sparse"
)

// Backend moves buffer storage on and off the GPU. It performs no compute.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements sparse.Allocator.
var _ sparse.Allocator = (*Backend)(nil)

// New creates a new WebGPU backend and registers it as the allocator for the
// WebGPU device. Call Release() when done to free GPU resources.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// It attempts to initialize a WebGPU adapter to verify that a compatible GPU
// and drivers are present. Useful for keeping matrices CPU-resident when no
// GPU is available.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
