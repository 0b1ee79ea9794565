// Package webgpu implements device residency for buffers via WebGPU.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/sparse-ml/blocksparse/internal/buffer"
)

// Verify that Backend implements buffer.Allocator.
var _ buffer.Allocator = (*Backend)(nil)

// Backend moves buffer storage on and off the GPU. It performs no compute:
// kernels consuming GPU-resident matrices are external collaborators that
// receive the wgpu.Buffer handles directly.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
}

// New creates a new WebGPU backend and registers it as the allocator for the
// WebGPU device. Returns an error if WebGPU is not available or
// initialization fails.
func New() (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	b := &Backend{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
	}
	buffer.RegisterAllocator(b)
	return b, nil
}

// Device returns the device this allocator serves.
func (b *Backend) Device() buffer.Device {
	return buffer.WebGPU
}

// Upload copies host bytes into a new GPU buffer.
// The allocation is padded to 4-byte alignment as WebGPU requires.
func (b *Backend) Upload(data []byte) (buffer.DeviceBuffer, error) {
	size := uint64(len(data))
	alignedSize := (size + 3) &^ 3

	// MappedAtCreation for the initial data upload.
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buf.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buf.Unmap()

	return &gpuBuffer{buffer: buf, size: alignedSize}, nil
}

// Download reads a GPU buffer back into dst through a staging buffer, since
// storage buffers can't be mapped directly.
func (b *Backend) Download(src buffer.DeviceBuffer, dst []byte) error {
	gb, ok := src.(*gpuBuffer)
	if !ok {
		return fmt.Errorf("webgpu: cannot download %T", src)
	}

	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  gb.size,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(gb.buffer, 0, stagingBuffer, 0, gb.size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, gb.size)
	if err != nil {
		return fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, gb.size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), gb.size)
	copy(dst, mappedSlice[:len(dst)])
	stagingBuffer.Unmap()

	return nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Release frees the backend's GPU resources.
func (b *Backend) Release() {
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
}

// gpuBuffer is a GPU-resident allocation handle.
type gpuBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// Raw returns the underlying wgpu.Buffer for external compute kernels.
func (g *gpuBuffer) Raw() *wgpu.Buffer {
	return g.buffer
}

// Size returns the aligned allocation size in bytes.
func (g *gpuBuffer) Size() uint64 {
	return g.size
}

// Release frees the GPU allocation.
func (g *gpuBuffer) Release() {
	g.buffer.Release()
}
