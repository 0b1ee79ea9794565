package buffer

import (
	"fmt"
	"sync"
)

// DeviceBuffer is an opaque handle to device-resident storage.
type DeviceBuffer interface {
	// Size returns the allocation size in bytes. May exceed the logical
	// payload size when the device requires alignment padding.
	Size() uint64
	// Release frees the device allocation.
	Release()
}

// Allocator moves raw bytes on and off a single device.
//
// Implementations:
//   - internal/backend/webgpu: GPU buffers via WebGPU
//   - MockAllocator: in-memory fake for tests
type Allocator interface {
	// Device returns the device this allocator serves.
	Device() Device
	// Upload copies host bytes into a new device allocation.
	Upload(data []byte) (DeviceBuffer, error)
	// Download copies a device allocation back into dst.
	Download(src DeviceBuffer, dst []byte) error
}

var (
	allocMu    sync.RWMutex
	allocators = make(map[Device]Allocator)
)

// RegisterAllocator makes an allocator available for Buffer.To transfers to
// its device. Registering a second allocator for the same device replaces the
// first.
func RegisterAllocator(a Allocator) {
	allocMu.Lock()
	defer allocMu.Unlock()
	allocators[a.Device()] = a
}

// allocatorFor returns the registered allocator for a device.
func allocatorFor(d Device) (Allocator, error) {
	allocMu.RLock()
	defer allocMu.RUnlock()

	a, ok := allocators[d]
	if !ok {
		return nil, fmt.Errorf("no allocator registered for device %s", d)
	}
	return a, nil
}
