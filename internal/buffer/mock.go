package buffer

import "fmt"

// Verify that MockAllocator implements Allocator.
var _ Allocator = (*MockAllocator)(nil)

// MockAllocator is a host-memory Allocator for testing. It lets tests place
// buffers on an accelerator device without real device support.
type MockAllocator struct {
	device Device

	// Fail, when set, is returned from Upload and Download. Used to test
	// transfer-failure propagation. FailAfter delays the Upload failure by
	// that many successful uploads, letting tests interrupt a multi-buffer
	// transfer partway.
	Fail      error
	FailAfter int

	uploads int
}

// NewMockAllocator creates a mock allocator for the given device.
func NewMockAllocator(device Device) *MockAllocator {
	return &MockAllocator{device: device}
}

// Device returns the mocked device.
func (m *MockAllocator) Device() Device {
	return m.device
}

// Upload copies data into a host-backed fake device allocation.
func (m *MockAllocator) Upload(data []byte) (DeviceBuffer, error) {
	if m.Fail != nil && m.uploads >= m.FailAfter {
		return nil, m.Fail
	}
	m.uploads++
	buf := &mockDeviceBuffer{data: make([]byte, len(data))}
	copy(buf.data, data)
	return buf, nil
}

// Download copies a fake device allocation back into dst.
func (m *MockAllocator) Download(src DeviceBuffer, dst []byte) error {
	if m.Fail != nil {
		return m.Fail
	}
	buf, ok := src.(*mockDeviceBuffer)
	if !ok {
		return fmt.Errorf("mock allocator cannot download %T", src)
	}
	copy(dst, buf.data)
	return nil
}

type mockDeviceBuffer struct {
	data []byte
}

func (b *mockDeviceBuffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *mockDeviceBuffer) Release() {
	b.data = nil
}
