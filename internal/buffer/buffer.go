package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/x448/float16"
)

// storage is a reference-counted byte buffer shared between Buffer views.
// Residency is a property of the storage, not of the views: moving a shared
// storage to another device is observed by every alias at once.
type storage struct {
	mu   sync.Mutex
	data []byte // host bytes; nil while device-resident
	size int    // logical payload size in bytes

	device Device
	dev    DeviceBuffer // device allocation when device != CPU
	alloc  Allocator    // allocator that owns dev

	refCount atomic.Int32
}

// newStorage creates a host-resident storage with refCount = 1.
func newStorage(size int) *storage {
	s := &storage{
		data:   make([]byte, size),
		size:   size,
		device: CPU,
	}
	s.refCount.Store(1)
	return s
}

// addRef increments the reference count (for view creation).
func (s *storage) addRef() {
	s.refCount.Add(1)
}

// release decrements the reference count and deallocates if it reaches 0.
func (s *storage) release() {
	if s.refCount.Add(-1) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.dev != nil {
			s.dev.Release()
			s.dev = nil
		}
		s.data = nil
	}
}

// transfer moves the storage's residency to target. Host-to-device goes
// through the registered allocator; device-to-host goes back through the
// allocator that performed the upload. Device-to-device is not supported.
func (s *storage) transfer(target Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == target {
		return nil
	}
	if s.device != CPU && target != CPU {
		return fmt.Errorf("direct %s to %s transfer is not supported", s.device, target)
	}

	if target == CPU {
		dst := make([]byte, s.size)
		if err := s.alloc.Download(s.dev, dst); err != nil {
			return err
		}
		s.dev.Release()
		s.dev = nil
		s.alloc = nil
		s.data = dst
		s.device = CPU
		return nil
	}

	a, err := allocatorFor(target)
	if err != nil {
		return err
	}
	handle, err := a.Upload(s.data)
	if err != nil {
		return err
	}
	s.data = nil
	s.dev = handle
	s.alloc = a
	s.device = target
	return nil
}

// Buffer is a multi-dimensional element buffer with a fixed data type and a
// device residency. Views created with Reshape share the underlying storage
// via reference counting; the data is never copied.
type Buffer struct {
	store  *storage
	shape  Shape
	stride []int // Memory strides (row-major)
	dtype  DataType

	requiresGrad bool
	grad         *Buffer // Accumulated gradient, allocated lazily
}

// New creates a zero-initialized buffer with the given shape and type.
// Non-CPU devices require a registered Allocator.
func New(shape Shape, dtype DataType, device Device) (*Buffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	byteSize := shape.NumElements() * dtype.Size()
	b := &Buffer{
		store:  newStorage(byteSize),
		shape:  shape.Clone(),
		stride: shape.strides(),
		dtype:  dtype,
	}
	if device != CPU {
		if _, err := b.To(device); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// FromFloat32 creates a Float16 buffer from float32 values.
// Each value is rounded to its nearest 16-bit representation.
func FromFloat32(data []float32, shape Shape) (*Buffer, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	b, err := New(shape, Float16, CPU)
	if err != nil {
		return nil, err
	}
	f16 := b.AsFloat16()
	for i, v := range data {
		f16[i] = float16.Fromfloat32(v)
	}
	return b, nil
}

// FromInt16 creates an Int16 buffer from a slice.
func FromInt16(data []int16, shape Shape) (*Buffer, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	b, err := New(shape, Int16, CPU)
	if err != nil {
		return nil, err
	}
	copy(b.AsInt16(), data)
	return b, nil
}

// FromInt32 creates an Int32 buffer from a slice.
func FromInt32(data []int32, shape Shape) (*Buffer, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	b, err := New(shape, Int32, CPU)
	if err != nil {
		return nil, err
	}
	copy(b.AsInt32(), data)
	return b, nil
}

// Shape returns the buffer's shape.
func (b *Buffer) Shape() Shape {
	return b.shape
}

// Strides returns the buffer's memory strides.
func (b *Buffer) Strides() []int {
	return b.stride
}

// Dim returns the buffer's rank.
func (b *Buffer) Dim() int {
	return len(b.shape)
}

// DType returns the buffer's data type.
func (b *Buffer) DType() DataType {
	return b.dtype
}

// Device returns the buffer's current residency.
func (b *Buffer) Device() Device {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.store.device
}

// NumElements returns the total number of elements.
func (b *Buffer) NumElements() int {
	return b.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (b *Buffer) ByteSize() int {
	return b.NumElements() * b.dtype.Size()
}

// hostData returns the host bytes, panicking for device-resident buffers.
func (b *Buffer) hostData() []byte {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if b.store.device != CPU {
		panic(fmt.Sprintf("buffer is resident on %s; move it to CPU before accessing data", b.store.device))
	}
	return b.store.data
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (b *Buffer) Data() []byte {
	return b.hostData()
}

// AsFloat16 interprets the data as []float16.Float16.
// Panics if the buffer's dtype is not Float16.
func (b *Buffer) AsFloat16() []float16.Float16 {
	if b.dtype != Float16 {
		panic(fmt.Sprintf("buffer dtype is %s, not float16", b.dtype))
	}
	data := b.hostData()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float16.Float16)(unsafe.Pointer(&data[0])), b.NumElements())
}

// AsInt16 interprets the data as []int16.
// Panics if the buffer's dtype is not Int16.
func (b *Buffer) AsInt16() []int16 {
	if b.dtype != Int16 {
		panic(fmt.Sprintf("buffer dtype is %s, not int16", b.dtype))
	}
	data := b.hostData()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*int16)(unsafe.Pointer(&data[0])), b.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the buffer's dtype is not Int32.
func (b *Buffer) AsInt32() []int32 {
	if b.dtype != Int32 {
		panic(fmt.Sprintf("buffer dtype is %s, not int32", b.dtype))
	}
	data := b.hostData()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), b.NumElements())
}

// Float32At returns element i of a Float16 buffer widened to float32.
func (b *Buffer) Float32At(i int) float32 {
	return b.AsFloat16()[i].Float32()
}

// SetFloat32At stores v at element i of a Float16 buffer, rounding to f16.
func (b *Buffer) SetFloat32At(i int, v float32) {
	b.AsFloat16()[i] = float16.Fromfloat32(v)
}

// Reshape returns a view of the buffer with a new shape. The storage is
// shared, never copied; the element count must be unchanged. An associated
// gradient follows the view with the same shape.
func (b *Buffer) Reshape(shape Shape) (*Buffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != b.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v to %v: element count differs (%d vs %d)",
			b.shape, shape, b.NumElements(), shape.NumElements())
	}

	b.store.addRef()
	out := &Buffer{
		store:        b.store,
		shape:        shape.Clone(),
		stride:       shape.strides(),
		dtype:        b.dtype,
		requiresGrad: b.requiresGrad,
	}
	if b.grad != nil {
		g, err := b.grad.Reshape(shape)
		if err != nil {
			return nil, err
		}
		out.grad = g
	}
	return out, nil
}

// To moves the buffer's storage to the target device and returns the
// receiver. Transfer failures are returned unchanged from the allocator.
// Every view sharing this storage observes the move.
func (b *Buffer) To(device Device) (*Buffer, error) {
	if err := b.store.transfer(device); err != nil {
		return nil, err
	}
	if b.grad != nil {
		if _, err := b.grad.To(device); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Release decrements the storage's reference count and deallocates when it
// reaches 0.
func (b *Buffer) Release() {
	b.store.release()
}

// SetRequiresGrad enables or disables gradient tracking. Returns the receiver
// for chaining.
func (b *Buffer) SetRequiresGrad(v bool) *Buffer {
	b.requiresGrad = v
	return b
}

// RequiresGrad reports whether gradient tracking is enabled.
func (b *Buffer) RequiresGrad() bool {
	return b.requiresGrad
}

// Grad returns the gradient buffer, allocating it zero-initialized on first
// use. The gradient has the same shape, dtype and device as the buffer.
// Fails if gradient tracking is disabled.
func (b *Buffer) Grad() (*Buffer, error) {
	if !b.requiresGrad {
		return nil, fmt.Errorf("gradient tracking is disabled for this buffer")
	}
	if b.grad == nil {
		g, err := New(b.shape, b.dtype, b.Device())
		if err != nil {
			return nil, err
		}
		b.grad = g
	}
	return b.grad, nil
}

// AccumulateGrad adds vals into the gradient of a Float16 buffer element-wise.
// The sum is computed in float32 and rounded back to f16, which is how an
// autodiff engine feeding this buffer would accumulate.
func (b *Buffer) AccumulateGrad(vals []float32) error {
	if b.dtype != Float16 {
		return fmt.Errorf("gradient accumulation requires a float16 buffer, got %s", b.dtype)
	}
	if len(vals) != b.NumElements() {
		return fmt.Errorf("gradient has %d elements, buffer has %d", len(vals), b.NumElements())
	}
	g, err := b.Grad()
	if err != nil {
		return err
	}
	f16 := g.AsFloat16()
	for i, v := range vals {
		f16[i] = float16.Fromfloat32(f16[i].Float32() + v)
	}
	return nil
}
