package buffer

// Device represents where a buffer's storage resides.
type Device int

// Supported devices. CPU is the native residency of a buffer; every other
// device requires a registered Allocator to move data on and off it.
const (
	CPU Device = iota
	WebGPU
	CUDA
	Metal
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	case CUDA:
		return "CUDA"
	case Metal:
		return "Metal"
	default:
		return "Unknown"
	}
}
