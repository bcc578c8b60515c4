//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
}

// Streaming reports whether the device supports mmap streaming I/O.
func (d DeviceInfo) Streaming() bool { return d.Caps&CapStreaming != 0 }

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// FrameSize is one ENUM_FRAMESIZES entry. Discrete sizes have equal
// minimum and maximum and zero steps.
type FrameSize struct {
	Discrete   bool
	MinWidth   uint32
	MaxWidth   uint32
	StepWidth  uint32
	MinHeight  uint32
	MaxHeight  uint32
	StepHeight uint32
}

// Fract is a V4L2 fraction. Frame intervals are in seconds.
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the frame rate for a frame interval.
func (f Fract) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// FrameInterval is one ENUM_FRAMEINTERVALS entry. Discrete intervals have
// Min == Max.
type FrameInterval struct {
	Discrete bool
	Min      Fract
	Max      Fract
}

// PixFormat is the single-planar format the driver accepted.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	BytesPerLine uint32
	SizeImage    uint32
}

// DeviceType represents the type of V4L2 device.
type DeviceType int

// Device types.
const (
	DeviceTypeWebcam  DeviceType = 0
	DeviceTypeHDMI    DeviceType = 1
	DeviceTypeUnknown DeviceType = -1
)

// SignalState represents the state of a video signal.
type SignalState int

// Signal states.
const (
	SignalStateNoDevice     SignalState = -1
	SignalStateNoLink       SignalState = 0 // No cable connected
	SignalStateNoSignal     SignalState = 1 // Cable connected, no signal
	SignalStateUnstable     SignalState = 2 // Signal present but unstable
	SignalStateLocked       SignalState = 3 // Signal locked and stable
	SignalStateOutOfRange   SignalState = 4 // Signal out of supported range
	SignalStateNotSupported SignalState = 5 // Device doesn't support DV timings
)

// SignalStatus contains detailed signal information.
type SignalStatus struct {
	State      SignalState
	Width      uint32
	Height     uint32
	FPS        float64
	Interlaced bool
}

// Capability flags.
const (
	CapVideoCapture = 0x00000001
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000
)

// Format flags.
const (
	fmtFlagEmulated = 0x0002
)

// Pixel formats the capture backend understands, plus a few common
// compressed ones for diagnostics.
const (
	PixFmtYUYV   uint32 = 0x56595559 // 'YUYV'
	PixFmtUYVY   uint32 = 0x59565955 // 'UYVY'
	PixFmtYUV420 uint32 = 0x32315559 // 'YU12'
	PixFmtYVU410 uint32 = 0x39555659 // 'YVU9'
	PixFmtBGR24  uint32 = 0x33524742 // 'BGR3'
	PixFmtBGR32  uint32 = 0x34524742 // 'BGR4'
	PixFmtXBGR32 uint32 = 0x34325258 // 'XR24'
	PixFmtRGB555 uint32 = 0x4f424752 // 'RGBO'
	PixFmtMJPEG  uint32 = 0x47504A4D // 'MJPG'
	PixFmtH264   uint32 = 0x34363248 // 'H264'
	PixFmtHEVC   uint32 = 0x43564548 // 'HEVC'
	PixFmtNV12   uint32 = 0x3231564E // 'NV12'
)

// Frame size types.
const (
	frmsizeTypeDiscrete   = 1
	frmsizeTypeContinuous = 2
	frmsizeTypeStepwise   = 3
)

// Frame interval types.
const (
	frmivalTypeDiscrete   = 1
	frmivalTypeContinuous = 2
	frmivalTypeStepwise   = 3
)

const (
	bufTypeVideoCapture = 1
	memoryMmap          = 1
	fieldNone           = 1
	captureTimePerFrame = 0x1000
)

// Event types.
const (
	eventSourceChange = 5
)

// SourceChangeResolution is set in a source change event when the
// detected resolution differs.
const SourceChangeResolution = 1
