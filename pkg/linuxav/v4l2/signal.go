//go:build linux

package v4l2

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// GetDeviceType returns the type of a V4L2 device (webcam, HDMI, or unknown).
func GetDeviceType(devicePath string) DeviceType {
	fd, err := openFd(devicePath)
	if err != nil {
		return DeviceTypeUnknown
	}
	defer unix.Close(fd)

	capability := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&capability)); err != nil {
		return DeviceTypeUnknown
	}

	// Devices answering DV timings queries, even with a link error, are
	// HDMI receivers.
	timings := v4l2DVTimings{}
	err = ioctl(fd, vidiocGDVTimings, unsafe.Pointer(&timings))
	if err == nil || errors.Is(err, unix.ENOLINK) || errors.Is(err, unix.ENOLCK) {
		return DeviceTypeHDMI
	}

	if cstr(capability.driver[:]) == "uvcvideo" {
		return DeviceTypeWebcam
	}
	return DeviceTypeUnknown
}

// GetDVTimings returns the current DV timings and signal status for HDMI devices.
func GetDVTimings(devicePath string) SignalStatus {
	fd, err := openFd(devicePath)
	if err != nil {
		return SignalStatus{State: SignalStateNoDevice}
	}
	defer unix.Close(fd)

	return dvTimings(fd)
}

// DVTimings is GetDVTimings on an open device.
func (d *Device) DVTimings() SignalStatus {
	return dvTimings(d.fd)
}

func dvTimings(fd int) SignalStatus {
	timings := v4l2DVTimings{}
	err := ioctl(fd, vidiocGDVTimings, unsafe.Pointer(&timings))

	if err == nil {
		bt := &timings.bt
		if bt.width > 0 && bt.height > 0 && bt.pixelClock() > 0 {
			return SignalStatus{
				State:      SignalStateLocked,
				Width:      bt.width,
				Height:     bt.height,
				FPS:        calculateFPS(bt),
				Interlaced: bt.interlaced != 0,
			}
		}
		return SignalStatus{State: SignalStateNoSignal}
	}

	switch {
	case errors.Is(err, unix.ENOLINK):
		return SignalStatus{State: SignalStateNoLink}
	case errors.Is(err, unix.ENOLCK):
		return SignalStatus{State: SignalStateUnstable}
	case errors.Is(err, unix.ERANGE):
		return SignalStatus{State: SignalStateOutOfRange}
	case errors.Is(err, unix.ENOTTY):
		return SignalStatus{State: SignalStateNotSupported}
	default:
		return SignalStatus{State: SignalStateNoSignal}
	}
}

// calculateFPS calculates the frame rate from DV timings.
func calculateFPS(bt *v4l2BTTimings) float64 {
	pixelclock := bt.pixelClock()
	if pixelclock == 0 {
		return 0
	}

	totalWidth := uint64(bt.width + bt.hfrontporch + bt.hsync + bt.hbackporch)
	totalHeight := uint64(bt.height + bt.vfrontporch + bt.vsync + bt.vbackporch)

	if bt.interlaced != 0 {
		totalHeight /= 2
	}

	if totalWidth == 0 || totalHeight == 0 {
		return 0
	}

	return float64(pixelclock) / float64(totalWidth*totalHeight)
}
