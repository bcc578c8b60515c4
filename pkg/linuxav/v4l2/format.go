//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Formats returns all supported capture pixel formats.
func (d *Device) Formats() ([]FormatInfo, error) {
	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		fmtdesc := v4l2Fmtdesc{
			index: i,
			typ:   bufTypeVideoCapture,
		}

		if err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); err != nil {
			if endOfEnumeration(err) {
				break
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, err)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&fmtFlagEmulated != 0,
		})
	}

	return formats, nil
}

// FrameSizes returns the frame sizes supported for pixelFormat. Stepwise
// and continuous ranges are reported as a single entry.
func (d *Device) FrameSizes(pixelFormat uint32) ([]FrameSize, error) {
	var sizes []FrameSize

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if err := ioctl(d.fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
			if endOfEnumeration(err) {
				break
			}
			// ENOTTY means device doesn't support frame size enumeration
			if errors.Is(err, unix.ENOTTY) {
				return []FrameSize{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, err)
		}

		switch frmsize.typ {
		case frmsizeTypeDiscrete:
			w, h := frmsize.u.minWidth, frmsize.u.maxWidth
			sizes = append(sizes, FrameSize{
				Discrete:  true,
				MinWidth:  w,
				MaxWidth:  w,
				MinHeight: h,
				MaxHeight: h,
			})
		case frmsizeTypeContinuous, frmsizeTypeStepwise:
			s := frmsize.u
			size := FrameSize{
				MinWidth:   s.minWidth,
				MaxWidth:   s.maxWidth,
				StepWidth:  s.stepWidth,
				MinHeight:  s.minHeight,
				MaxHeight:  s.maxHeight,
				StepHeight: s.stepHeight,
			}
			if frmsize.typ == frmsizeTypeContinuous {
				size.StepWidth, size.StepHeight = 1, 1
			}
			return append(sizes, size), nil
		}
	}

	return sizes, nil
}

// FrameIntervals returns the frame intervals supported for a format and
// size. Stepwise and continuous ranges are reported as a single entry.
func (d *Device) FrameIntervals(pixelFormat, width, height uint32) ([]FrameInterval, error) {
	var intervals []FrameInterval

	for i := uint32(0); ; i++ {
		frmival := v4l2Frmivalenum{
			index:       i,
			pixelFormat: pixelFormat,
			width:       width,
			height:      height,
		}

		if err := ioctl(d.fd, vidiocEnumFrameintervals, unsafe.Pointer(&frmival)); err != nil {
			if endOfEnumeration(err) {
				break
			}
			if errors.Is(err, unix.ENOTTY) {
				return []FrameInterval{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame interval %d: %w", i, err)
		}

		switch frmival.typ {
		case frmivalTypeDiscrete:
			f := fract(frmival.u.min)
			intervals = append(intervals, FrameInterval{Discrete: true, Min: f, Max: f})
		case frmivalTypeContinuous, frmivalTypeStepwise:
			return append(intervals, FrameInterval{
				Min: fract(frmival.u.min),
				Max: fract(frmival.u.max),
			}), nil
		}
	}

	return intervals, nil
}

// SetFormat programs the capture format. The driver may adjust the size;
// the returned format is what it accepted.
func (d *Device) SetFormat(width, height, pixelFormat uint32) (PixFormat, error) {
	f := v4l2Format{typ: bufTypeVideoCapture}
	f.pix.width = width
	f.pix.height = height
	f.pix.pixelformat = pixelFormat
	f.pix.field = fieldNone

	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("set format %s %dx%d: %w", FormatFourCC(pixelFormat), width, height, gone(err))
	}
	return pixFormat(&f.pix), nil
}

// Format returns the currently programmed capture format.
func (d *Device) Format() (PixFormat, error) {
	f := v4l2Format{typ: bufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("get format: %w", gone(err))
	}
	return pixFormat(&f.pix), nil
}

// SetFrameInterval requests a frame period. It reports false without
// error when the driver does not support setting one.
func (d *Device) SetFrameInterval(interval Fract) (bool, error) {
	parm := v4l2Streamparm{typ: bufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocGParm, unsafe.Pointer(&parm)); err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
			return false, nil
		}
		return false, fmt.Errorf("get stream parameters: %w", gone(err))
	}
	if parm.capture.capability&captureTimePerFrame == 0 {
		return false, nil
	}

	parm.capture.timeperframe = v4l2Fract{numerator: interval.Numerator, denominator: interval.Denominator}
	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		return false, fmt.Errorf("set frame interval %d/%d: %w", interval.Numerator, interval.Denominator, gone(err))
	}
	return true, nil
}

func fract(f v4l2Fract) Fract {
	return Fract{Numerator: f.numerator, Denominator: f.denominator}
}

func pixFormat(p *v4l2PixFormat) PixFormat {
	return PixFormat{
		Width:        p.width,
		Height:       p.height,
		PixelFormat:  p.pixelformat,
		BytesPerLine: p.bytesperline,
		SizeImage:    p.sizeimage,
	}
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}
