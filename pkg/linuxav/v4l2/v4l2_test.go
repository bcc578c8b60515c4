//go:build linux

package v4l2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"golang.org/x/sys/unix"
)

func TestGoneWrapsDeviceRemoval(t *testing.T) {
	tests := []struct {
		name string
		err  error
		gone bool
	}{
		{name: "ENODEV", err: unix.ENODEV, gone: true},
		{name: "ENXIO", err: unix.ENXIO, gone: true},
		{name: "wrapped ENODEV", err: fmt.Errorf("dqbuf: %w", unix.ENODEV), gone: true},
		{name: "EINVAL", err: unix.EINVAL, gone: false},
		{name: "EAGAIN", err: unix.EAGAIN, gone: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gone(tt.err)
			if got := errors.Is(err, ErrDeviceGone); got != tt.gone {
				t.Errorf("errors.Is(gone(%v), ErrDeviceGone) = %v, want %v", tt.err, got, tt.gone)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("gone(%v) lost the original errno", tt.err)
			}
		})
	}
}

func TestEndOfEnumeration(t *testing.T) {
	if !endOfEnumeration(unix.EINVAL) {
		t.Error("EINVAL should end enumeration")
	}
	if endOfEnumeration(unix.ENOTTY) {
		t.Error("ENOTTY should not end enumeration")
	}
}

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		name     string
		format   uint32
		expected string
	}{
		{name: "YUYV format", format: PixFmtYUYV, expected: "YUYV"},
		{name: "UYVY format", format: PixFmtUYVY, expected: "UYVY"},
		{name: "YUV420 format", format: PixFmtYUV420, expected: "YU12"},
		{name: "YVU410 format", format: PixFmtYVU410, expected: "YVU9"},
		{name: "BGR24 format", format: PixFmtBGR24, expected: "BGR3"},
		{name: "BGR32 format", format: PixFmtBGR32, expected: "BGR4"},
		{name: "XBGR32 format", format: PixFmtXBGR32, expected: "XR24"},
		{name: "RGB555 format", format: PixFmtRGB555, expected: "RGBO"},
		{name: "MJPEG format", format: PixFmtMJPEG, expected: "MJPG"},
		{name: "H264 format", format: PixFmtH264, expected: "H264"},
		{name: "HEVC format", format: PixFmtHEVC, expected: "HEVC"},
		{name: "NV12 format", format: PixFmtNV12, expected: "NV12"},
		{name: "null bytes", format: 0x00000000, expected: "\x00\x00\x00\x00"},
		{name: "mixed bytes", format: 0x01020304, expected: "\x04\x03\x02\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatFourCC(tt.format)
			if result != tt.expected {
				t.Errorf("FormatFourCC(0x%08X) = %q, want %q", tt.format, result, tt.expected)
			}
		})
	}
}

func TestPixelFormatsAreUint32(t *testing.T) {
	for _, v := range []any{PixFmtYUYV, PixFmtXBGR32, PixFmtNV12} {
		if _, ok := v.(uint32); !ok {
			t.Errorf("pixel format %v has type %T, want uint32", v, v)
		}
	}
}

func TestFractFPS(t *testing.T) {
	tests := []struct {
		name        string
		interval    Fract
		expectedFPS float64
	}{
		{name: "60 fps (1/60)", interval: Fract{Numerator: 1, Denominator: 60}, expectedFPS: 60.0},
		{name: "29.97 fps (1001/30000)", interval: Fract{Numerator: 1001, Denominator: 30000}, expectedFPS: 30000.0 / 1001.0},
		{name: "zero numerator returns 0", interval: Fract{Numerator: 0, Denominator: 60}, expectedFPS: 0.0},
		{name: "zero denominator", interval: Fract{Numerator: 1, Denominator: 0}, expectedFPS: 0.0},
		{name: "large values", interval: Fract{Numerator: 1000000, Denominator: 60000000}, expectedFPS: 60.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.interval.FPS()
			if math.Abs(result-tt.expectedFPS) > 0.001 {
				t.Errorf("Fract{%d, %d}.FPS() = %f, want %f",
					tt.interval.Numerator, tt.interval.Denominator, result, tt.expectedFPS)
			}
		})
	}
}

func TestDeviceInfoStreaming(t *testing.T) {
	if !(DeviceInfo{Caps: CapVideoCapture | CapStreaming}).Streaming() {
		t.Error("streaming capability not reported")
	}
	if (DeviceInfo{Caps: CapVideoCapture}).Streaming() {
		t.Error("read-only device reported as streaming")
	}
}

func pclk(hz uint64) [8]byte {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], hz)
	return b
}

func TestCalculateFPS(t *testing.T) {
	tests := []struct {
		name        string
		bt          v4l2BTTimings
		expectedFPS float64
		tolerance   float64
	}{
		{
			name: "1920x1080p60",
			bt: v4l2BTTimings{
				width:       1920,
				height:      1080,
				pixelclock:  pclk(148500000),
				hfrontporch: 88,
				hsync:       44,
				hbackporch:  148,
				vfrontporch: 4,
				vsync:       5,
				vbackporch:  36,
			},
			expectedFPS: 60.0,
			tolerance:   0.01,
		},
		{
			name: "1280x720p60",
			bt: v4l2BTTimings{
				width:       1280,
				height:      720,
				pixelclock:  pclk(74250000),
				hfrontporch: 110,
				hsync:       40,
				hbackporch:  220,
				vfrontporch: 5,
				vsync:       5,
				vbackporch:  20,
			},
			expectedFPS: 60.0,
			tolerance:   0.01,
		},
		{
			name: "1920x1080i interlaced halves the frame height",
			bt: v4l2BTTimings{
				width:       1920,
				height:      1080,
				pixelclock:  pclk(74250000),
				hfrontporch: 88,
				hsync:       44,
				hbackporch:  148,
				vfrontporch: 2,
				vsync:       5,
				vbackporch:  15,
				interlaced:  1,
			},
			// 74250000 / (2200 * 551)
			expectedFPS: 61.25,
			tolerance:   0.01,
		},
		{
			name:        "zero pixelclock",
			bt:          v4l2BTTimings{width: 1920, height: 1080},
			expectedFPS: 0.0,
		},
		{
			name:        "zero width",
			bt:          v4l2BTTimings{height: 1080, pixelclock: pclk(148500000)},
			expectedFPS: 0.0,
		},
		{
			name:        "empty timings",
			bt:          v4l2BTTimings{},
			expectedFPS: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := calculateFPS(&tt.bt)
			if math.Abs(result-tt.expectedFPS) > tt.tolerance {
				t.Errorf("calculateFPS(%+v) = %f, want %f (tolerance %f)",
					tt.bt, result, tt.expectedFPS, tt.tolerance)
			}
		})
	}
}

func TestSourceChangeFlags(t *testing.T) {
	ev := v4l2Event{typ: eventSourceChange}
	binary.NativeEndian.PutUint32(ev.u[0:4], SourceChangeResolution)
	if got := ev.srcChangeChanges(); got != SourceChangeResolution {
		t.Errorf("srcChangeChanges() = %d, want %d", got, SourceChangeResolution)
	}
}
