//go:build linux

package v4l2

import (
	"math"

	"github.com/smazurov/vidcap/internal/format"
	v4l2dev "github.com/smazurov/vidcap/pkg/linuxav/v4l2"
)

var pixelFormats = []struct {
	pix    uint32
	fourcc format.Fourcc
}{
	{v4l2dev.PixFmtYUV420, format.FourccI420},
	{v4l2dev.PixFmtYUYV, format.FourccYUY2},
	{v4l2dev.PixFmtUYVY, format.Fourcc2VUY},
	{v4l2dev.PixFmtBGR32, format.FourccRGB32},
	{v4l2dev.PixFmtXBGR32, format.FourccRGB32},
	{v4l2dev.PixFmtBGR24, format.FourccRGB24},
	{v4l2dev.PixFmtRGB555, format.FourccRGB555},
	{v4l2dev.PixFmtYVU410, format.FourccYVU9},
}

// toFourcc maps a V4L2 pixel format onto the encodings the capture core
// handles.
func toFourcc(pix uint32) (format.Fourcc, bool) {
	for _, p := range pixelFormats {
		if p.pix == pix {
			return p.fourcc, true
		}
	}
	return 0, false
}

// enumerator is the part of *v4l2dev.Device the capability probe uses.
type enumerator interface {
	Formats() ([]v4l2dev.FormatInfo, error)
	FrameSizes(pixelFormat uint32) ([]v4l2dev.FrameSize, error)
	FrameIntervals(pixelFormat, width, height uint32) ([]v4l2dev.FrameInterval, error)
}

// slot remembers which V4L2 pixel format produced a capability.
type slot struct {
	pix uint32
	cap format.Capability
}

// probe builds the capability list in driver enumeration order. Discrete
// frame intervals each yield their own slot so the matcher can prefer an
// exact rate; interval ranges yield one slot.
func probe(dev enumerator) ([]slot, error) {
	formats, err := dev.Formats()
	if err != nil {
		return nil, err
	}

	var slots []slot
	for _, f := range formats {
		fourcc, ok := toFourcc(f.PixelFormat)
		if !ok {
			continue
		}

		sizes, err := dev.FrameSizes(f.PixelFormat)
		if err != nil {
			return nil, err
		}
		for _, size := range sizes {
			intervals, err := dev.FrameIntervals(f.PixelFormat, size.MaxWidth, size.MaxHeight)
			if err != nil {
				return nil, err
			}
			if len(intervals) == 0 {
				// No interval enumeration: assume the conventional ceiling.
				intervals = []v4l2dev.FrameInterval{{Min: v4l2dev.Fract{Numerator: 1, Denominator: 30}}}
			}
			for _, iv := range intervals {
				c := format.Capability{
					Fourcc:      fourcc,
					MinWidth:    int(size.MinWidth),
					MaxWidth:    int(size.MaxWidth),
					WidthStep:   int(size.StepWidth),
					MinHeight:   int(size.MinHeight),
					MaxHeight:   int(size.MaxHeight),
					HeightStep:  int(size.StepHeight),
					MinInterval: interval(iv.Min),
					MaxInterval: interval(iv.Max),
				}
				if c.MinInterval.Numerator <= 0 || c.MinInterval.Denominator <= 0 {
					continue
				}
				slots = append(slots, slot{pix: f.PixelFormat, cap: c})
			}
		}
	}
	return slots, nil
}

func interval(f v4l2dev.Fract) format.Interval {
	if f.Numerator > math.MaxInt32 || f.Denominator > math.MaxInt32 {
		return format.Interval{}
	}
	return format.Interval{Numerator: int(f.Numerator), Denominator: int(f.Denominator)}
}
