// Package format describes pixel formats and device capabilities, and
// decides how a requested (nominal) format can be produced from what a
// device natively delivers.
package format

import "fmt"

// Fourcc identifies a pixel encoding.
type Fourcc int

// Pixel encodings. The first three values are part of the public contract.
const (
	FourccI420          Fourcc = 100
	FourccYUY2          Fourcc = 101
	FourccRGB32         Fourcc = 102
	FourccRGB24         Fourcc = 103
	FourccRGB555        Fourcc = 104
	FourccYVU9          Fourcc = 105
	Fourcc2VUY          Fourcc = 106
	FourccBottomUpRGB24 Fourcc = 107
)

var fourccNames = map[Fourcc]string{
	FourccI420:          "i420",
	FourccYUY2:          "yuy2",
	FourccRGB32:         "rgb32",
	FourccRGB24:         "rgb24",
	FourccRGB555:        "rgb555",
	FourccYVU9:          "yvu9",
	Fourcc2VUY:          "2vuy",
	FourccBottomUpRGB24: "bottom_up_rgb24",
}

// String returns the diagnostic name of the encoding, or "????".
func (f Fourcc) String() string {
	if name, ok := fourccNames[f]; ok {
		return name
	}
	return "????"
}

// ParseFourcc is the inverse of Fourcc.String.
func ParseFourcc(name string) (Fourcc, error) {
	for f, n := range fourccNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown fourcc %q", name)
}

// Descriptor is an immutable description of a video format.
type Descriptor struct {
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Fourcc         Fourcc `json:"fourcc"`
	FPSNumerator   int    `json:"fps_numerator"`
	FPSDenominator int    `json:"fps_denominator"`
}

// Valid reports whether all dimensions and the frame rate are positive.
func (d Descriptor) Valid() bool {
	return d.Width > 0 && d.Height > 0 && d.FPSNumerator > 0 && d.FPSDenominator > 0
}

// FPS returns the frame rate in frames per second.
func (d Descriptor) FPS() float64 {
	if d.FPSDenominator == 0 {
		return 0
	}
	return float64(d.FPSNumerator) / float64(d.FPSDenominator)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%dx%d %s %d/%d", d.Width, d.Height, d.Fourcc, d.FPSNumerator, d.FPSDenominator)
}

// Interval is a frame period in seconds, Numerator/Denominator.
type Interval struct {
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

// FPS returns the frame rate corresponding to the interval.
func (i Interval) FPS() float64 {
	if i.Numerator <= 0 {
		return 0
	}
	return float64(i.Denominator) / float64(i.Numerator)
}

func (i Interval) valid() bool {
	return i.Numerator > 0 && i.Denominator > 0
}

// Capability describes one native format slot of a device. Only the
// matcher consumes it.
type Capability struct {
	Fourcc     Fourcc `json:"fourcc"`
	MinWidth   int    `json:"min_width"`
	MaxWidth   int    `json:"max_width"`
	WidthStep  int    `json:"width_step"`
	MinHeight  int    `json:"min_height"`
	MaxHeight  int    `json:"max_height"`
	HeightStep int    `json:"height_step"`

	// MinInterval is the shortest frame period (highest frame rate).
	MinInterval Interval `json:"min_interval"`
	// MaxInterval is the longest frame period. A zero value means the
	// device has no lower frame rate bound.
	MaxInterval Interval `json:"max_interval"`

	// BottomUp is set when scanlines arrive last row first.
	BottomUp bool `json:"bottom_up"`
}

// Fixed returns a capability for a single frame size.
func Fixed(f Fourcc, width, height int, fastest, slowest Interval) Capability {
	return Capability{
		Fourcc:      f,
		MinWidth:    width,
		MaxWidth:    width,
		MinHeight:   height,
		MaxHeight:   height,
		MinInterval: fastest,
		MaxInterval: slowest,
	}
}

// MaxFPS returns the highest frame rate the capability supports.
func (c Capability) MaxFPS() float64 { return c.MinInterval.FPS() }

// MinFPS returns the lowest frame rate the capability supports.
func (c Capability) MinFPS() float64 { return c.MaxInterval.FPS() }

// fitsSize reports whether width x height lies in range and is reachable
// from the minimum by whole steps. A step of zero means any size in range.
func (c Capability) fitsSize(width, height int) bool {
	if width < c.MinWidth || width > c.MaxWidth || height < c.MinHeight || height > c.MaxHeight {
		return false
	}
	if c.WidthStep > 0 && (width-c.MinWidth)%c.WidthStep != 0 {
		return false
	}
	if c.HeightStep > 0 && (height-c.MinHeight)%c.HeightStep != 0 {
		return false
	}
	return true
}

// exceedsMaxFPS reports num/den > 1/MinInterval.
func (c Capability) exceedsMaxFPS(num, den int) bool {
	return int64(num)*int64(c.MinInterval.Numerator) > int64(den)*int64(c.MinInterval.Denominator)
}

// belowMinFPS reports num/den < 1/MaxInterval.
func (c Capability) belowMinFPS(num, den int) bool {
	if !c.MaxInterval.valid() {
		return false
	}
	return int64(num)*int64(c.MaxInterval.Numerator) < int64(den)*int64(c.MaxInterval.Denominator)
}

// maxRate returns the capability's highest frame rate as a reduced fraction.
func (c Capability) maxRate() (num, den int) {
	num, den = c.MinInterval.Denominator, c.MinInterval.Numerator
	g := gcd(num, den)
	return num / g, den / g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
