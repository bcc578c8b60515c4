// Package convert holds the pixel conversion kernels and the lookup table
// that maps an encoding pair to its kernel.
package convert

import (
	"errors"
	"fmt"

	"github.com/smazurov/vidcap/internal/format"
)

// ErrShortBuffer is returned by kernels when src or dst is smaller than the
// frame size implied by the dimensions.
var ErrShortBuffer = errors.New("buffer too small for frame")

// ErrOddDimensions is returned by kernels whose chroma subsampling needs
// dimensions divisible by the subsampling factor.
var ErrOddDimensions = errors.New("frame dimensions not divisible by chroma subsampling")

// Func converts one tightly packed frame from src into dst.
type Func func(width, height int, src, dst []byte) error

// Entry is one row of the conversion table.
type Entry struct {
	Src  format.Fourcc
	Dst  format.Fourcc
	Name string
	Fn   Func
}

// Table is an ordered list of conversions. The first entry for a pair wins.
type Table struct {
	entries []Entry
}

var defaultTable = &Table{entries: []Entry{
	{format.FourccI420, format.FourccRGB32, "i420->rgb32", i420ToRGB32},
	{format.FourccYUY2, format.FourccRGB32, "yuy2->rgb32", yuy2ToRGB32},
	{format.FourccRGB32, format.FourccI420, "rgb32->i420", rgb32ToI420},
	{format.FourccYUY2, format.FourccI420, "yuy2->i420", yuy2ToI420},
	{format.FourccI420, format.FourccYUY2, "i420->yuy2", i420ToYUY2},
	{format.FourccRGB32, format.FourccYUY2, "rgb32->yuy2", rgb32ToYUY2},
	{format.Fourcc2VUY, format.FourccYUY2, "2vuy->yuy2", uyvyToYUY2},
	{format.Fourcc2VUY, format.FourccI420, "2vuy->i420", uyvyToI420},
	{format.FourccRGB24, format.FourccRGB32, "rgb24->rgb32", rgb24ToRGB32},
	{format.FourccBottomUpRGB24, format.FourccRGB32, "bottom_up_rgb24->rgb32", bottomUpRGB24ToRGB32},
	{format.FourccYVU9, format.FourccI420, "yvu9->i420", yvu9ToI420},
}}

// Default returns the built-in conversion table.
func Default() *Table { return defaultTable }

// Lookup returns the kernel converting src into dst.
func (t *Table) Lookup(src, dst format.Fourcc) (Entry, bool) {
	for _, e := range t.entries {
		if e.Src == src && e.Dst == dst {
			return e, true
		}
	}
	return Entry{}, false
}

// CanConvert implements format.Converter.
func (t *Table) CanConvert(src, dst format.Fourcc) bool {
	_, ok := t.Lookup(src, dst)
	return ok
}

// Entries returns a copy of the table in lookup order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func checkSizes(f, g format.Fourcc, width, height int, src, dst []byte) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if need := FrameSize(f, width, height); len(src) < need {
		return fmt.Errorf("%s source %d < %d: %w", f, len(src), need, ErrShortBuffer)
	}
	if need := FrameSize(g, width, height); len(dst) < need {
		return fmt.Errorf("%s destination %d < %d: %w", g, len(dst), need, ErrShortBuffer)
	}
	return nil
}

func checkSubsampling(width, height, factor int) error {
	if width%factor != 0 || height%factor != 0 {
		return fmt.Errorf("%dx%d with factor %d: %w", width, height, factor, ErrOddDimensions)
	}
	return nil
}
