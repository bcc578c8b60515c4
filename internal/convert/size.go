package convert

import (
	"fmt"

	"github.com/smazurov/vidcap/internal/format"
)

// FrameSize returns the byte size of a tightly packed frame, or 0 for an
// encoding without a known layout.
func FrameSize(f format.Fourcc, width, height int) int {
	px := width * height
	switch f {
	case format.FourccI420:
		return px * 3 / 2
	case format.FourccRGB24, format.FourccBottomUpRGB24:
		return px * 3
	case format.FourccRGB32:
		return px * 4
	case format.FourccRGB555, format.FourccYUY2, format.Fourcc2VUY:
		return px * 2
	case format.FourccYVU9:
		return px * 9 / 8
	default:
		return 0
	}
}

// bytesPerPixel returns the row width factor of packed encodings, or 0 for
// planar ones.
func bytesPerPixel(f format.Fourcc) int {
	switch f {
	case format.FourccRGB32:
		return 4
	case format.FourccRGB24, format.FourccBottomUpRGB24:
		return 3
	case format.FourccRGB555, format.FourccYUY2, format.Fourcc2VUY:
		return 2
	default:
		return 0
	}
}

type plane struct {
	rows     int
	rowBytes int
	stride   int
}

func planes(f format.Fourcc, width, height, stride int) ([]plane, error) {
	if bpp := bytesPerPixel(f); bpp > 0 {
		return []plane{{rows: height, rowBytes: width * bpp, stride: stride}}, nil
	}

	switch f {
	case format.FourccI420:
		c := plane{rows: height / 2, rowBytes: width / 2, stride: stride / 2}
		return []plane{{rows: height, rowBytes: width, stride: stride}, c, c}, nil
	case format.FourccYVU9:
		c := plane{rows: height / 4, rowBytes: width / 4, stride: stride / 4}
		return []plane{{rows: height, rowBytes: width, stride: stride}, c, c}, nil
	default:
		return nil, fmt.Errorf("no layout for %s", f)
	}
}

// Destride copies a frame whose rows are stride bytes apart into dst as a
// tightly packed frame. Planar chroma planes use a proportionally reduced
// stride. A stride of zero means the source is already packed.
func Destride(f format.Fourcc, width, height, stride int, src, dst []byte) error {
	size := FrameSize(f, width, height)
	if size == 0 {
		return fmt.Errorf("no layout for %s", f)
	}
	if len(dst) < size {
		return fmt.Errorf("destride destination %d < %d: %w", len(dst), size, ErrShortBuffer)
	}

	ps, err := planes(f, width, height, stride)
	if err != nil {
		return err
	}

	if stride == 0 || stride == ps[0].rowBytes {
		if len(src) < size {
			return fmt.Errorf("destride source %d < %d: %w", len(src), size, ErrShortBuffer)
		}
		copy(dst, src[:size])
		return nil
	}
	if stride < ps[0].rowBytes {
		return fmt.Errorf("stride %d shorter than row of %d bytes", stride, ps[0].rowBytes)
	}

	in, out := 0, 0
	for _, p := range ps {
		for r := 0; r < p.rows; r++ {
			end := in + r*p.stride + p.rowBytes
			if end > len(src) {
				return fmt.Errorf("destride source ends at row %d: %w", r, ErrShortBuffer)
			}
			out += copy(dst[out:out+p.rowBytes], src[in+r*p.stride:end])
		}
		in += p.rows * p.stride
	}
	return nil
}
