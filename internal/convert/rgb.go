package convert

import (
	"fmt"

	"github.com/smazurov/vidcap/internal/format"
)

func rgb24ToRGB32(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccRGB24, format.FourccRGB32, width, height, src, dst); err != nil {
		return err
	}

	for i, o := 0, 0; i < width*height*3; i, o = i+3, o+4 {
		dst[o] = src[i]
		dst[o+1] = src[i+1]
		dst[o+2] = src[i+2]
		dst[o+3] = 0xff
	}
	return nil
}

func bottomUpRGB24ToRGB32(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccBottomUpRGB24, format.FourccRGB32, width, height, src, dst); err != nil {
		return err
	}

	for y := 0; y < height; y++ {
		in := src[(height-1-y)*width*3:]
		out := dst[y*width*4:]
		for x := 0; x < width; x++ {
			out[x*4] = in[x*3]
			out[x*4+1] = in[x*3+1]
			out[x*4+2] = in[x*3+2]
			out[x*4+3] = 0xff
		}
	}
	return nil
}

// ScaleAndFlip resamples an RGB32 frame to a new size by nearest neighbour,
// optionally flipping it vertically.
func ScaleAndFlip(src []byte, srcWidth, srcHeight int, dst []byte, dstWidth, dstHeight int, flip bool) error {
	if srcWidth <= 0 || srcHeight <= 0 || dstWidth <= 0 || dstHeight <= 0 {
		return fmt.Errorf("invalid scale %dx%d -> %dx%d", srcWidth, srcHeight, dstWidth, dstHeight)
	}
	if need := srcWidth * srcHeight * 4; len(src) < need {
		return fmt.Errorf("scale source %d < %d: %w", len(src), need, ErrShortBuffer)
	}
	if need := dstWidth * dstHeight * 4; len(dst) < need {
		return fmt.Errorf("scale destination %d < %d: %w", len(dst), need, ErrShortBuffer)
	}

	for y := 0; y < dstHeight; y++ {
		sy := y * srcHeight / dstHeight
		if flip {
			sy = srcHeight - 1 - sy
		}
		in := src[sy*srcWidth*4:]
		out := dst[y*dstWidth*4:]
		for x := 0; x < dstWidth; x++ {
			sx := x * srcWidth / dstWidth
			copy(out[x*4:x*4+4], in[sx*4:sx*4+4])
		}
	}
	return nil
}
