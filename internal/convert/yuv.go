package convert

import "github.com/smazurov/vidcap/internal/format"

// BT.601 limited range, 8-bit fixed point.

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func yuvToRGB(y, u, v byte) (r, g, b byte) {
	c := int(y) - 16
	d := int(u) - 128
	e := int(v) - 128
	r = clamp((298*c + 409*e + 128) >> 8)
	g = clamp((298*c - 100*d - 208*e + 128) >> 8)
	b = clamp((298*c + 516*d + 128) >> 8)
	return r, g, b
}

func rgbToY(r, g, b int) byte {
	return clamp(((66*r + 129*g + 25*b + 128) >> 8) + 16)
}

func rgbToUV(r, g, b int) (u, v byte) {
	u = clamp(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
	v = clamp(((112*r - 94*g - 18*b + 128) >> 8) + 128)
	return u, v
}

func putRGB32(dst []byte, r, g, b byte) {
	dst[0] = b
	dst[1] = g
	dst[2] = r
	dst[3] = 0xff
}

func i420ToRGB32(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccI420, format.FourccRGB32, width, height, src, dst); err != nil {
		return err
	}
	if err := checkSubsampling(width, height, 2); err != nil {
		return err
	}

	cw := width / 2
	uPlane := src[width*height:]
	vPlane := uPlane[cw*(height/2):]

	for y := 0; y < height; y++ {
		row := dst[y*width*4:]
		for x := 0; x < width; x++ {
			ci := (y/2)*cw + x/2
			r, g, b := yuvToRGB(src[y*width+x], uPlane[ci], vPlane[ci])
			putRGB32(row[x*4:], r, g, b)
		}
	}
	return nil
}

func yuy2ToRGB32(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccYUY2, format.FourccRGB32, width, height, src, dst); err != nil {
		return err
	}
	if err := checkSubsampling(width, 2, 2); err != nil {
		return err
	}

	for i, o := 0, 0; i < width*height*2; i, o = i+4, o+8 {
		y0, u, y1, v := src[i], src[i+1], src[i+2], src[i+3]
		r, g, b := yuvToRGB(y0, u, v)
		putRGB32(dst[o:], r, g, b)
		r, g, b = yuvToRGB(y1, u, v)
		putRGB32(dst[o+4:], r, g, b)
	}
	return nil
}

// rgb32ToI420 averages each 2x2 block for chroma.
func rgb32ToI420(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccRGB32, format.FourccI420, width, height, src, dst); err != nil {
		return err
	}
	if err := checkSubsampling(width, height, 2); err != nil {
		return err
	}

	cw := width / 2
	uPlane := dst[width*height:]
	vPlane := uPlane[cw*(height/2):]

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := src[(y*width+x)*4:]
			dst[y*width+x] = rgbToY(int(p[2]), int(p[1]), int(p[0]))
		}
	}

	for cy := 0; cy < height/2; cy++ {
		for cx := 0; cx < cw; cx++ {
			var r, g, b int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					p := src[((2*cy+dy)*width+2*cx+dx)*4:]
					b += int(p[0])
					g += int(p[1])
					r += int(p[2])
				}
			}
			u, v := rgbToUV(r/4, g/4, b/4)
			uPlane[cy*cw+cx] = u
			vPlane[cy*cw+cx] = v
		}
	}
	return nil
}

// yuy2ToI420 takes chroma from even rows only.
func yuy2ToI420(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccYUY2, format.FourccI420, width, height, src, dst); err != nil {
		return err
	}
	if err := checkSubsampling(width, height, 2); err != nil {
		return err
	}

	cw := width / 2
	uPlane := dst[width*height:]
	vPlane := uPlane[cw*(height/2):]

	for y := 0; y < height; y++ {
		row := src[y*width*2:]
		for x := 0; x < width; x++ {
			dst[y*width+x] = row[x*2]
		}
		if y%2 != 0 {
			continue
		}
		for cx := 0; cx < cw; cx++ {
			uPlane[(y/2)*cw+cx] = row[cx*4+1]
			vPlane[(y/2)*cw+cx] = row[cx*4+3]
		}
	}
	return nil
}

func i420ToYUY2(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccI420, format.FourccYUY2, width, height, src, dst); err != nil {
		return err
	}
	if err := checkSubsampling(width, height, 2); err != nil {
		return err
	}

	cw := width / 2
	uPlane := src[width*height:]
	vPlane := uPlane[cw*(height/2):]

	for y := 0; y < height; y++ {
		row := dst[y*width*2:]
		for cx := 0; cx < cw; cx++ {
			ci := (y/2)*cw + cx
			row[cx*4] = src[y*width+2*cx]
			row[cx*4+1] = uPlane[ci]
			row[cx*4+2] = src[y*width+2*cx+1]
			row[cx*4+3] = vPlane[ci]
		}
	}
	return nil
}

// rgb32ToYUY2 averages each horizontal pixel pair for chroma.
func rgb32ToYUY2(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccRGB32, format.FourccYUY2, width, height, src, dst); err != nil {
		return err
	}
	if err := checkSubsampling(width, 2, 2); err != nil {
		return err
	}

	for i, o := 0, 0; o < width*height*2; i, o = i+8, o+4 {
		b0, g0, r0 := int(src[i]), int(src[i+1]), int(src[i+2])
		b1, g1, r1 := int(src[i+4]), int(src[i+5]), int(src[i+6])
		u, v := rgbToUV((r0+r1)/2, (g0+g1)/2, (b0+b1)/2)
		dst[o] = rgbToY(r0, g0, b0)
		dst[o+1] = u
		dst[o+2] = rgbToY(r1, g1, b1)
		dst[o+3] = v
	}
	return nil
}

// uyvyToYUY2 swaps every byte pair.
func uyvyToYUY2(width, height int, src, dst []byte) error {
	if err := checkSizes(format.Fourcc2VUY, format.FourccYUY2, width, height, src, dst); err != nil {
		return err
	}

	n := width * height * 2
	for i := 0; i+1 < n; i += 2 {
		dst[i], dst[i+1] = src[i+1], src[i]
	}
	return nil
}

// uyvyToI420 takes chroma from even rows only.
func uyvyToI420(width, height int, src, dst []byte) error {
	if err := checkSizes(format.Fourcc2VUY, format.FourccI420, width, height, src, dst); err != nil {
		return err
	}
	if err := checkSubsampling(width, height, 2); err != nil {
		return err
	}

	cw := width / 2
	uPlane := dst[width*height:]
	vPlane := uPlane[cw*(height/2):]

	for y := 0; y < height; y++ {
		row := src[y*width*2:]
		for x := 0; x < width; x++ {
			dst[y*width+x] = row[x*2+1]
		}
		if y%2 != 0 {
			continue
		}
		for cx := 0; cx < cw; cx++ {
			uPlane[(y/2)*cw+cx] = row[cx*4]
			vPlane[(y/2)*cw+cx] = row[cx*4+2]
		}
	}
	return nil
}

// yvu9ToI420 upsamples the 4x4 chroma planes to 2x2 and swaps their order.
func yvu9ToI420(width, height int, src, dst []byte) error {
	if err := checkSizes(format.FourccYVU9, format.FourccI420, width, height, src, dst); err != nil {
		return err
	}
	if err := checkSubsampling(width, height, 4); err != nil {
		return err
	}

	copy(dst, src[:width*height])

	sw := width / 4
	vIn := src[width*height:]
	uIn := vIn[sw*(height/4):]

	cw := width / 2
	uOut := dst[width*height:]
	vOut := uOut[cw*(height/2):]

	for cy := 0; cy < height/2; cy++ {
		for cx := 0; cx < cw; cx++ {
			si := (cy/2)*sw + cx/2
			uOut[cy*cw+cx] = uIn[si]
			vOut[cy*cw+cx] = vIn[si]
		}
	}
	return nil
}
