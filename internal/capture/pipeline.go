package capture

import (
	"fmt"

	"github.com/smazurov/vidcap/internal/convert"
	"github.com/smazurov/vidcap/internal/format"
)

// pipeline turns a raw device frame into the nominal format. Its buffers
// are owned by one source and only touched under the source's capture
// mutex.
type pipeline struct {
	capture format.Descriptor
	nominal format.Descriptor

	rescale bool
	flip    bool

	toRGB     *convert.Entry // capture -> rgb32, rescale path only
	toNominal *convert.Entry // native -> nominal

	frameSize int
	strideBuf []byte
	rgbBuf    []byte
	scaleBuf  []byte
	convBuf   []byte
}

// newPipeline resolves conversions for a match and sizes its buffers. No
// buffer is allocated when the total would exceed maxBytes.
func newPipeline(table *convert.Table, nominal format.Descriptor, m format.Match, maxBytes int) (*pipeline, error) {
	p := &pipeline{
		capture: m.Capture,
		nominal: nominal,
		rescale: m.Rescale,
		flip:    m.Flip && m.Capture.Fourcc != format.FourccBottomUpRGB24,
	}

	if m.Native.Fourcc != nominal.Fourcc {
		e, ok := table.Lookup(m.Native.Fourcc, nominal.Fourcc)
		if !ok {
			return nil, fmt.Errorf("no conversion %s -> %s", m.Native.Fourcc, nominal.Fourcc)
		}
		p.toNominal = &e
	}
	if m.Rescale && m.Capture.Fourcc != format.FourccRGB32 {
		e, ok := table.Lookup(m.Capture.Fourcc, format.FourccRGB32)
		if !ok {
			return nil, fmt.Errorf("no conversion %s -> %s", m.Capture.Fourcc, format.FourccRGB32)
		}
		p.toRGB = &e
	}

	c := m.Capture
	p.frameSize = convert.FrameSize(c.Fourcc, c.Width, c.Height)
	if p.frameSize == 0 {
		return nil, fmt.Errorf("unknown frame size for %s", c.Fourcc)
	}

	sizes := struct{ stride, rgb, scale, conv int }{stride: p.frameSize}
	if p.rescale {
		if p.toRGB != nil {
			sizes.rgb = c.Width * c.Height * 4
		}
		sizes.scale = nominal.Width * nominal.Height * 4
	}
	if p.toNominal != nil {
		sizes.conv = convert.FrameSize(nominal.Fourcc, nominal.Width, nominal.Height)
		if sizes.conv == 0 {
			return nil, fmt.Errorf("unknown frame size for %s", nominal.Fourcc)
		}
	}

	total := sizes.stride + sizes.rgb + sizes.scale + sizes.conv
	if maxBytes > 0 && total > maxBytes {
		return nil, NewError(CodeOutOfMemory, "frame buffers exceed limit",
			map[string]any{"bytes": total, "limit": maxBytes})
	}

	p.strideBuf = make([]byte, sizes.stride)
	p.rgbBuf = make([]byte, sizes.rgb)
	p.scaleBuf = make([]byte, sizes.scale)
	p.convBuf = make([]byte, sizes.conv)
	return p, nil
}

// conversionName returns the diagnostic name of the final conversion, or
// "" when frames are delivered in their native encoding.
func (p *pipeline) conversionName() string {
	if p.toNominal == nil {
		return ""
	}
	return p.toNominal.Name
}

// run processes one frame. The result aliases either data or one of the
// pipeline's buffers and is valid until the next call.
func (p *pipeline) run(data []byte, stride int) ([]byte, error) {
	c := p.capture
	buf := data

	if stride != 0 {
		if err := convert.Destride(c.Fourcc, c.Width, c.Height, stride, data, p.strideBuf); err != nil {
			return nil, err
		}
		buf = p.strideBuf
	} else if len(buf) > p.frameSize {
		buf = buf[:p.frameSize]
	}

	if p.rescale {
		if p.toRGB != nil {
			if err := p.toRGB.Fn(c.Width, c.Height, buf, p.rgbBuf); err != nil {
				return nil, fmt.Errorf("%s: %w", p.toRGB.Name, err)
			}
			buf = p.rgbBuf
		}
		if err := convert.ScaleAndFlip(buf, c.Width, c.Height, p.scaleBuf, p.nominal.Width, p.nominal.Height, p.flip); err != nil {
			return nil, err
		}
		buf = p.scaleBuf
	}

	if p.toNominal != nil {
		if err := p.toNominal.Fn(p.nominal.Width, p.nominal.Height, buf, p.convBuf); err != nil {
			return nil, fmt.Errorf("%s: %w", p.toNominal.Name, err)
		}
		buf = p.convBuf
	}

	return buf, nil
}
