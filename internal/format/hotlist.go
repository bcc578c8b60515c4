package format

type resolution struct{ width, height int }

type rate struct{ num, den int }

// Candidate encodings, frame rates and sizes probed to build a source's
// advertised format list. Order is preference order.
var (
	hotFourccs = []Fourcc{FourccI420, FourccYUY2, FourccRGB32}

	hotRates = []rate{
		{30, 1},
		{25, 1},
		{20, 1},
		{15, 1},
		{10, 1},
		{5, 1},
	}

	hotResolutions = []resolution{
		{1600, 1200},
		{1280, 1024},
		{1280, 960},
		{1280, 720},
		{1024, 768},
		{800, 600},
		{704, 576},
		{704, 480},
		{640, 480},
		{352, 288},
		{352, 240},
		{320, 240},
		{176, 144},
		{160, 120},
	}
)

// HotList returns every candidate in the fourcc x rate x resolution cross
// product that m can satisfy from caps without the rescale fallback.
func (m *Matcher) HotList(caps []Capability) []Descriptor {
	var list []Descriptor

	for _, f := range hotFourccs {
		for _, r := range hotRates {
			for _, res := range hotResolutions {
				d := Descriptor{
					Width:          res.width,
					Height:         res.height,
					Fourcc:         f,
					FPSNumerator:   r.num,
					FPSDenominator: r.den,
				}
				if _, ok := m.FindBest(d, caps); ok {
					list = append(list, d)
				}
			}
		}
	}

	return list
}
