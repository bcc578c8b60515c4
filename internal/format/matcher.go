package format

// Quality ranks how a native capability satisfies a nominal request.
// Lower values are preferred.
type Quality int

// Match tiers, best first.
const (
	QualityPerfect         Quality = iota // native equals nominal
	QualityThrottle                       // device too fast, pacer caps the rate
	QualityConvert                        // pixel conversion required
	QualityConvertThrottle                // conversion and pacing both required
	QualityRescale                        // degraded: rescale and flip in software
)

func (q Quality) String() string {
	switch q {
	case QualityPerfect:
		return "perfect"
	case QualityThrottle:
		return "throttle"
	case QualityConvert:
		return "convert"
	case QualityConvertThrottle:
		return "convert+throttle"
	case QualityRescale:
		return "rescale"
	default:
		return "unknown"
	}
}

// Converter reports whether a conversion function exists between two
// encodings.
type Converter interface {
	CanConvert(src, dst Fourcc) bool
}

// Match is the outcome of a successful matching pass.
type Match struct {
	// Native is the format handed to the conversion stage.
	Native Descriptor
	// Capture is the format the device is programmed to deliver. It equals
	// Native unless Rescale is set.
	Capture Descriptor
	Quality Quality
	// Index of the winning capability in the list that was matched.
	Index int
	// Rescale requests nearest-neighbour scaling from Capture size to
	// Native size, with a vertical flip when Flip is set.
	Rescale bool
	Flip    bool
}

// Matcher selects native formats for nominal requests.
type Matcher struct {
	conv Converter
}

// NewMatcher returns a matcher that consults conv for encoding mismatches.
func NewMatcher(conv Converter) *Matcher {
	return &Matcher{conv: conv}
}

// Classify places a single capability into its quality tier. The second
// result is false when the capability cannot satisfy the request.
func (m *Matcher) Classify(nominal Descriptor, c Capability) (Quality, bool) {
	if !nominal.Valid() || !c.MinInterval.valid() {
		return 0, false
	}
	if !c.fitsSize(nominal.Width, nominal.Height) {
		return 0, false
	}
	if c.exceedsMaxFPS(nominal.FPSNumerator, nominal.FPSDenominator) {
		return 0, false
	}

	throttle := c.belowMinFPS(nominal.FPSNumerator, nominal.FPSDenominator)
	convert := c.Fourcc != nominal.Fourcc
	if convert && !m.canConvert(c.Fourcc, nominal.Fourcc) {
		return 0, false
	}

	switch {
	case convert && throttle:
		return QualityConvertThrottle, true
	case convert:
		return QualityConvert, true
	case throttle:
		return QualityThrottle, true
	default:
		return QualityPerfect, true
	}
}

// FindBest returns the best native format for nominal. Within a tier the
// first capability in list order wins.
func (m *Matcher) FindBest(nominal Descriptor, caps []Capability) (Match, bool) {
	best := -1
	var bestQuality Quality

	for i, c := range caps {
		q, ok := m.Classify(nominal, c)
		if !ok {
			continue
		}
		if best < 0 || q < bestQuality {
			best, bestQuality = i, q
			if q == QualityPerfect {
				break
			}
		}
	}

	if best < 0 {
		return Match{}, false
	}

	c := caps[best]
	native := nominal
	native.Fourcc = c.Fourcc
	if bestQuality == QualityThrottle || bestQuality == QualityConvertThrottle {
		native.FPSNumerator, native.FPSDenominator = c.maxRate()
	}

	return Match{
		Native:  native,
		Capture: native,
		Quality: bestQuality,
		Index:   best,
	}, true
}

// FindUsable is the degraded fallback used for binding when FindBest
// fails. It picks the capability whose largest frame size is the smallest
// one still covering the request (or the largest one overall when none
// covers it), preferring higher frame rates on ties. The device is then
// driven at that size and its highest rate, and frames are rescaled to
// the nominal size as RGB32.
func (m *Matcher) FindUsable(nominal Descriptor, caps []Capability) (Match, bool) {
	if !nominal.Valid() {
		return Match{}, false
	}
	if nominal.Fourcc != FourccRGB32 && !m.canConvert(FourccRGB32, nominal.Fourcc) {
		return Match{}, false
	}

	best := -1
	for i, c := range caps {
		if !c.MinInterval.valid() || c.MaxWidth <= 0 || c.MaxHeight <= 0 {
			continue
		}
		if c.Fourcc != FourccRGB32 && !m.canConvert(c.Fourcc, FourccRGB32) {
			continue
		}
		if c.exceedsMaxFPS(nominal.FPSNumerator, nominal.FPSDenominator) {
			continue
		}
		if best < 0 || betterUsable(nominal, c, caps[best]) {
			best = i
		}
	}

	if best < 0 {
		return Match{}, false
	}

	c := caps[best]
	num, den := c.maxRate()

	return Match{
		Native: Descriptor{
			Width:          nominal.Width,
			Height:         nominal.Height,
			Fourcc:         FourccRGB32,
			FPSNumerator:   num,
			FPSDenominator: den,
		},
		Capture: Descriptor{
			Width:          c.MaxWidth,
			Height:         c.MaxHeight,
			Fourcc:         c.Fourcc,
			FPSNumerator:   num,
			FPSDenominator: den,
		},
		Quality: QualityRescale,
		Index:   best,
		Rescale: true,
		Flip:    c.BottomUp,
	}, true
}

// Match runs FindBest and, when forBinding is set, falls back to FindUsable.
func (m *Matcher) Match(nominal Descriptor, caps []Capability, forBinding bool) (Match, bool) {
	if match, ok := m.FindBest(nominal, caps); ok {
		return match, true
	}
	if !forBinding {
		return Match{}, false
	}
	return m.FindUsable(nominal, caps)
}

func (m *Matcher) canConvert(src, dst Fourcc) bool {
	return m.conv != nil && m.conv.CanConvert(src, dst)
}

// betterUsable reports whether a is a better fallback candidate than b.
func betterUsable(nominal Descriptor, a, b Capability) bool {
	aCovers := a.MaxWidth >= nominal.Width && a.MaxHeight >= nominal.Height
	bCovers := b.MaxWidth >= nominal.Width && b.MaxHeight >= nominal.Height
	aArea := a.MaxWidth * a.MaxHeight
	bArea := b.MaxWidth * b.MaxHeight

	switch {
	case aCovers != bCovers:
		return aCovers
	case aArea != bArea && aCovers:
		return aArea < bArea
	case aArea != bArea:
		return aArea > bArea
	default:
		return a.MaxFPS() > b.MaxFPS()
	}
}
