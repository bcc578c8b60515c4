package vidcap

import (
	"errors"

	"github.com/smazurov/vidcap/internal/capture"
	"github.com/smazurov/vidcap/internal/metrics"
)

// CaptureFunc receives frames. info.Data is only valid until it returns.
// A non-zero return stops the capture; no further call follows. It must
// not call FormatBind, CaptureStart, CaptureStop or Release on src.
type CaptureFunc func(src *Source, userData any, info *CaptureInfo) int

// Source is an exclusively acquired capture device.
type Source struct {
	backend *Backend
	src     *capture.Source
}

// Info returns the source's identity.
func (s *Source) Info() SourceInfo { return s.src.Info() }

// State returns the lifecycle state.
func (s *Source) State() State { return s.src.State() }

// FormatEnumerate returns the index-th format the source advertises.
func (s *Source) FormatEnumerate(index int) (Format, bool) { return s.src.Format(index) }

// FormatBind binds the source to f, or to its first advertised format
// when f is nil. Frames are delivered in exactly f, converted in software
// where the device cannot produce it.
func (s *Source) FormatBind(f *Format) error { return s.src.Bind(f) }

// FormatInfoGet returns the bound format.
func (s *Source) FormatInfoGet() (Format, error) { return s.src.BoundFormat() }

// CaptureStart begins delivering frames to fn.
func (s *Source) CaptureStart(fn CaptureFunc, userData any) error {
	if fn == nil {
		return capture.NewError(capture.CodeInvalidStateTransition, "capture callback is required", nil)
	}
	return s.src.Start(func(_ *capture.Source, info *CaptureInfo) int {
		return fn(s, userData, info)
	})
}

// CaptureStop stops delivering frames. Once it returns the callback will
// not be called again.
func (s *Source) CaptureStop() error { return s.src.Stop() }

// Release frees the source, stopping any capture first.
func (s *Source) Release() error {
	err := s.src.Release()
	if err == nil || !errors.Is(err, ErrInvalidStateTransition) {
		s.backend.forget(s)
	}
	return err
}

func (s *Source) describe() SessionInfo {
	si := SessionInfo{
		Backend: s.backend.info.Identifier,
		Source:  s.src.Info(),
		State:   s.src.State().String(),
		Session: s.src.Session(),
		Metrics: metrics.GetSourceMetrics(s.src.Key()),
	}
	if f, err := s.src.BoundFormat(); err == nil {
		si.Format = &f
	}
	if m, ok := s.src.Match(); ok {
		native := m.Native
		si.Native = &native
		si.Conversion = s.src.Conversion()
	}
	return si
}
