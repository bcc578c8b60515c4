// Package capture owns the lifecycle of acquired capture sources: format
// binding, capture start and stop, and the per-frame delivery path into the
// application callback.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/convert"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/format"
	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/internal/metrics"
	"github.com/smazurov/vidcap/internal/monitor"
	"github.com/smazurov/vidcap/internal/pacing"
)

// DefaultMaxFrameBytes bounds the buffers a single bind may allocate.
const DefaultMaxFrameBytes = 256 << 20

// State is a source lifecycle state.
type State int

// Lifecycle states.
const (
	StateAcquired State = iota
	StateBound
	StateCapturing
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateAcquired:
		return "acquired"
	case StateBound:
		return "bound"
	case StateCapturing:
		return "capturing"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// CaptureInfo describes one callback invocation. Data is nil for a
// terminal error and is only valid until the callback returns.
type CaptureInfo struct {
	Data          []byte
	Size          int
	ErrorStatus   int
	TimestampSec  int64
	TimestampUsec int64
	Format        format.Descriptor
}

// Callback receives frames. A non-zero return asks for the capture to be
// stopped. It runs under the source's capture mutex and may only call
// Info, Key, State and Formats on src.
type Callback func(src *Source, info *CaptureInfo) int

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures an acquired source.
type Options struct {
	// Monitor watches capture sessions for device events (required).
	Monitor *monitor.Monitor

	// Registry records acquired sources. If nil, a process-wide registry
	// is used.
	Registry *Registry

	// Converter resolves pixel conversions. If nil, convert.Default().
	Converter *convert.Table

	Pacing pacing.Config

	// PermitRescale enables the degraded rescaling fallback at bind time.
	PermitRescale bool

	// MaxFrameBytes bounds bind-time buffer allocation. Zero means
	// DefaultMaxFrameBytes.
	MaxFrameBytes int

	// Clock supplies frame timestamps and pacing time. If nil, time.Now.
	Clock func() time.Time

	// Bus receives state changes and terminal errors (optional).
	Bus Publisher

	// Logger for source operations. If nil, the "capture" module logger.
	Logger *slog.Logger
}

var defaultRegistry = NewRegistry()

// Source is one exclusively acquired capture device.
type Source struct {
	opts      Options
	backendID string
	key       string
	info      backend.SourceInfo
	dev       backend.Device
	matcher   *format.Matcher
	logger    *slog.Logger
	formats   []format.Descriptor

	// mu serializes control operations.
	mu sync.Mutex

	// capMu guards everything the delivery path reads and makes frame
	// delivery, terminal delivery and disarming mutually exclusive.
	capMu     sync.Mutex
	state     atomic.Int32 // written under capMu
	armed     bool
	needsReap bool
	session   string
	callback  Callback
	pacer     *pacing.Pacer
	nominal   format.Descriptor
	match     format.Match
	pipe      *pipeline
}

// Acquire opens src on b and claims it in the registry. The advertised
// format list is built by probing the matcher with the hot list.
func Acquire(ctx context.Context, b backend.Backend, src backend.SourceInfo, opts Options) (*Source, error) {
	if opts.Monitor == nil {
		return nil, errors.New("capture: monitor is required")
	}
	if opts.Registry == nil {
		opts.Registry = defaultRegistry
	}
	if opts.Converter == nil {
		opts.Converter = convert.Default()
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("capture")
	}

	backendID := b.Info().Identifier
	key := Key(backendID, src.Identifier)

	if err := opts.Registry.Claim(key); err != nil {
		return nil, err
	}

	dev, err := b.Open(ctx, src)
	if err != nil {
		opts.Registry.Unclaim(key)
		return nil, NewErrorWithCause(CodeBackendResourceFailure, "failed to open source", err,
			map[string]any{"source": key})
	}

	matcher := format.NewMatcher(opts.Converter)
	s := &Source{
		opts:      opts,
		backendID: backendID,
		key:       key,
		info:      dev.Info(),
		dev:       dev,
		matcher:   matcher,
		logger:    logger.With("source", key),
		formats:   matcher.HotList(dev.Capabilities()),
	}
	s.state.Store(int32(StateAcquired))

	s.logger.Info("Source acquired", "formats", len(s.formats))
	return s, nil
}

// Info returns the source's identity.
func (s *Source) Info() backend.SourceInfo { return s.info }

// Key returns the registry key, "backend/identifier".
func (s *Source) Key() string { return s.key }

// State returns the current lifecycle state. It is safe to call from the
// capture callback.
func (s *Source) State() State {
	return State(s.state.Load())
}

// Formats returns the advertised format list.
func (s *Source) Formats() []format.Descriptor {
	out := make([]format.Descriptor, len(s.formats))
	copy(out, s.formats)
	return out
}

// Format returns the index-th advertised format.
func (s *Source) Format(index int) (format.Descriptor, bool) {
	if index < 0 || index >= len(s.formats) {
		return format.Descriptor{}, false
	}
	return s.formats[index], true
}

// Capabilities returns the device's native capability list.
func (s *Source) Capabilities() []format.Capability {
	return s.dev.Capabilities()
}

// BoundFormat returns the nominal format of the last successful bind.
func (s *Source) BoundFormat() (format.Descriptor, error) {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	if st := s.State(); st == StateAcquired || st == StateReleased {
		return format.Descriptor{}, invalidState("format info", st)
	}
	return s.nominal, nil
}

// Match returns the matcher outcome of the last successful bind.
func (s *Source) Match() (format.Match, bool) {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.match, s.pipe != nil
}

// Conversion returns the name of the pixel conversion applied to frames,
// or "" when none is.
func (s *Source) Conversion() string {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	if s.pipe == nil {
		return ""
	}
	return s.pipe.conversionName()
}

// ConversionBufferSize returns the size of the buffer frames are
// converted into, or 0 when no conversion is bound.
func (s *Source) ConversionBufferSize() int {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	if s.pipe == nil {
		return 0
	}
	return len(s.pipe.convBuf)
}

// Session returns the id of the running capture session, or "".
func (s *Source) Session() string {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	if s.State() != StateCapturing {
		return ""
	}
	return s.session
}

// SetPacing replaces the pacing parameters. A running capture keeps its
// pacer; the next Start uses cfg.
func (s *Source) SetPacing(cfg pacing.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Pacing = cfg
}

// Bind selects a native format for nominal and programs the device. A nil
// nominal binds the first advertised format. Nothing changes on failure.
func (s *Source) Bind(nominal *format.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st == StateCapturing || st == StateReleased {
		return invalidState("bind", st)
	}
	s.reapLocked()

	var d format.Descriptor
	switch {
	case nominal != nil:
		d = *nominal
	case len(s.formats) > 0:
		d = s.formats[0]
	default:
		return NewError(CodeFormatUnsupported, "source advertises no formats", map[string]any{"source": s.key})
	}

	if !d.Valid() {
		return NewError(CodeFormatUnsupported, "invalid format", map[string]any{"format": d.String()})
	}

	m, ok := s.matcher.Match(d, s.dev.Capabilities(), s.opts.PermitRescale)
	if !ok {
		s.logger.Debug("No compatible native format", "nominal", d.String())
		return NewError(CodeFormatUnsupported, "no compatible format", map[string]any{"format": d.String()})
	}

	pipe, err := newPipeline(s.opts.Converter, d, m, s.opts.MaxFrameBytes)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return ce
		}
		return NewErrorWithCause(CodeFormatUnsupported, "cannot convert native format", err,
			map[string]any{"format": d.String(), "native": m.Native.String()})
	}

	if err := s.dev.Bind(m); err != nil {
		return NewErrorWithCause(CodeBackendResourceFailure, "failed to program device", err,
			map[string]any{"capture": m.Capture.String()})
	}

	s.capMu.Lock()
	s.nominal = d
	s.match = m
	s.pipe = pipe
	s.setStateLocked(StateBound)
	s.capMu.Unlock()

	s.logger.Info("Format bound", "nominal", d.String(), "native", m.Native.String(),
		"capture", m.Capture.String(), "quality", m.Quality.String())
	return nil
}

// Start begins delivering frames to cb. The callback is registered before
// the device starts, so no frame can precede it.
func (s *Source) Start(cb Callback) error {
	if cb == nil {
		return errors.New("capture: callback is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateBound {
		return invalidState("start", st)
	}
	s.reapLocked()

	pacer, err := pacing.New(s.nominal.FPSNumerator, s.nominal.FPSDenominator, s.opts.Pacing, s.opts.Clock)
	if err != nil {
		return NewErrorWithCause(CodeFormatUnsupported, "invalid frame rate", err,
			map[string]any{"format": s.nominal.String()})
	}
	session := uuid.NewString()

	s.capMu.Lock()
	s.callback = cb
	s.pacer = pacer
	s.session = session
	s.armed = true
	s.setStateLocked(StateCapturing)
	s.capMu.Unlock()

	evts, err := s.dev.Start(&sink{src: s, session: session})
	if err != nil {
		s.capMu.Lock()
		s.armed = false
		s.callback = nil
		s.pacer = nil
		s.session = ""
		s.setStateLocked(StateBound)
		s.capMu.Unlock()
		return NewErrorWithCause(CodeBackendResourceFailure, "failed to start capture", err,
			map[string]any{"source": s.key})
	}

	s.opts.Monitor.Add(session, evts, func(ev backend.Event) {
		s.terminate(session, ev.Status(), ev.Err)
	})

	s.logger.Info("Capture started", "session", session, "window", pacer.WindowSize())
	return nil
}

// Stop halts capture. When it returns no further callback will fire.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

// Release stops any capture, frees the device and removes the source from
// the registry. The source is unusable afterwards.
func (s *Source) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.State()
	if st == StateReleased {
		return invalidState("release", st)
	}
	if st == StateCapturing {
		if err := s.stopLocked(); err != nil {
			s.logger.Warn("Stop during release failed", "error", err)
		}
	}
	s.reapLocked()

	err := s.dev.Release()
	s.opts.Registry.Unclaim(s.key)

	s.capMu.Lock()
	s.pipe = nil
	s.setStateLocked(StateReleased)
	s.capMu.Unlock()

	s.logger.Info("Source released")
	if err != nil {
		return NewErrorWithCause(CodeBackendResourceFailure, "failed to release device", err,
			map[string]any{"source": s.key})
	}
	return nil
}

func (s *Source) stopLocked() error {
	s.capMu.Lock()
	if st := s.State(); st != StateCapturing {
		s.capMu.Unlock()
		return invalidState("stop", st)
	}
	session := s.session
	s.armed = false
	s.setStateLocked(StateBound)
	s.capMu.Unlock()

	s.opts.Monitor.Remove(session)
	err := s.dev.Stop()
	s.clearSession()

	s.logger.Info("Capture stopped", "session", session)
	if err != nil {
		return NewErrorWithCause(CodeBackendResourceFailure, "failed to stop device", err,
			map[string]any{"source": s.key})
	}
	return nil
}

// reapLocked finishes a session that ended with a terminal error: the
// device is stopped and the pacer dropped. Requires mu.
func (s *Source) reapLocked() {
	s.capMu.Lock()
	need := s.needsReap
	session := s.session
	s.needsReap = false
	s.capMu.Unlock()

	if !need {
		return
	}

	s.opts.Monitor.Remove(session)
	if err := s.dev.Stop(); err != nil {
		s.logger.Warn("Failed to stop device after terminal error", "session", session, "error", err)
	}
	s.clearSession()
	s.logger.Debug("Reaped capture session", "session", session)
}

func (s *Source) clearSession() {
	s.capMu.Lock()
	s.pacer = nil
	s.callback = nil
	s.session = ""
	s.needsReap = false
	s.capMu.Unlock()
}

// reap runs reapLocked for session if it is still the pending one.
func (s *Source) reap(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capMu.Lock()
	current := s.needsReap && s.session == session
	s.capMu.Unlock()

	if current {
		s.reapLocked()
	}
}

// abort stops session on behalf of a callback that returned non-zero.
func (s *Source) abort(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capMu.Lock()
	current := s.State() == StateCapturing && s.session == session
	s.capMu.Unlock()

	if current {
		s.logger.Debug("Callback requested stop", "session", session)
		if err := s.stopLocked(); err != nil {
			s.logger.Warn("Stop requested by callback failed", "error", err)
		}
	}
}

// terminate delivers the one terminal callback of session.
func (s *Source) terminate(session string, status int, cause error) {
	s.capMu.Lock()
	defer s.capMu.Unlock()

	if !s.armed || s.session != session {
		return
	}
	s.terminateLocked(status, cause)
}

func (s *Source) terminateLocked(status int, cause error) {
	session := s.session
	cb := s.callback

	s.armed = false
	s.needsReap = true

	now := s.opts.Clock()
	cb(s, &CaptureInfo{
		ErrorStatus:   status,
		TimestampSec:  now.Unix(),
		TimestampUsec: int64(now.Nanosecond() / 1000),
		Format:        s.nominal,
	})

	s.callback = nil
	s.setStateLocked(StateBound)

	metrics.IncTerminalErrors(s.key, status)
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	s.logger.Warn("Capture terminated", "session", session, "status", status, "error", errMsg)
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.CaptureErrorEvent{
			Backend:   s.backendID,
			Source:    s.info.Identifier,
			Session:   session,
			Status:    status,
			Error:     errMsg,
			Timestamp: now.Format(time.RFC3339),
		})
	}

	go s.reap(session)
}

// notify is the per-frame delivery path.
func (s *Source) notify(session string, data []byte, stride, errStatus int) int {
	s.capMu.Lock()
	defer s.capMu.Unlock()

	if !s.armed || s.session != session {
		return 0
	}

	if errStatus != 0 {
		s.terminateLocked(errStatus, nil)
		return 0
	}

	if !s.pacer.Authorize() {
		metrics.IncFramesDropped(s.key, metrics.DropPacer)
		return 0
	}

	buf, err := s.pipe.run(data, stride)
	if err != nil {
		metrics.IncConversionFailures(s.key)
		s.terminateLocked(backend.StatusConversionFailed, err)
		return 0
	}

	now := s.opts.Clock()
	ret := s.callback(s, &CaptureInfo{
		Data:          buf,
		Size:          len(buf),
		TimestampSec:  now.Unix(),
		TimestampUsec: int64(now.Nanosecond() / 1000),
		Format:        s.nominal,
	})
	metrics.IncFramesDelivered(s.key)

	if ret != 0 {
		s.armed = false
		go s.abort(session)
	}
	return ret
}

func (s *Source) setStateLocked(to State) {
	from := s.State()
	if from == to {
		return
	}
	s.state.Store(int32(to))

	switch {
	case to == StateCapturing:
		metrics.AddActiveCaptures(1)
	case from == StateCapturing:
		metrics.AddActiveCaptures(-1)
	}

	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.CaptureStateChangedEvent{
			Backend:   s.backendID,
			Source:    s.info.Identifier,
			Session:   s.session,
			From:      from.String(),
			To:        to.String(),
			Timestamp: s.opts.Clock().Format(time.RFC3339),
		})
	}
}

type sink struct {
	src     *Source
	session string
}

func (k *sink) Notify(data []byte, stride int, errStatus int) int {
	return k.src.notify(k.session, data, stride, errStatus)
}
