// Package inventory holds the backends of a long-running vidcap process.
// It keeps each backend's source list current through source change
// notifications and runs preview capture sessions that only count frames.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

var (
	// ErrUnknownBackend is returned for a backend that is not held.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrUnknownSource is returned for a source the backend does not list.
	ErrUnknownSource = errors.New("unknown source")
	// ErrNoSession is returned when stopping a source that is not previewed.
	ErrNoSession = errors.New("no preview session")
)

// Service is what the status API needs from the inventory.
type Service interface {
	Backends() []BackendStatus
	Sources(ctx context.Context, backend string) ([]vidcap.SourceInfo, error)
	Formats(ctx context.Context, backend, source string) ([]vidcap.Format, error)
	Sessions() []vidcap.SessionInfo
	StartPreview(ctx context.Context, backend, source string, f *vidcap.Format) (vidcap.SessionInfo, error)
	StopPreview(backend, source string) error
}

// BackendStatus summarizes one held backend.
type BackendStatus struct {
	Info     vidcap.BackendInfo `json:"info"`
	Sources  int                `json:"sources" example:"2" doc:"Sources in the last scan"`
	Watching bool               `json:"watching" doc:"Whether source changes are monitored"`
}

type held struct {
	backend  *vidcap.Backend
	watching bool
}

type preview struct {
	source   *vidcap.Source
	frames   atomic.Uint64
	terminal atomic.Int32
}

// Inventory implements Service over a vidcap.Context.
type Inventory struct {
	vc     *vidcap.Context
	logger *slog.Logger

	mu       sync.Mutex
	backends map[string]*held
	order    []string
	previews map[string]*preview
}

var _ Service = (*Inventory)(nil)

// New returns an inventory over vc. Nothing is acquired until Start.
func New(vc *vidcap.Context) *Inventory {
	return &Inventory{
		vc:       vc,
		logger:   logging.GetLogger("inventory"),
		backends: make(map[string]*held),
		previews: make(map[string]*preview),
	}
}

// Start acquires every enabled backend, scans it and subscribes to its
// source changes. A backend that cannot be watched is kept unwatched.
func (inv *Inventory) Start(ctx context.Context) error {
	for i := 0; ; i++ {
		info, ok := inv.vc.SapiEnumerate(i)
		if !ok {
			break
		}

		b, err := inv.vc.SapiAcquire(&info)
		if err != nil {
			_ = inv.Close()
			return fmt.Errorf("acquire backend %s: %w", info.Identifier, err)
		}

		h := &held{backend: b}
		if n, err := b.SrcListUpdate(ctx); err != nil {
			inv.logger.Warn("Initial source scan failed", "backend", info.Identifier, "error", err)
		} else {
			inv.logger.Info("Backend ready", "backend", info.Identifier, "sources", n)
		}

		if err := b.SrcsNotify(inv.sourcesChanged, info.Identifier); err != nil {
			inv.logger.Warn("Source changes will not be monitored", "backend", info.Identifier, "error", err)
		} else {
			h.watching = true
		}

		inv.mu.Lock()
		inv.backends[info.Identifier] = h
		inv.order = append(inv.order, info.Identifier)
		inv.mu.Unlock()
	}
	return nil
}

// sourcesChanged runs on a backend monitor goroutine.
func (inv *Inventory) sourcesChanged(b *vidcap.Backend, userData any) int {
	n, err := b.SrcListUpdate(context.Background())
	if err != nil {
		inv.logger.Warn("Source rescan failed", "backend", userData, "error", err)
		return 0
	}
	inv.logger.Info("Source list refreshed", "backend", userData, "sources", n)
	return 0
}

// Close stops every preview and releases every backend.
func (inv *Inventory) Close() error {
	inv.mu.Lock()
	previews := inv.previews
	inv.previews = make(map[string]*preview)
	backends := inv.backends
	order := inv.order
	inv.backends = make(map[string]*held)
	inv.order = nil
	inv.mu.Unlock()

	var errs []error
	for _, p := range previews {
		if err := p.source.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range order {
		if err := backends[id].backend.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Backends implements Service.
func (inv *Inventory) Backends() []BackendStatus {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	out := make([]BackendStatus, 0, len(inv.order))
	for _, id := range inv.order {
		h := inv.backends[id]
		out = append(out, BackendStatus{Info: h.backend.Info(), Sources: len(listOf(h.backend)), Watching: h.watching})
	}
	return out
}

// listOf returns the backend's last source list.
func listOf(b *vidcap.Backend) []vidcap.SourceInfo {
	buf := make([]vidcap.SourceInfo, 8)
	for {
		n, err := b.SrcListGet(buf)
		if err == nil {
			return buf[:n]
		}
		if !errors.Is(err, vidcap.ErrShortBuffer) {
			return nil
		}
		buf = make([]vidcap.SourceInfo, 2*len(buf))
	}
}

func (inv *Inventory) backend(id string) (*vidcap.Backend, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	h, ok := inv.backends[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	return h.backend, nil
}

// Sources implements Service. The list is the last scan; a watched
// backend rescans on every device change.
func (inv *Inventory) Sources(_ context.Context, backend string) ([]vidcap.SourceInfo, error) {
	b, err := inv.backend(backend)
	if err != nil {
		return nil, err
	}
	return listOf(b), nil
}

func (inv *Inventory) lookup(backend, source string) (*vidcap.Backend, vidcap.SourceInfo, error) {
	b, err := inv.backend(backend)
	if err != nil {
		return nil, vidcap.SourceInfo{}, err
	}
	for _, s := range listOf(b) {
		if s.Identifier == source {
			return b, s, nil
		}
	}
	return nil, vidcap.SourceInfo{}, fmt.Errorf("%w: %s/%s", ErrUnknownSource, backend, source)
}

// Formats implements Service. A previewed source answers from its
// session; any other source is acquired for the duration of the call.
func (inv *Inventory) Formats(ctx context.Context, backend, source string) ([]vidcap.Format, error) {
	b, info, err := inv.lookup(backend, source)
	if err != nil {
		return nil, err
	}

	inv.mu.Lock()
	p, previewing := inv.previews[key(backend, source)]
	inv.mu.Unlock()
	if previewing {
		return formatsOf(p.source), nil
	}

	src, err := b.SrcAcquire(ctx, &info)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Release(); err != nil {
			inv.logger.Warn("Release after format probe failed", "source", source, "error", err)
		}
	}()
	return formatsOf(src), nil
}

func formatsOf(src *vidcap.Source) []vidcap.Format {
	var out []vidcap.Format
	for i := 0; ; i++ {
		f, ok := src.FormatEnumerate(i)
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

// Sessions implements Service.
func (inv *Inventory) Sessions() []vidcap.SessionInfo {
	return inv.vc.Sessions()
}

// StartPreview implements Service. The session counts frames and keeps
// the source until StopPreview.
func (inv *Inventory) StartPreview(ctx context.Context, backend, source string, f *vidcap.Format) (vidcap.SessionInfo, error) {
	b, info, err := inv.lookup(backend, source)
	if err != nil {
		return vidcap.SessionInfo{}, err
	}

	src, err := b.SrcAcquire(ctx, &info)
	if err != nil {
		return vidcap.SessionInfo{}, err
	}
	if err := src.FormatBind(f); err != nil {
		_ = src.Release()
		return vidcap.SessionInfo{}, err
	}

	p := &preview{source: src}
	if err := src.CaptureStart(p.deliver, inv.logger.With("source", key(backend, source))); err != nil {
		_ = src.Release()
		return vidcap.SessionInfo{}, err
	}

	inv.mu.Lock()
	inv.previews[key(backend, source)] = p
	inv.mu.Unlock()

	for _, s := range inv.vc.Sessions() {
		if s.Backend == backend && s.Source.Identifier == source {
			return s, nil
		}
	}
	return vidcap.SessionInfo{Backend: backend, Source: info}, nil
}

func (p *preview) deliver(_ *vidcap.Source, userData any, info *vidcap.CaptureInfo) int {
	if info.ErrorStatus != 0 {
		p.terminal.Store(int32(info.ErrorStatus))
		if logger, ok := userData.(*slog.Logger); ok {
			logger.Warn("Preview ended", "status", info.ErrorStatus)
		}
		return 0
	}
	p.frames.Add(1)
	return 0
}

// StopPreview implements Service.
func (inv *Inventory) StopPreview(backend, source string) error {
	k := key(backend, source)

	inv.mu.Lock()
	p, ok := inv.previews[k]
	delete(inv.previews, k)
	inv.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, k)
	}
	inv.logger.Info("Preview stopped", "source", k, "frames", p.frames.Load(), "status", p.terminal.Load())
	return p.source.Release()
}

func key(backend, source string) string { return backend + "/" + source }

