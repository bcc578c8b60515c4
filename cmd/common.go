// Package cmd holds the vidcap subcommands that work directly against the
// capture backends, without the status server.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

// contextFlags are shared by every subcommand that opens backends.
type contextFlags struct {
	backends []string
	buffers  int
	hotplug  bool
	logLevel string
	logJSON  bool
}

func (f *contextFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.backends, "backends", "B", nil,
		"Backends to enable ("+strings.Join(vidcap.AvailableBackends(), ", ")+"); defaults to the backend argument or the platform backends")
	fs.IntVar(&f.buffers, "buffers", 4, "mmap buffers per V4L2 stream")
	fs.BoolVar(&f.hotplug, "hotplug", true, "Use kernel uevents for source change notifications")
	fs.StringVar(&f.logLevel, "log-level", "warn", "Log level (none, error, warn, info, debug)")
	fs.BoolVar(&f.logJSON, "log-json", false, "Use JSON log format")
}

// open initializes logging and a vidcap context. A backend named on the
// command line is enabled when --backends is not given.
func (f *contextFlags) open(backend string, mutate func(*vidcap.Options)) (*vidcap.Context, error) {
	cfg := logging.Config{Level: "info", Format: "text"}
	if f.logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
	if err := vidcap.LogLevelSet(f.logLevel); err != nil {
		return nil, err
	}

	opts := vidcap.Options{
		Backends:    f.backends,
		V4L2Buffers: f.buffers,
		Hotplug:     f.hotplug,
	}
	if len(opts.Backends) == 0 && backend != "" {
		opts.Backends = []string{backend}
	}
	if mutate != nil {
		mutate(&opts)
	}
	return vidcap.Initialize(opts)
}

// acquireBackend acquires the backend named id, or the first one when id
// is empty.
func acquireBackend(vc *vidcap.Context, id string) (*vidcap.Backend, error) {
	if id == "" {
		return vc.SapiAcquire(nil)
	}
	return vc.SapiAcquire(&vidcap.BackendInfo{Identifier: id})
}

// scan refreshes and returns the backend's source list.
func scan(ctx context.Context, b *vidcap.Backend) ([]vidcap.SourceInfo, error) {
	n, err := b.SrcListUpdate(ctx)
	if err != nil {
		return nil, err
	}
	buf := make([]vidcap.SourceInfo, n)
	n, err = b.SrcListGet(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// acquireSource finds id in a fresh scan and acquires it.
func acquireSource(ctx context.Context, b *vidcap.Backend, id string) (*vidcap.Source, error) {
	sources, err := scan(ctx, b)
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		if s.Identifier == id {
			return b.SrcAcquire(ctx, &s)
		}
	}
	return nil, fmt.Errorf("source %q not found on backend %s", id, b.Info().Identifier)
}

// parseRate parses "30", "29.97" or "30000/1001" into a fraction.
func parseRate(s string) (num, den int, err error) {
	if n, d, ok := strings.Cut(s, "/"); ok {
		num, err = strconv.Atoi(n)
		if err == nil {
			den, err = strconv.Atoi(d)
		}
		if err != nil || num <= 0 || den <= 0 {
			return 0, 0, fmt.Errorf("invalid frame rate %q", s)
		}
		return num, den, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n, 1, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return int(f*1000 + 0.5), 1000, nil
}

func formatRate(num, den int) string {
	if den == 1 {
		return strconv.Itoa(num)
	}
	return fmt.Sprintf("%d/%d (%.2f)", num, den, float64(num)/float64(den))
}

// releaseAll joins the release errors of a source, backend and context.
func releaseAll(src *vidcap.Source, b *vidcap.Backend, vc *vidcap.Context) error {
	var errs []error
	if src != nil {
		if err := src.Release(); err != nil && !errors.Is(err, vidcap.ErrInvalidStateTransition) {
			errs = append(errs, err)
		}
	}
	if b != nil {
		errs = append(errs, b.Release())
	}
	errs = append(errs, vc.Destroy())
	return errors.Join(errs...)
}
