package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/vidcap/internal/api"
	"github.com/smazurov/vidcap/internal/config"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/inventory"
	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/internal/metrics/exporters"
	"github.com/smazurov/vidcap/internal/systemd"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

// daemon is the status server process: every enabled backend held by an
// inventory, served over the API, with settings hot reload.
type daemon struct {
	opts     *Options
	bus      *events.Bus
	logger   *slog.Logger
	notifier *systemd.Notifier

	mu       sync.Mutex
	vc       *vidcap.Context
	inv      *inventory.Inventory
	server   *api.Server
	exporter *exporters.Publisher
	reloader *config.Reloader[config.Settings]
	cancel   context.CancelFunc
	stopped  bool
}

func newDaemon(opts *Options, bus *events.Bus, logger *slog.Logger) *daemon {
	return &daemon{opts: opts, bus: bus, logger: logger, notifier: systemd.NewNotifier(logger)}
}

// contextOptions maps the command options onto the capture context.
func (d *daemon) contextOptions() (vidcap.Options, error) {
	opts := vidcap.Options{
		V4L2Buffers:   d.opts.VideoBuffers,
		Hotplug:       d.opts.DevicesHotplug,
		PermitRescale: d.opts.CapturePermitRescale,
		MaxFrameBytes: d.opts.CaptureMaxFrameBytes,
		Bus:           d.bus,
	}
	if d.opts.BackendsNative {
		opts.Backends = append(opts.Backends, vidcap.DefaultBackends()...)
	}
	if d.opts.BackendsSimulated {
		opts.Backends = append(opts.Backends, vidcap.SimulatedIdentifier)
	}
	if len(opts.Backends) == 0 {
		return opts, errors.New("no capture backends enabled")
	}

	settle, err := time.ParseDuration(d.opts.DevicesSettle)
	if err != nil {
		return opts, fmt.Errorf("devices.settle: %w", err)
	}
	opts.Settle = settle

	// Pacing is only read from the settings file, where it can be reloaded.
	if settings, err := config.LoadSettings(d.opts.Config); err == nil {
		opts.Pacing = settings.Pacing
	}
	return opts, nil
}

// start builds and starts everything but the HTTP listener.
func (d *daemon) start(ctx context.Context) error {
	opts, err := d.contextOptions()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, d.cancel = context.WithCancel(ctx)
	d.vc, err = vidcap.Initialize(opts)
	if err != nil {
		return err
	}
	d.inv = inventory.New(d.vc)
	if err := d.inv.Start(ctx); err != nil {
		return err
	}

	apiOpts := &api.Options{
		AuthUsername: d.opts.AuthUsername,
		AuthPassword: d.opts.AuthPassword,
		Inventory:    d.inv,
		EventBus:     d.bus,
	}
	if d.opts.MetricsPrometheusEnabled {
		apiOpts.PrometheusHandler = exporters.PrometheusHandler()
	}
	d.server = api.NewServer(apiOpts)

	if d.opts.MetricsSSEEnabled {
		d.exporter = exporters.NewPublisher(d.bus, exporters.DefaultInterval)
		d.exporter.Start(ctx)
	}

	d.reloader = &config.Reloader[config.Settings]{
		Path:  d.opts.Config,
		Load:  config.LoadSettings,
		Apply: d.reload,
		OnError: func(err error) {
			d.logger.Warn("Settings reload failed, keeping current settings", "error", err)
		},
		Logger: logging.GetLogger("config"),
	}
	if err := d.reloader.Start(ctx); err != nil {
		d.logger.Warn("Failed to watch settings file, hot-reload disabled", "error", err)
		d.reloader = nil
	}

	d.notifier.Ready(fmt.Sprintf("%d capture backends", len(d.inv.Backends())))
	go d.notifier.Watchdog(ctx)
	return nil
}

// reload applies settings read from a changed file. Pacing changes take
// effect for captures started afterwards.
func (d *daemon) reload(s config.Settings) {
	d.notifier.Reloading()
	defer d.notifier.Ready("settings reloaded")

	d.vc.SetPacing(s.Pacing)
	if err := logging.ApplyLevels(s.Logging); err != nil {
		d.logger.Warn("Ignoring invalid logging levels", "error", err)
		return
	}
	d.logger.Info("Settings reloaded",
		"history_seconds", s.Pacing.HistorySeconds,
		"floor_factor", s.Pacing.FloorFactor,
		"level", s.Logging.Level)
}

// stop tears down whatever start built, in reverse order. It is safe to
// call more than once.
func (d *daemon) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	d.notifier.Stopping()
	if d.cancel != nil {
		d.cancel()
	}

	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if d.reloader != nil {
		_ = d.reloader.Stop()
	}
	if d.exporter != nil {
		d.exporter.Stop()
	}
	if d.inv != nil {
		if err := d.inv.Close(); err != nil {
			d.logger.Error("Error releasing capture backends", "error", err)
		}
	}
	if d.vc != nil {
		if err := d.vc.Destroy(); err != nil {
			d.logger.Error("Error destroying capture context", "error", err)
		}
	}
}
