package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/vidcap/cmd"
	"github.com/smazurov/vidcap/internal/config"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/logging"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"vidcap.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Backend settings
	BackendsNative    bool `help:"Enable the platform capture backends" default:"true" toml:"backends.native" env:"BACKENDS_NATIVE"`
	BackendsSimulated bool `help:"Enable the simulated backend" default:"false" toml:"backends.simulated" env:"BACKENDS_SIMULATED"`

	// Capture settings
	CapturePermitRescale bool `help:"Fall back to software rescaling when no native format fits" default:"false" toml:"capture.permit_rescale" env:"CAPTURE_PERMIT_RESCALE"`
	CaptureMaxFrameBytes int  `help:"Largest buffer a single bind may allocate" default:"268435456" toml:"capture.max_frame_bytes" env:"CAPTURE_MAX_FRAME_BYTES"`

	// Video4Linux settings
	VideoBuffers int `help:"mmap buffers per V4L2 stream" default:"4" toml:"v4l2.buffers" env:"V4L2_BUFFERS"`

	// Device watching settings
	DevicesHotplug bool   `help:"Use kernel uevents for source changes" default:"true" toml:"devices.hotplug" env:"DEVICES_HOTPLUG"`
	DevicesSettle  string `help:"Quiet period after device activity before rescanning" default:"250ms" toml:"devices.settle" env:"DEVICES_SETTLE"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSEEnabled        bool `help:"Stream capture counters on /api/metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (none, debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingVidcap  string `help:"Context and backend handle logging level" default:"info" toml:"logging.vidcap" env:"LOGGING_VIDCAP"`
	LoggingCapture string `help:"Capture lifecycle logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingMonitor string `help:"Device monitor logging level" default:"info" toml:"logging.monitor" env:"LOGGING_MONITOR"`
	LoggingDevices string `help:"Device watcher logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingDriver  string `help:"Video4Linux backend logging level" default:"info" toml:"logging.v4l2" env:"LOGGING_V4L2"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	// Set before Run; flags given on the command line win over the file.
	var root *cobra.Command
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, root); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"vidcap":  opts.LoggingVidcap,
				"capture": opts.LoggingCapture,
				"monitor": opts.LoggingMonitor,
				"devices": opts.LoggingDevices,
				"v4l2":    opts.LoggingDriver,
				"api":     opts.LoggingAPI,
			},
		}
		logging.Initialize(loggingConfig)
		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Every log line is also published for /api/logs/stream.
		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		d := newDaemon(opts, eventBus, logger)

		hooks.OnStart(func() {
			if startErr := d.start(context.Background()); startErr != nil {
				logger.Error("Failed to start", "error", startErr)
				d.stop()
				os.Exit(1)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := d.server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				d.stop()
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			d.stop()
		})
	})

	root = cli.Root()
	root.Use = "vidcap"
	root.Short = "Video capture status server and tools"
	root.AddCommand(
		cmd.CreateBackendsCmd(),
		cmd.CreateSourcesCmd(),
		cmd.CreateFormatsCmd(),
		cmd.CreateCaptureCmd(),
		cmd.CreateWatchCmd(),
	)

	cli.Run()
}
