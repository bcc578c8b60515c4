package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/vidcap/internal/config"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

func testOptions(t *testing.T) *Options {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vidcap.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pacing]\nhistory_seconds = 2.0\nfloor_factor = 0.8\n"), 0o600))
	return &Options{
		Config:            path,
		BackendsSimulated: true,
		DevicesSettle:     "0s",
		AuthUsername:      "admin",
		AuthPassword:      "password",
	}
}

func TestContextOptions(t *testing.T) {
	opts := testOptions(t)
	opts.VideoBuffers = 6
	opts.CapturePermitRescale = true

	d := newDaemon(opts, events.New(), logging.GetLogger("main"))
	vo, err := d.contextOptions()
	require.NoError(t, err)
	assert.Equal(t, []string{vidcap.SimulatedIdentifier}, vo.Backends)
	assert.Equal(t, 6, vo.V4L2Buffers)
	assert.True(t, vo.PermitRescale)
	assert.InDelta(t, 2.0, vo.Pacing.HistorySeconds, 1e-9)
	assert.InDelta(t, 0.8, vo.Pacing.FloorFactor, 1e-9)
}

func TestContextOptionsErrors(t *testing.T) {
	opts := testOptions(t)
	opts.BackendsSimulated = false
	_, err := newDaemon(opts, events.New(), logging.GetLogger("main")).contextOptions()
	assert.ErrorContains(t, err, "no capture backends")

	opts = testOptions(t)
	opts.DevicesSettle = "soon"
	_, err = newDaemon(opts, events.New(), logging.GetLogger("main")).contextOptions()
	assert.ErrorContains(t, err, "devices.settle")
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(testOptions(t), events.New(), logging.GetLogger("main"))
	require.NoError(t, d.start(context.Background()))

	backends := d.inv.Backends()
	require.Len(t, backends, 1)
	assert.Equal(t, vidcap.SimulatedIdentifier, backends[0].Info.Identifier)
	assert.NotNil(t, d.server)

	d.reload(config.Settings{
		Pacing:  vidcap.PacingConfig{HistorySeconds: 1, FloorFactor: 0.5},
		Logging: logging.Config{Level: "debug"},
	})

	d.stop()
	d.stop()
	assert.Empty(t, d.inv.Backends())
}
