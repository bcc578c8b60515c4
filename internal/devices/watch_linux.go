//go:build linux

package devices

import (
	"context"
	"errors"

	"github.com/smazurov/vidcap/pkg/linuxav/hotplug"
)

// Watch signals whenever video device nodes may have been added or
// removed. Kernel uevents are used when opts.Hotplug is set and netlink is
// available; otherwise the device directory is watched.
func Watch(ctx context.Context, opts WatchOptions) (<-chan struct{}, error) {
	opts = opts.withDefaults()
	if !opts.Hotplug {
		return WatchDir(ctx, opts)
	}

	mon, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
	if err != nil {
		opts.Logger.Warn("Netlink hotplug unavailable, watching device directory", "error", err)
		return WatchDir(ctx, opts)
	}

	uevents := make(chan hotplug.Event, 16)
	go func() {
		defer mon.Close()
		if runErr := mon.Run(ctx, uevents); runErr != nil && !errors.Is(runErr, context.Canceled) {
			opts.Logger.Error("Hotplug monitor stopped", "error", runErr)
		}
	}()

	raw := make(chan struct{}, 1)
	go func() {
		defer close(raw)
		for ev := range uevents {
			if !ev.AltersDeviceSet() {
				continue
			}
			opts.Logger.Debug("Hotplug event", "action", ev.Action, "node", ev.Node(), "seqnum", ev.Seqnum)
			kick(raw)
		}
	}()

	opts.Logger.Info("Hotplug monitoring started", "subsystem", hotplug.SubsystemVideo4Linux)
	return settle(ctx, raw, opts.Settle), nil
}
