//go:build linux

// Package hotplug reads kernel uevents from a netlink socket, without cgo
// or libudev. It is used to notice video device nodes coming and going.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"
)

// Action is the kernel's verb for a uevent.
type Action string

// Uevent actions.
const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionChange Action = "change"
	ActionMove   Action = "move"
	ActionBind   Action = "bind"
	ActionUnbind Action = "unbind"
)

// SubsystemVideo4Linux is the subsystem of /dev/video* nodes.
const SubsystemVideo4Linux = "video4linux"

// Event is one kernel uevent.
type Event struct {
	Action    Action
	DevPath   string // sysfs path below /sys, e.g. /devices/.../video4linux/video0
	Subsystem string
	DevName   string // node name below /dev, e.g. video0
	Major     int
	Minor     int
	Seqnum    uint64
	Env       map[string]string
}

// Node returns the device node path, or "" when the event names none.
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	return "/dev/" + e.DevName
}

// AltersDeviceSet reports whether the event can add or remove a device
// node, as opposed to a property change on an existing one.
func (e Event) AltersDeviceSet() bool {
	return e.Action == ActionAdd || e.Action == ActionRemove
}

var (
	errEmpty   = errors.New("hotplug: empty message")
	errLibudev = errors.New("hotplug: libudev message")
	errHeader  = errors.New("hotplug: malformed header")
)

// ParseUEvent decodes a kernel uevent: "ACTION@DEVPATH" followed by
// NUL-separated KEY=VALUE pairs. Messages rebroadcast by udevd carry a
// binary libudev header and are rejected; only the kernel group is read.
func ParseUEvent(data []byte) (Event, error) {
	if len(data) == 0 {
		return Event{}, errEmpty
	}
	if bytes.HasPrefix(data, []byte("libudev\x00")) {
		return Event{}, errLibudev
	}

	header, rest, _ := bytes.Cut(data, []byte{0})
	action, devpath, ok := bytes.Cut(header, []byte{'@'})
	if !ok || len(action) == 0 || len(devpath) == 0 {
		return Event{}, fmt.Errorf("%w: %q", errHeader, header)
	}

	ev := Event{
		Action:  Action(action),
		DevPath: string(devpath),
		Env:     make(map[string]string),
	}
	for len(rest) > 0 {
		var field []byte
		field, rest, _ = bytes.Cut(rest, []byte{0})
		key, value, ok := bytes.Cut(field, []byte{'='})
		if !ok || len(key) == 0 {
			continue
		}
		k, v := string(key), string(value)
		ev.Env[k] = v

		switch k {
		case "SUBSYSTEM":
			ev.Subsystem = v
		case "DEVNAME":
			ev.DevName = v
		case "DEVPATH":
			ev.DevPath = v
		case "MAJOR":
			ev.Major, _ = strconv.Atoi(v)
		case "MINOR":
			ev.Minor, _ = strconv.Atoi(v)
		case "SEQNUM":
			ev.Seqnum, _ = strconv.ParseUint(v, 10, 64)
		}
	}
	return ev, nil
}

// kernelGroup is the multicast group the kernel sends uevents to; udevd
// rebroadcasts on group 2.
const kernelGroup = 1

// pollTimeoutMs bounds how long Run waits before rechecking its context.
const pollTimeoutMs = 500

// Monitor is a netlink uevent socket filtered to a set of subsystems.
type Monitor struct {
	fd         int
	subsystems map[string]bool
}

// NewMonitor opens the uevent socket. Only events of the given subsystems
// are delivered; with none given, every event is.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("hotplug: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelGroup}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("hotplug: bind: %w", err)
	}

	m := &Monitor{fd: fd, subsystems: make(map[string]bool, len(subsystems))}
	for _, s := range subsystems {
		m.subsystems[s] = true
	}
	return m, nil
}

// Close releases the socket. Run must have returned.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

func (m *Monitor) wants(ev Event) bool {
	return len(m.subsystems) == 0 || m.subsystems[ev.Subsystem]
}

// Run delivers events until ctx is done or the socket fails. It closes
// events on return. Overruns (ENOBUFS) are ignored: the kernel dropped
// messages and the consumer rescans on the next event anyway.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}

	for ctx.Err() == nil {
		n, err := unix.Poll(fds, pollTimeoutMs)
		if errors.Is(err, unix.EINTR) || (err == nil && n == 0) {
			continue
		}
		if err != nil {
			return fmt.Errorf("hotplug: poll: %w", err)
		}

		n, _, err = unix.Recvfrom(m.fd, buf, unix.MSG_DONTWAIT)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR), errors.Is(err, unix.ENOBUFS):
			continue
		case err != nil:
			return fmt.Errorf("hotplug: recv: %w", err)
		}

		ev, err := ParseUEvent(buf[:n])
		if err != nil || !m.wants(ev) {
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}
