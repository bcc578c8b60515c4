//go:build linux

package v4l2

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrDeviceGone is returned by streaming calls after the device was
// unplugged.
var ErrDeviceGone = errors.New("v4l2: device gone")

var sysfsRoot = "/sys/class/video4linux"

// FindDevices finds all V4L2 video capture devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []DeviceInfo

	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		capability, err := queryCapability(devicePath)
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to query video device", "path", devicePath, "error", err)
			continue
		}

		caps := capability.capabilities
		if caps&CapDeviceCaps != 0 {
			caps = capability.deviceCaps
		}

		// Metadata and output nodes share the subsystem.
		if caps&CapVideoCapture == 0 {
			continue
		}

		indexValue := readSysfsInt(filepath.Join(sysfsRoot, entry.Name(), "index"))

		stableID := findStableID(entry.Name(), indexValue)
		if stableID == "" {
			busInfo := cstr(capability.busInfo[:])
			if strings.HasPrefix(busInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", busInfo, indexValue)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", busInfo, indexValue)
			}
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: cstr(capability.card[:]),
			DeviceID:   stableID,
			Caps:       caps,
		})
	}

	return devices, nil
}

// GetDevicePathByID finds the device path for a given stable device ID.
func GetDevicePathByID(deviceID string) (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", fmt.Errorf("failed to find devices: %w", err)
	}

	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.DevicePath, nil
		}
	}

	return "", fmt.Errorf("device with ID %s not found", deviceID)
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, indexValue int) string {
	byIDDir := "/dev/v4l/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}

		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func queryCapability(devicePath string) (*v4l2Capability, error) {
	fd, err := openFd(devicePath)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	capability := &v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(capability)); err != nil {
		return nil, err
	}
	return capability, nil
}

// Device is an open V4L2 device node. Methods are not safe for concurrent
// use except Wait and Close.
type Device struct {
	path string
	fd   int
}

// Open opens a device node in non-blocking mode.
func Open(path string) (*Device, error) {
	fd, err := openFd(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Path returns the device node path.
func (d *Device) Path() string { return d.path }

// Close closes the device node.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

// Capabilities returns the effective capability flags of the node.
func (d *Device) Capabilities() (uint32, error) {
	capability := v4l2Capability{}
	if err := ioctl(d.fd, vidiocQuerycap, unsafe.Pointer(&capability)); err != nil {
		return 0, fmt.Errorf("query capabilities: %w", err)
	}
	if capability.capabilities&CapDeviceCaps != 0 {
		return capability.deviceCaps, nil
	}
	return capability.capabilities, nil
}

// Ready flags returned by Wait.
const (
	ReadyFrame = 1 << iota
	ReadyEvent
)

// Wait blocks until a frame can be dequeued, an event is pending, or
// timeoutMs elapses. A negative timeout waits forever. It returns
// ErrDeviceGone when the node reports a hangup.
func (d *Device) Wait(timeoutMs int) (int, error) {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN | unix.POLLPRI}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll %s: %w", d.path, err)
		}
		if n == 0 {
			return 0, nil
		}
		break
	}

	revents := fds[0].Revents
	if revents&(unix.POLLHUP|unix.POLLNVAL) != 0 {
		return 0, ErrDeviceGone
	}
	ready := 0
	if revents&unix.POLLIN != 0 {
		ready |= ReadyFrame
	}
	if revents&unix.POLLPRI != 0 {
		ready |= ReadyEvent
	}
	if revents&unix.POLLERR != 0 && ready == 0 {
		return 0, fmt.Errorf("poll %s: %w", d.path, unix.EIO)
	}
	return ready, nil
}

// gone maps the errno values a vanished device produces.
func gone(err error) error {
	if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.ENXIO) {
		return fmt.Errorf("%w: %w", ErrDeviceGone, err)
	}
	return err
}
