//go:build linux

package devices

import (
	"os"
	"strings"

	"github.com/smazurov/vidcap/pkg/linuxav/v4l2"
)

// ResolveDevicePath converts a stable device ID to an openable node path.
func ResolveDevicePath(deviceID string) (string, error) {
	if strings.HasPrefix(deviceID, "/dev/") {
		return deviceID, nil
	}

	for _, dir := range []string{"/dev/v4l/by-id/", "/dev/v4l/by-path/"} {
		devicePath := dir + deviceID
		if _, err := os.Stat(devicePath); err == nil {
			return devicePath, nil
		}
	}

	// Synthetic IDs have no symlink.
	return v4l2.GetDevicePathByID(deviceID)
}
