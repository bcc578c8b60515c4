// Package backend defines the contract between the capture core and the
// platform capture implementations.
package backend

import (
	"context"

	"github.com/smazurov/vidcap/internal/format"
)

// Info identifies a backend.
type Info struct {
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
}

// SourceInfo identifies a capture device within a backend. Identifier is
// unique within the backend.
type SourceInfo struct {
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
}

// Sink receives raw frames from a running device. A non-zero errStatus
// marks a terminal error and data is nil. The return value is the
// application callback's verdict; non-zero asks for the capture to stop.
type Sink interface {
	Notify(data []byte, stride int, errStatus int) int
}

// Device is one opened capture device.
type Device interface {
	Info() SourceInfo

	// Capabilities lists the native format slots in preference order.
	Capabilities() []format.Capability

	// Bind programs the device to deliver m.Capture.
	Bind(m format.Match) error

	// Start begins producing frames into sink. The returned channel carries
	// asynchronous device events for this session and is closed once Stop
	// returns.
	Start(sink Sink) (<-chan Event, error)

	// Stop halts production and returns only when no further call into the
	// sink can happen. Stopping an idle device is a no-op.
	Stop() error

	// Release frees the device. The device must be stopped.
	Release() error
}

// Backend enumerates and opens devices of one platform API.
type Backend interface {
	Info() Info

	// Scan returns the devices currently present.
	Scan(ctx context.Context) ([]SourceInfo, error)

	// Open acquires exclusive use of a device.
	Open(ctx context.Context, src SourceInfo) (Device, error)

	// Watch signals on the returned channel whenever the device set may
	// have changed. The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan struct{}, error)

	Close() error
}
